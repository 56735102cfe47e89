package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/naveenspark/quicknotes/internal/config"
	"github.com/naveenspark/quicknotes/internal/localstate"
	"github.com/naveenspark/quicknotes/internal/notestore"
	"github.com/naveenspark/quicknotes/internal/session"
	"github.com/naveenspark/quicknotes/internal/tui"
	"github.com/naveenspark/quicknotes/pkg/client"
)

// errSilent marks failures that were already explained to the user.
var errSilent = errors.New("silent")

// cli holds what every command needs once PersistentPreRunE has run.
type cli struct {
	stdin io.Reader
	in    *bufio.Reader
	out   io.Writer

	apiURL  string
	verbose bool

	cfg    config.Config
	logger *slog.Logger
	state  *localstate.State
	api    *client.Client
	sess   *session.Manager
	store  *notestore.Store

	teardown []func()
}

// execute runs the command line in args. Everything the commands opened is
// closed before it returns.
func execute(ctx context.Context, in io.Reader, out io.Writer, args []string) error {
	c := &cli{stdin: in, in: bufio.NewReader(in), out: out}
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quicknotes",
		Short: "Quick notes from your terminal",
		Long: `quicknotes keeps short notes on your quicknotes server.
Run it without arguments for the interactive view.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runTUI(cmd)
		},
	}
	root.SetIn(c.stdin)
	root.SetOut(c.out)
	root.PersistentFlags().StringVar(&c.apiURL, "api-url", "", "API base URL (overrides QUICKNOTES_API_URL)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		c.newLoginCmd(),
		c.newSignupCmd(),
		c.newLogoutCmd(),
		c.newWhoamiCmd(),
		c.newNotesCmd(),
		newVersionCmd(c.out),
	)
	return root
}

// setup loads configuration and wires the client, session and store.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIURL = c.apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if c.verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	c.cfg = cfg

	c.logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	state, err := localstate.Open(cfg.Home, c.logger)
	if err != nil {
		return err
	}
	c.state = state

	// The interactive view owns the terminal, so it logs to a file.
	if !cmd.HasParent() {
		f, err := os.OpenFile(state.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		c.teardown = append(c.teardown, func() { f.Close() }) //nolint:errcheck
		c.logger = newLogger(f, cfg.LogLevel, cfg.LogFormat)
	}
	slog.SetDefault(c.logger)

	c.api = client.New(cfg.APIURL, client.WithJar(state.Jar()), client.WithTimeout(cfg.Timeout))
	c.sess = session.New(c.api, session.WithCache(state), session.WithLogger(c.logger))
	c.store = notestore.New(c.api, c.sess, notestore.WithLogger(c.logger))
	c.teardown = append(c.teardown, c.store.Attach(c.sess))

	c.logger.Debug("configured", "api", cfg.APIURL, "home", cfg.Home)
	return nil
}

func (c *cli) close() {
	for i := len(c.teardown) - 1; i >= 0; i-- {
		c.teardown[i]()
	}
	c.teardown = nil
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *cli) runTUI(cmd *cobra.Command) error {
	app := tui.NewApp(c.sess, c.store, tui.WithGoogleLogin(c.googleLogin(io.Discard)))
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of quicknotes",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(out, "quicknotes %s\n", version) //nolint:errcheck
		},
	}
}
