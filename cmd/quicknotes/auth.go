package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/naveenspark/quicknotes/internal/localstate"
	"github.com/naveenspark/quicknotes/pkg/client"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

// maxCodeAttempts bounds how often a code may be retyped before giving up.
const maxCodeAttempts = 3

func (c *cli) newLoginCmd() *cobra.Command {
	var (
		email  string
		google bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a code sent to your email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if s := c.sess.Bootstrap(ctx); s.IsAuthenticated() {
				fmt.Fprintf(c.out, "Already signed in as %s.\n", s.User.DisplayName()) //nolint:errcheck
				return nil
			}
			if google {
				if err := c.googleLogin(c.out)(ctx); err != nil {
					return err
				}
				return c.printSignedIn()
			}

			if email == "" {
				var err error
				if email, err = c.prompt("Email: "); err != nil {
					return err
				}
			}
			if err := c.sess.RequestOTP(ctx, email); err != nil {
				return fmt.Errorf("send code: %s", userMessage(err))
			}
			return c.enterCode(ctx)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address to send the code to")
	cmd.Flags().BoolVar(&google, "google", false, "Sign in with Google in your browser")
	return cmd
}

func (c *cli) newSignupCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if s := c.sess.Bootstrap(ctx); s.IsAuthenticated() {
				fmt.Fprintf(c.out, "Already signed in as %s. Run quicknotes logout first.\n", s.User.DisplayName()) //nolint:errcheck
				return nil
			}
			var err error
			if name == "" {
				if name, err = c.prompt("Name: "); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = c.prompt("Email: "); err != nil {
					return err
				}
			}
			if err := c.sess.RequestSignup(ctx, name, email); err != nil {
				return fmt.Errorf("sign up: %s", userMessage(err))
			}
			return c.enterCode(ctx)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Your name")
	cmd.Flags().StringVar(&email, "email", "", "Email address to send the code to")
	return cmd
}

// enterCode asks for the emailed code until it is accepted. Typing r sends a
// new one.
func (c *cli) enterCode(ctx context.Context) error {
	fmt.Fprintf(c.out, "We sent a code to %s.\n", c.sess.State().PendingEmail) //nolint:errcheck
	for attempt := 0; attempt < maxCodeAttempts; {
		code, err := c.prompt("Code (r to resend): ")
		if err != nil {
			c.sess.Cancel() //nolint:errcheck
			return err
		}
		if strings.EqualFold(code, "r") {
			if err := c.sess.ResendOTP(ctx); err != nil {
				fmt.Fprintf(c.out, "Could not resend: %s\n", userMessage(err)) //nolint:errcheck
			} else {
				fmt.Fprintln(c.out, "A new code is on its way.") //nolint:errcheck
			}
			continue
		}

		err = c.sess.VerifyOTP(ctx, c.sess.State().PendingEmail, code)
		if err == nil {
			return c.printSignedIn()
		}
		attempt++
		fmt.Fprintf(c.out, "%s\n", userMessage(err)) //nolint:errcheck
	}
	c.sess.Cancel() //nolint:errcheck
	return errors.New("too many failed attempts, run quicknotes login again")
}

func (c *cli) printSignedIn() error {
	s := c.sess.State()
	if !s.IsAuthenticated() {
		return errors.New("sign-in did not complete")
	}
	fmt.Fprintf(c.out, "Signed in as %s.\n", s.User.DisplayName()) //nolint:errcheck
	return nil
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End your session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if s := c.sess.Bootstrap(ctx); !s.IsAuthenticated() {
				// Drop whatever is left on disk from an expired session.
				if err := c.state.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Already logged out.") //nolint:errcheck
				return nil
			}
			c.sess.Logout(ctx)
			fmt.Fprintln(c.out, "Logged out.") //nolint:errcheck
			return nil
		},
	}
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	var cached bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cached {
				u, at, err := c.state.LoadUser()
				if errors.Is(err, localstate.ErrNoUser) {
					printSignedOut(c.out)
					return errSilent
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "%s (cached %s)\n", userLine(u), at.Local().Format(time.DateTime)) //nolint:errcheck
				return nil
			}
			s := c.sess.Bootstrap(cmd.Context())
			if !s.IsAuthenticated() {
				printSignedOut(c.out)
				return errSilent
			}
			fmt.Fprintln(c.out, userLine(*s.User)) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Print the last known user without asking the server")
	return cmd
}

func userLine(u domain.User) string {
	if u.Name == "" {
		return u.Email
	}
	return fmt.Sprintf("%s <%s>", u.Name, u.Email)
}

// prompt prints label and reads one trimmed line.
func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label) //nolint:errcheck
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no input")
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// interactive reports whether r is a terminal a person can answer prompts on.
func interactive(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// userMessage is the text shown for err. Validation problems and server
// messages are shown verbatim.
func userMessage(err error) string {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	return client.Message(err)
}
