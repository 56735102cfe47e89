package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/naveenspark/quicknotes/internal/notestore"
	"github.com/naveenspark/quicknotes/pkg/client"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

// loadAttempts bounds retries of a transient list failure.
const loadAttempts = 3

var newLoadBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }

func (c *cli) newNotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List, create, pin and delete notes",
	}
	cmd.AddCommand(
		c.newNotesListCmd(),
		c.newNotesCreateCmd(),
		c.newNotesPinCmd(),
		c.newNotesDeleteCmd(),
	)
	return cmd
}

func (c *cli) newNotesListCmd() *cobra.Command {
	var output, tag string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your notes, pinned first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch output {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown output %q (want table, json or yaml)", output)
			}
			if err := c.loadNotes(cmd.Context()); err != nil {
				return err
			}
			notes := c.store.Sorted()
			if tag != "" {
				notes = slices.DeleteFunc(notes, func(n domain.Note) bool { return !n.HasTag(tag) })
			}
			return printNotes(c.out, notes, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().StringVar(&tag, "tag", "", "Only show notes with this tag")
	return cmd
}

func (c *cli) newNotesCreateCmd() *cobra.Command {
	var (
		title, content string
		tags           []string
		pin            bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note",
		Long: `Create a note. Pass --content - to read the body from standard input.
Missing fields are asked for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}

			var err error
			if title == "" {
				if title, err = c.prompt("Title: "); err != nil {
					return err
				}
			}
			switch content {
			case "-":
				b, err := io.ReadAll(c.in)
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				content = string(b)
			case "":
				if content, err = c.prompt("Content: "); err != nil {
					return err
				}
			}

			c.store.SetTitle(title)
			c.store.SetContent(content)
			c.store.SetPinned(pin)
			for _, t := range tags {
				c.store.AddTag(t)
			}
			n, err := c.store.CreateDraft(ctx)
			if err != nil {
				return fmt.Errorf("create: %s", userMessage(err))
			}
			fmt.Fprintf(c.out, "Created %s %q\n", n.ID, n.Title) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Note title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Note body, or - for standard input")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag to add (repeatable, or comma separated)")
	cmd.Flags().BoolVar(&pin, "pin", false, "Pin the note")
	return cmd
}

func (c *cli) newNotesPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin or unpin a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			if err := c.loadNotes(ctx); err != nil {
				return err
			}
			if err := c.store.TogglePin(ctx, id); err != nil {
				return noteError("pin", id, err)
			}
			n, ok := c.store.Get(id)
			if !ok {
				return noteError("pin", id, notestore.ErrNotFound)
			}
			verb := "Unpinned"
			if n.IsPinned {
				verb = "Pinned"
			}
			fmt.Fprintf(c.out, "%s %q\n", verb, n.Title) //nolint:errcheck
			return nil
		},
	}
}

func (c *cli) newNotesDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a note",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			if err := c.loadNotes(ctx); err != nil {
				return err
			}
			n, ok := c.store.Get(id)
			if !ok {
				return noteError("delete", id, notestore.ErrNotFound)
			}
			if !yes {
				if !interactive(c.stdin) {
					return errors.New("refusing to delete without --yes when input is not a terminal")
				}
				answer, err := c.prompt(fmt.Sprintf("Delete %q? [y/N] ", n.Title))
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					fmt.Fprintln(c.out, "Kept.") //nolint:errcheck
					return nil
				}
			}
			if err := c.store.Delete(ctx, id); err != nil {
				return noteError("delete", id, err)
			}
			fmt.Fprintf(c.out, "Deleted %q\n", n.Title) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// requireSession restores the session from the cookie jar or explains how to
// sign in.
func (c *cli) requireSession(ctx context.Context) error {
	if s := c.sess.Bootstrap(ctx); !s.IsAuthenticated() {
		printSignedOut(c.out)
		return errSilent
	}
	return nil
}

// loadNotes fetches the collection, retrying transient failures.
func (c *cli) loadNotes(ctx context.Context) error {
	if err := c.requireSession(ctx); err != nil {
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newLoadBackOff(), loadAttempts-1), ctx)
	err := backoff.RetryNotify(func() error {
		err := c.store.Load(ctx)
		if err != nil && !client.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("loading notes failed, retrying", "error", err, "wait", wait)
	})
	switch {
	case err == nil:
		return nil
	case notestore.IsDiscarded(err) || errors.Is(err, notestore.ErrNotAuthenticated):
		// A 401 signed us out while loading.
		printSignedOut(c.out)
		return errSilent
	}
	return fmt.Errorf("load notes: %s", userMessage(err))
}

func noteError(action, id string, err error) error {
	if errors.Is(err, notestore.ErrNotFound) {
		return fmt.Errorf("%s: no note with id %s", action, id)
	}
	return fmt.Errorf("%s: %s", action, userMessage(err))
}

func printNotes(w io.Writer, notes []domain.Note, format string) error {
	if notes == nil {
		notes = []domain.Note{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(notes)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(notes); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPIN\tTITLE\tTAGS\tCREATED") //nolint:errcheck
	for _, n := range notes {
		pin := ""
		if n.IsPinned {
			pin = "*"
		}
		tags := make([]string, len(n.Tags))
		for i, t := range n.Tags {
			tags[i] = "#" + t
		}
		created := ""
		if !n.CreatedAt.IsZero() {
			created = n.CreatedAt.Local().Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, pin, oneLine(n.Title, 40), strings.Join(tags, " "), created) //nolint:errcheck
	}
	return tw.Flush()
}

// oneLine flattens s and cuts it to limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
