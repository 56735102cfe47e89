package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var signedOutHints = [...]string{
	"Your notes are waiting on the other side of a six-digit code.",
	"Nothing to show until you sign in.",
	"Sign in and your pinned notes float right back to the top.",
	"A code is one email away.",
	"The session ran out. The notes did not.",
}

var (
	wordmarkColors = [2]lipgloss.Color{"#f5c542", "#d4a844"}
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#c8a84c")).Italic(true)
	cmdStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80")).Bold(true)
	ruleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#d4a844"))
)

// wordmark renders the spaced QUICKNOTES wordmark in alternating gold.
func wordmark() string {
	var b strings.Builder
	for i, ch := range "QUICKNOTES" {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(wordmarkColors[i%2]).Render(string(ch)))
	}
	return b.String()
}

// printSignedOut tells the user there is no session and how to start one.
func printSignedOut(w io.Writer) {
	hint := signedOutHints[rand.IntN(len(signedOutHints))]
	rule := ruleStyle.Render("│")

	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s\n\n", wordmark())
	fmt.Fprintf(&b, "  %s %s\n", rule, hintStyle.Render(hint))
	fmt.Fprintf(&b, "  %s Run %s to sign in.\n\n", rule, cmdStyle.Render("quicknotes login"))
	io.WriteString(w, b.String()) //nolint:errcheck
}
