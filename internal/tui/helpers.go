package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/naveenspark/quicknotes/internal/notestore"
	"github.com/naveenspark/quicknotes/internal/session"
	"github.com/naveenspark/quicknotes/pkg/client"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

// formatTime renders a relative timestamp.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("2006-01-02")
	}
}

// truncStr truncates a string to maxLen runes, appending an ellipsis if needed.
func truncStr(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}

// oneLine collapses newlines and runs of whitespace so a note body fits a row.
func oneLine(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// errText turns an operation error into a status line. Validation and server
// messages are shown verbatim; transient failures get a retry hint.
func errText(action string, err error) string {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return vErr.Error()
	case errors.Is(err, notestore.ErrNotFound):
		return action + ": note no longer exists"
	case errors.Is(err, notestore.ErrNotAuthenticated):
		return "not signed in"
	case errors.Is(err, session.ErrBusy):
		return "still working on the last request"
	case client.IsUnauthorized(err):
		return "session expired, sign in again"
	}
	return action + " failed: " + client.Message(err)
}
