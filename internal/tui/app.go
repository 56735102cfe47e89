package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/quicknotes/internal/notestore"
	"github.com/naveenspark/quicknotes/internal/session"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

type view int

const (
	viewLoading view = iota
	viewLogin
	viewNotes
	viewCreate
)

// bootstrapDoneMsg carries the session state once the startup probe returns.
type bootstrapDoneMsg struct {
	state domain.Session
}

// sessionChangedMsg wakes the app after one or more session transitions.
type sessionChangedMsg struct{}

type loggedOutMsg struct{}

// Option configures an App.
type Option func(*App)

// WithGoogleLogin enables ctrl+g on the login screen.
func WithGoogleLogin(fn GoogleLogin) Option {
	return func(a *App) {
		a.login.google = fn
	}
}

// App is the root Bubbletea model.
type App struct {
	sess  *session.Manager
	store *notestore.Store

	changes     chan struct{}
	unsubscribe func()

	view     view
	status   domain.Status
	user     *domain.User
	ready    bool
	login    loginModel
	notes    notesModel
	create   createModel
	helpOpen bool
	width    int
	height   int
	frame    int // logo shimmer animation frame
}

// NewApp creates a new TUI application. Call Close when the program exits.
func NewApp(sess *session.Manager, store *notestore.Store, opts ...Option) App {
	a := App{
		sess:        sess,
		store:       store,
		changes:     make(chan struct{}, 1),
		unsubscribe: func() {},
		login:       newLoginModel(sess, nil),
		notes:       newNotesModel(store),
		create:      newCreateModel(store),
	}
	if sess != nil {
		changes := a.changes
		a.unsubscribe = sess.Subscribe(func(session.Change) {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Close stops listening for session changes.
func (a App) Close() {
	a.unsubscribe()
}

func (a App) Init() tea.Cmd {
	if a.sess == nil {
		return shimmerTickCmd()
	}
	return tea.Batch(shimmerTickCmd(), a.bootstrap(), waitForChange(a.changes))
}

func (a App) bootstrap() tea.Cmd {
	sess := a.sess
	return func() tea.Msg {
		return bootstrapDoneMsg{state: sess.Bootstrap(context.Background())}
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return sessionChangedMsg{}
	}
}

func (a App) logout() tea.Cmd {
	sess := a.sess
	return func() tea.Msg {
		sess.Logout(context.Background())
		return loggedOutMsg{}
	}
}

// sync moves the app to the view that matches s. Entering Authenticated
// starts a load; the store itself is reset by its own subscription.
func (a App) sync(s domain.Session) (App, tea.Cmd) {
	prev := a.status
	a.status = s.Status

	var cmd tea.Cmd
	switch s.Status {
	case domain.StatusAuthenticated:
		a.user = s.User
		if a.view == viewLoading || a.view == viewLogin {
			a.view = viewNotes
		}
		if prev != domain.StatusAuthenticated {
			a.notes = newNotesModel(a.store)
			a.notes.width, a.notes.height = a.width, a.height-4
			cmd = a.notes.load()
		}
	default:
		a.user = nil
		if a.ready || s.Status == domain.StatusOtpPending {
			a.view = viewLogin
		}
		if prev == domain.StatusAuthenticated {
			a.login.setStatus("signed out")
		}
	}
	return a, cmd
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: header(2) + blank(1) + help(1) = 4 lines
		a.notes, _ = a.notes.Update(tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 4})
		return a, nil

	case shimmerTickMsg:
		a.frame++
		a.notes, _ = a.notes.Update(msg)
		return a, shimmerTickCmd()

	case bootstrapDoneMsg:
		a.ready = true
		return a.sync(msg.state)

	case sessionChangedMsg:
		var cmd tea.Cmd
		a, cmd = a.sync(a.sess.State())
		return a, tea.Batch(cmd, waitForChange(a.changes))

	case loggedOutMsg:
		return a, nil

	case otpRequestedMsg, otpVerifiedMsg, otpResentMsg, googleLoginMsg:
		var cmd tea.Cmd
		a.login, cmd = a.login.Update(msg)
		return a, cmd

	case noteCreatedMsg:
		var cmd tea.Cmd
		a.create, cmd = a.create.Update(msg)
		if msg.err == nil {
			a.notes = a.notes.created(msg.note)
			if a.view == viewCreate {
				a.view = viewNotes
			}
		}
		return a, cmd

	case notesLoadedMsg, pinToggledMsg, noteDeletedMsg, copyResultMsg:
		var cmd tea.Cmd
		a.notes, cmd = a.notes.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}

		// Help overlay captures all keys when open
		if a.helpOpen {
			switch msg.String() {
			case "h", "esc", "?":
				a.helpOpen = false
			case "q":
				return a, tea.Quit
			}
			return a, nil
		}

		// Global keys (only when not editing)
		if !a.isEditing() {
			switch msg.String() {
			case "h", "?":
				a.helpOpen = true
				return a, nil
			case "q":
				return a, tea.Quit
			case "n":
				if a.view == viewNotes {
					a.view = viewCreate
					return a, nil
				}
			case "L":
				if a.view == viewNotes {
					return a, a.logout()
				}
			}
		} else if msg.String() == "esc" && a.view == viewCreate {
			a.view = viewNotes
			return a, nil
		}

		var cmd tea.Cmd
		switch a.view {
		case viewLogin:
			a.login, cmd = a.login.Update(msg)
		case viewNotes:
			a.notes, cmd = a.notes.Update(msg)
		case viewCreate:
			a.create, cmd = a.create.Update(msg)
		}
		return a, cmd
	}
	return a, nil
}

func (a App) isEditing() bool {
	switch a.view {
	case viewLogin, viewCreate:
		return true
	case viewNotes:
		return a.notes.confirm != ""
	}
	return false
}

func (a App) View() string {
	// Header: centered shimmer logo
	logo := renderShimmerLogo(a.frame)
	logoPad := max((a.width-lipgloss.Width(logo))/2, 0)
	header := strings.Repeat(" ", logoPad) + logo

	// Identity line below logo
	who := ""
	if a.user != nil {
		parts := []string{a.user.DisplayName()}
		if a.store != nil {
			parts = append(parts, fmt.Sprintf("%d notes", a.store.Len()))
		}
		who = metaStyle.Render(strings.Join(parts, " . "))
	}
	whoPad := max((a.width-lipgloss.Width(who))/2, 0)
	header += "\n" + strings.Repeat(" ", whoPad) + who

	var body, help string
	switch a.view {
	case viewLoading:
		body = dimStyle.Render("  checking session...")
		help = helpBar(helpEntry("ctrl+c", "quit"))
	case viewLogin:
		a.login.frame = a.frame
		body = a.login.View()
		help = a.login.helpKeys()
	case viewNotes:
		body = a.notes.View()
		help = a.notes.helpKeys()
	case viewCreate:
		a.create.frame = a.frame
		body = a.create.View()
		help = a.create.helpKeys()
	}

	if a.helpOpen {
		body = helpView()
		help = helpBar(helpEntry("esc", "close"), helpEntry("q", "quit"))
	}

	// Chrome budget: header(2) + blank(1) + help(1)
	chrome := 4
	body = strings.TrimRight(truncateToHeight(body, a.height-chrome), "\n")

	return fmt.Sprintf("%s\n\n%s\n%s", header, body, help)
}
