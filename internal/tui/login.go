package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/quicknotes/internal/session"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

type loginField int

const (
	fieldName loginField = iota
	fieldEmail
)

type otpRequestedMsg struct{ err error }

type otpVerifiedMsg struct{ err error }

type otpResentMsg struct{ err error }

type googleLoginMsg struct{ err error }

// GoogleLogin runs the browser sign-in and returns once the session has been
// bootstrapped from the resulting cookie.
type GoogleLogin func(ctx context.Context) error

type loginModel struct {
	sess   *session.Manager
	google GoogleLogin

	signup    bool
	focus     loginField
	name      string
	email     string
	code      string
	busy      bool
	status    string
	statusErr bool
	frame     int
}

func newLoginModel(sess *session.Manager, google GoogleLogin) loginModel {
	return loginModel{sess: sess, google: google, focus: fieldEmail}
}

// pending reports whether a code has been sent and the form should ask for it.
func (m loginModel) pending() (domain.Session, bool) {
	if m.sess == nil {
		return domain.Anonymous(), false
	}
	s := m.sess.State()
	return s, s.Status == domain.StatusOtpPending
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case otpRequestedMsg:
		m.busy = false
		if msg.err != nil {
			m.setErr("send code", msg.err)
			return m, nil
		}
		m.code = ""
		m.setStatus("code sent, check your inbox")
		return m, nil

	case otpVerifiedMsg:
		m.busy = false
		if msg.err != nil {
			m.code = ""
			m.setErr("verify", msg.err)
			return m, nil
		}
		m.code = ""
		m.status = ""
		return m, nil

	case otpResentMsg:
		m.busy = false
		if msg.err != nil {
			m.setErr("resend", msg.err)
			return m, nil
		}
		m.setStatus("a new code is on its way")
		return m, nil

	case googleLoginMsg:
		m.busy = false
		if msg.err != nil {
			m.setErr("google sign-in", msg.err)
			return m, nil
		}
		m.status = ""
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		if _, ok := m.pending(); ok {
			return m.updateCode(msg)
		}
		return m.updateEmail(msg)
	}
	return m, nil
}

func (m loginModel) updateEmail(msg tea.KeyMsg) (loginModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return m.submitEmail()
	case "tab", "shift+tab", "down", "up":
		if m.signup {
			if m.focus == fieldName {
				m.focus = fieldEmail
			} else {
				m.focus = fieldName
			}
		}
	case "ctrl+t":
		m.signup = !m.signup
		m.focus = fieldEmail
		if m.signup {
			m.focus = fieldName
		}
		m.status = ""
	case "ctrl+g":
		if m.google == nil {
			m.setStatus("google sign-in is not available here")
			return m, nil
		}
		m.busy = true
		m.setStatus("finish signing in in your browser...")
		google := m.google
		return m, func() tea.Msg {
			return googleLoginMsg{err: google(context.Background())}
		}
	default:
		if m.focus == fieldName && m.signup {
			m.name = editRune(m.name, msg.String())
		} else {
			m.email = editRune(m.email, msg.String())
		}
	}
	return m, nil
}

func (m loginModel) submitEmail() (loginModel, tea.Cmd) {
	email := strings.TrimSpace(m.email)
	if _, err := domain.NormalizeEmail(email); err != nil {
		m.setErr("send code", err)
		return m, nil
	}
	name := strings.TrimSpace(m.name)
	if m.signup && name == "" {
		m.setErr("sign up", &domain.ValidationError{Field: "name", Reason: "is required"})
		return m, nil
	}

	m.busy = true
	m.setStatus("sending code...")
	sess, signup := m.sess, m.signup
	return m, func() tea.Msg {
		if signup {
			return otpRequestedMsg{err: sess.RequestSignup(context.Background(), name, email)}
		}
		return otpRequestedMsg{err: sess.RequestOTP(context.Background(), email)}
	}
}

func (m loginModel) updateCode(msg tea.KeyMsg) (loginModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		s, _ := m.pending()
		code := strings.TrimSpace(m.code)
		if code == "" {
			m.setErr("verify", &domain.ValidationError{Field: "otp", Reason: "is required"})
			return m, nil
		}
		m.busy = true
		m.setStatus("verifying...")
		sess, email := m.sess, s.PendingEmail
		return m, func() tea.Msg {
			return otpVerifiedMsg{err: sess.VerifyOTP(context.Background(), email, code)}
		}
	case "ctrl+r":
		m.busy = true
		m.setStatus("resending...")
		sess := m.sess
		return m, func() tea.Msg {
			return otpResentMsg{err: sess.ResendOTP(context.Background())}
		}
	case "esc":
		m.code = ""
		m.status = ""
		m.sess.Cancel() //nolint:errcheck // only fails when no code is pending
	default:
		key := msg.String()
		if key == "backspace" || (len(key) == 1 && key[0] >= '0' && key[0] <= '9' && len(m.code) < 8) {
			m.code = editRune(m.code, key)
		}
	}
	return m, nil
}

func (m *loginModel) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *loginModel) setErr(action string, err error) {
	if errors.Is(err, session.ErrStale) {
		m.status = ""
		return
	}
	m.status = errText(action, err)
	m.statusErr = true
}

func (m loginModel) helpKeys() string {
	if _, ok := m.pending(); ok {
		return helpBar(helpEntry("enter", "verify"), helpEntry("ctrl+r", "resend"), helpEntry("esc", "change email"), helpEntry("ctrl+c", "quit"))
	}
	mode := "sign up"
	if m.signup {
		mode = "log in"
	}
	return helpBar(helpEntry("enter", "send code"), helpEntry("ctrl+t", mode), helpEntry("ctrl+g", "google"), helpEntry("ctrl+c", "quit"))
}

func (m loginModel) View() string {
	var b strings.Builder

	s, pending := m.pending()
	if pending {
		b.WriteString(sectionHeaderStyle.Render("  ENTER CODE") + "\n\n")
		b.WriteString("  " + dimStyle.Render("sent to ") + normalStyle.Render(s.PendingEmail) + "\n\n")
		b.WriteString(renderInput("code ", m.code, "6-digit code", true, false, m.frame) + "\n")
	} else {
		title := "  LOG IN"
		if m.signup {
			title = "  SIGN UP"
		}
		b.WriteString(sectionHeaderStyle.Render(title) + "\n\n")
		if m.signup {
			b.WriteString(renderInput("name ", m.name, "your name", m.focus == fieldName, false, m.frame) + "\n")
		}
		b.WriteString(renderInput("email", m.email, "you@example.com", !m.signup || m.focus == fieldEmail, false, m.frame) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.status == "":
	case m.statusErr:
		b.WriteString("  " + errorStyle.Render(m.status))
	case m.busy:
		b.WriteString("  " + dimStyle.Render(m.status))
	default:
		b.WriteString("  " + okStyle.Render(m.status))
	}
	return b.String()
}
