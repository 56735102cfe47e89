package domain

import "fmt"

// Status is the authentication state of the local session.
type Status int

const (
	StatusAnonymous Status = iota
	StatusOtpPending
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusOtpPending:
		return "otp_pending"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Purpose records which flow issued the pending OTP challenge.
type Purpose int

const (
	PurposeLogin Purpose = iota
	PurposeSignup
)

func (p Purpose) String() string {
	if p == PurposeSignup {
		return "signup"
	}
	return "login"
}

// Session is a snapshot of the client's authentication state.
// User is set only when Authenticated; PendingEmail only when OtpPending.
type Session struct {
	Status       Status  `json:"status"`
	User         *User   `json:"user,omitempty"`
	PendingEmail string  `json:"pending_email,omitempty"`
	Purpose      Purpose `json:"purpose,omitempty"`
}

// Anonymous returns the initial session.
func Anonymous() Session {
	return Session{Status: StatusAnonymous}
}

// Pending returns a session waiting for the OTP sent to email.
func Pending(email string, purpose Purpose) Session {
	return Session{Status: StatusOtpPending, PendingEmail: email, Purpose: purpose}
}

// Authenticated returns a session for u.
func Authenticated(u User) Session {
	return Session{Status: StatusAuthenticated, User: &u}
}

// IsAuthenticated reports whether the session carries a user.
func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// Valid reports whether the nullability invariants for Status hold.
func (s Session) Valid() bool {
	switch s.Status {
	case StatusAnonymous:
		return s.User == nil && s.PendingEmail == ""
	case StatusOtpPending:
		return s.User == nil && s.PendingEmail != ""
	case StatusAuthenticated:
		return s.User != nil && s.PendingEmail == ""
	}
	return false
}
