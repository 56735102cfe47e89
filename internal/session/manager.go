// Package session tracks whether the client is anonymous, waiting on an OTP,
// or authenticated, and bridges the OTP challenge into a cookie session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/naveenspark/quicknotes/pkg/client"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

// API is the slice of the remote API the manager needs.
type API interface {
	StartLogin(ctx context.Context, email string) error
	VerifyLoginOTP(ctx context.Context, email, otp string) (*domain.User, error)
	Signup(ctx context.Context, name, email string) error
	VerifySignupOTP(ctx context.Context, email, otp string) (*domain.User, error)
	ResendOTP(ctx context.Context, email string) error
	Me(ctx context.Context) (*domain.User, error)
	Logout(ctx context.Context) error
}

// Cache persists the identity of the authenticated user between runs.
// Save is called on entering Authenticated, Clear on logout and on expiry.
type Cache interface {
	Save(u domain.User) error
	Clear() error
}

// Change describes one transition. Epoch is the epoch after the transition.
type Change struct {
	From  domain.Session
	To    domain.Session
	Epoch uint64
}

type event string

const (
	evRequestOTP event = "request_otp"
	evVerifyOTP  event = "verify_otp"
	evCancel     event = "cancel"
	evBootstrap  event = "bootstrap"
	evLogout     event = "logout"
	evExpire     event = "expire"
)

var transitions = map[domain.Status]map[event]domain.Status{
	domain.StatusAnonymous: {
		evRequestOTP: domain.StatusOtpPending,
		evBootstrap:  domain.StatusAuthenticated,
	},
	domain.StatusOtpPending: {
		evVerifyOTP: domain.StatusAuthenticated,
		evCancel:    domain.StatusAnonymous,
	},
	domain.StatusAuthenticated: {
		evLogout: domain.StatusAnonymous,
		evExpire: domain.StatusAnonymous,
	},
}

// Manager owns the session state machine. It is safe for concurrent use.
type Manager struct {
	api    API
	cache  Cache
	logger *slog.Logger

	mu       sync.Mutex
	state    domain.Session
	epoch    uint64
	inflight bool
	subs     map[int]func(Change)
	nextSub  int
	queue    []Change
	draining bool

	cacheMu   sync.Mutex
	probe     singleflight.Group
	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithCache sets the identity cache.
func WithCache(c Cache) Option {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a manager in the Anonymous state.
func New(api API, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		cache:  nopCache{},
		logger: slog.Default(),
		state:  domain.Anonymous(),
		subs:   make(map[int]func(Change)),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a snapshot of the current session.
func (m *Manager) State() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsAuthenticated()
}

// Authenticated returns the current epoch and whether the session is
// authenticated. Callers pass the epoch back to Current or Observe once their
// request completes.
func (m *Manager) Authenticated() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch, m.state.IsAuthenticated()
}

// Current reports whether the session is still authenticated in epoch.
func (m *Manager) Current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch && m.state.IsAuthenticated()
}

// signedInSince reports whether a newer session than epoch is authenticated.
func (m *Manager) signedInSince(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch > epoch && m.state.IsAuthenticated()
}

// Ready is closed once the first Bootstrap has resolved.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Subscribe registers fn for every transition. Changes are delivered in
// order, outside the manager's lock. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Bootstrap probes the server for an existing session. Failures leave the
// session Anonymous and are not reported. Concurrent calls share one probe.
func (m *Manager) Bootstrap(ctx context.Context) domain.Session {
	m.probe.Do("me", func() (any, error) { //nolint:errcheck // probe never fails
		m.mu.Lock()
		if m.state.Status != domain.StatusAnonymous {
			m.mu.Unlock()
			return nil, nil
		}
		epoch := m.epoch
		m.mu.Unlock()

		u, err := m.api.Me(ctx)
		if err != nil {
			m.logger.Debug("session probe found no session", "error", err)
			return nil, nil
		}

		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			m.logger.Debug("session probe result discarded", "reason", "state changed")
			return nil, nil
		}
		next, err := m.transitionLocked(evBootstrap, domain.Authenticated(*u))
		if err != nil {
			m.logger.Debug("session probe result discarded", "error", err)
			return nil, nil
		}
		m.saveCache(next, *u)
		m.logger.Info("session restored", "user_id", u.ID)
		return nil, nil
	})
	m.readyOnce.Do(func() { close(m.ready) })
	return m.State()
}

// RequestOTP starts an email login. On success the session waits for the code.
func (m *Manager) RequestOTP(ctx context.Context, email string) error {
	if err := m.requestChallenge(ctx, email, domain.PurposeLogin, m.api.StartLogin); err != nil {
		return fmt.Errorf("session.RequestOTP: %w", err)
	}
	return nil
}

// RequestSignup registers an account and waits for its verification code.
func (m *Manager) RequestSignup(ctx context.Context, name, email string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("session.RequestSignup: %w", &domain.ValidationError{Field: "name", Reason: "is required"})
	}
	start := func(ctx context.Context, email string) error {
		return m.api.Signup(ctx, name, email)
	}
	if err := m.requestChallenge(ctx, email, domain.PurposeSignup, start); err != nil {
		return fmt.Errorf("session.RequestSignup: %w", err)
	}
	return nil
}

func (m *Manager) requestChallenge(ctx context.Context, rawEmail string, purpose domain.Purpose, start func(context.Context, string) error) error {
	email, err := domain.NormalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := transitions[m.state.Status][evRequestOTP]; !ok {
		from := m.state.Status
		m.mu.Unlock()
		return &TransitionError{From: from, Event: string(evRequestOTP)}
	}
	if m.inflight {
		m.mu.Unlock()
		return ErrBusy
	}
	m.inflight = true
	epoch := m.epoch
	m.mu.Unlock()

	err = start(ctx, email)

	m.mu.Lock()
	m.inflight = false
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrStale
	}
	if _, err := m.transitionLocked(evRequestOTP, domain.Pending(email, purpose)); err != nil {
		return err
	}
	m.logger.Info("otp requested", "purpose", purpose.String())
	return nil
}

// VerifyOTP completes a pending challenge. A failed verification keeps the
// challenge open for another attempt. Replaying a successful verification for
// the signed-in email is a no-op.
func (m *Manager) VerifyOTP(ctx context.Context, rawEmail, code string) error {
	email, err := domain.NormalizeEmail(rawEmail)
	if err != nil {
		return fmt.Errorf("session.VerifyOTP: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("session.VerifyOTP: %w", &domain.ValidationError{Field: "otp", Reason: "is required"})
	}

	m.mu.Lock()
	switch {
	case m.state.IsAuthenticated() && strings.EqualFold(m.state.User.Email, email):
		m.mu.Unlock()
		return nil
	case m.state.Status != domain.StatusOtpPending:
		from := m.state.Status
		m.mu.Unlock()
		return fmt.Errorf("session.VerifyOTP: %w", &TransitionError{From: from, Event: string(evVerifyOTP)})
	case !strings.EqualFold(m.state.PendingEmail, email):
		m.mu.Unlock()
		return fmt.Errorf("session.VerifyOTP: %w", &domain.ValidationError{Field: "email", Reason: "does not match the pending login"})
	case m.inflight:
		m.mu.Unlock()
		return fmt.Errorf("session.VerifyOTP: %w", ErrBusy)
	}
	m.inflight = true
	epoch := m.epoch
	verify := m.api.VerifyLoginOTP
	if m.state.Purpose == domain.PurposeSignup {
		verify = m.api.VerifySignupOTP
	}
	m.mu.Unlock()

	u, err := verify(ctx, email, code)

	m.mu.Lock()
	m.inflight = false
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session.VerifyOTP: %w", err)
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		// The challenge was cancelled; do not leave a live server session behind.
		if lerr := m.api.Logout(ctx); lerr != nil {
			m.logger.Debug("discarding cancelled login", "error", lerr)
		}
		return fmt.Errorf("session.VerifyOTP: %w", ErrStale)
	}
	next, err := m.transitionLocked(evVerifyOTP, domain.Authenticated(*u))
	if err != nil {
		return fmt.Errorf("session.VerifyOTP: %w", err)
	}
	m.saveCache(next, *u)
	m.logger.Info("signed in", "user_id", u.ID)
	return nil
}

// ResendOTP asks the server to send the pending code again. The session state
// does not change.
func (m *Manager) ResendOTP(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status != domain.StatusOtpPending {
		from := m.state.Status
		m.mu.Unlock()
		return fmt.Errorf("session.ResendOTP: %w", &TransitionError{From: from, Event: "resend_otp"})
	}
	if m.inflight {
		m.mu.Unlock()
		return fmt.Errorf("session.ResendOTP: %w", ErrBusy)
	}
	m.inflight = true
	email := m.state.PendingEmail
	m.mu.Unlock()

	err := m.api.ResendOTP(ctx, email)

	m.mu.Lock()
	m.inflight = false
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session.ResendOTP: %w", err)
	}
	return nil
}

// Cancel abandons a pending challenge so a different email can be entered.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	if _, err := m.transitionLocked(evCancel, domain.Anonymous()); err != nil {
		return fmt.Errorf("session.Cancel: %w", err)
	}
	return nil
}

// Logout signs out locally right away and then ends the server session on a
// best-effort basis. Calling it while not authenticated does nothing.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	if !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return
	}
	epoch, err := m.transitionLocked(evLogout, domain.Anonymous())
	if err != nil {
		m.logger.Warn("logout transition failed", "error", err)
		return
	}
	m.clearCache(epoch)
	m.logger.Info("signed out")

	// A sign-in that finished meanwhile owns the server session now.
	if m.signedInSince(epoch) {
		m.logger.Debug("remote logout skipped", "reason", "state changed")
		return
	}
	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("remote logout failed", "error", err)
	}
}

// Observe inspects the error of a call made in epoch. A 401 from the server
// means the session expired: the manager drops to Anonymous. It reports
// whether a forced logout happened.
func (m *Manager) Observe(epoch uint64, err error) bool {
	if !client.IsUnauthorized(err) {
		return false
	}
	m.mu.Lock()
	if m.epoch != epoch || !m.state.IsAuthenticated() {
		m.mu.Unlock()
		return false
	}
	next, terr := m.transitionLocked(evExpire, domain.Anonymous())
	if terr != nil {
		return false
	}
	m.clearCache(next)
	m.logger.Warn("session expired", "error", err)
	return true
}

// transitionLocked moves to next if the table allows ev, then delivers the
// change to subscribers. It returns the new epoch. m.mu must be held; it is
// released before returning.
func (m *Manager) transitionLocked(ev event, next domain.Session) (uint64, error) {
	from := m.state
	to, ok := transitions[from.Status][ev]
	if !ok || to != next.Status {
		m.mu.Unlock()
		return 0, &TransitionError{From: from.Status, Event: string(ev)}
	}
	m.state = next
	m.epoch++
	epoch := m.epoch
	m.queue = append(m.queue, Change{From: from, To: next, Epoch: epoch})
	m.drainLocked()
	return epoch, nil
}

// drainLocked delivers queued changes. Only one goroutine drains at a time;
// changes queued meanwhile are picked up by that goroutine, keeping order.
// m.mu must be held; it is released before returning.
func (m *Manager) drainLocked() {
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.queue) > 0 {
		c := m.queue[0]
		m.queue = m.queue[1:]
		ids := make([]int, 0, len(m.subs))
		for id := range m.subs {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		fns := make([]func(Change), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, m.subs[id])
		}
		m.mu.Unlock()

		m.logger.Debug("session transition", "from", c.From.Status.String(), "to", c.To.Status.String(), "epoch", c.Epoch)
		for _, fn := range fns {
			fn(c)
		}

		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

// saveCache stores u unless the session already left epoch. cacheMu orders
// it against a concurrent clearCache.
func (m *Manager) saveCache(epoch uint64, u domain.User) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if !m.Current(epoch) {
		return
	}
	if err := m.cache.Save(u); err != nil {
		m.logger.Warn("session cache save failed", "error", err)
	}
}

// clearCache drops the cached user unless a later sign-in already replaced it.
func (m *Manager) clearCache(epoch uint64) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if m.signedInSince(epoch) {
		return
	}
	if err := m.cache.Clear(); err != nil {
		m.logger.Warn("session cache clear failed", "error", err)
	}
}

type nopCache struct{}

func (nopCache) Save(domain.User) error { return nil }
func (nopCache) Clear() error           { return nil }
