package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenspark/quicknotes/pkg/client"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

type fakeAPI struct {
	startLogin   func(ctx context.Context, email string) error
	verifyLogin  func(ctx context.Context, email, otp string) (*domain.User, error)
	signup       func(ctx context.Context, name, email string) error
	verifySignup func(ctx context.Context, email, otp string) (*domain.User, error)
	resend       func(ctx context.Context, email string) error
	me           func(ctx context.Context) (*domain.User, error)
	logout       func(ctx context.Context) error

	calls atomic.Int32
}

func (f *fakeAPI) StartLogin(ctx context.Context, email string) error {
	f.calls.Add(1)
	if f.startLogin == nil {
		return nil
	}
	return f.startLogin(ctx, email)
}

func (f *fakeAPI) VerifyLoginOTP(ctx context.Context, email, otp string) (*domain.User, error) {
	f.calls.Add(1)
	if f.verifyLogin == nil {
		return &domain.User{ID: "u1", Email: email}, nil
	}
	return f.verifyLogin(ctx, email, otp)
}

func (f *fakeAPI) Signup(ctx context.Context, name, email string) error {
	f.calls.Add(1)
	if f.signup == nil {
		return nil
	}
	return f.signup(ctx, name, email)
}

func (f *fakeAPI) VerifySignupOTP(ctx context.Context, email, otp string) (*domain.User, error) {
	f.calls.Add(1)
	if f.verifySignup == nil {
		return &domain.User{ID: "new", Email: email}, nil
	}
	return f.verifySignup(ctx, email, otp)
}

func (f *fakeAPI) ResendOTP(ctx context.Context, email string) error {
	f.calls.Add(1)
	if f.resend == nil {
		return nil
	}
	return f.resend(ctx, email)
}

func (f *fakeAPI) Me(ctx context.Context) (*domain.User, error) {
	f.calls.Add(1)
	if f.me == nil {
		return nil, &client.HTTPError{StatusCode: http.StatusUnauthorized, Message: "not authenticated"}
	}
	return f.me(ctx)
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.calls.Add(1)
	if f.logout == nil {
		return nil
	}
	return f.logout(ctx)
}

type memCache struct {
	mu    sync.Mutex
	user  *domain.User
	saves int
}

func (c *memCache) Save(u domain.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &u
	c.saves++
	return nil
}

func (c *memCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	return nil
}

func (c *memCache) get() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

const email = "ann@example.com"

func signedIn(t *testing.T, api *fakeAPI, opts ...Option) *Manager {
	t.Helper()
	m := New(api, opts...)
	require.NoError(t, m.RequestOTP(context.Background(), email))
	require.NoError(t, m.VerifyOTP(context.Background(), email, "123456"))
	require.True(t, m.IsAuthenticated())
	return m
}

func TestLoginFlow(t *testing.T) {
	t.Parallel()

	cache := &memCache{}
	m := New(&fakeAPI{}, WithCache(cache))
	ctx := context.Background()

	assert.Equal(t, domain.StatusAnonymous, m.State().Status)

	require.NoError(t, m.RequestOTP(ctx, "  "+email))
	st := m.State()
	assert.Equal(t, domain.StatusOtpPending, st.Status)
	assert.Equal(t, email, st.PendingEmail)
	assert.True(t, st.Valid())

	require.NoError(t, m.VerifyOTP(ctx, email, "123456"))
	st = m.State()
	assert.Equal(t, domain.StatusAuthenticated, st.Status)
	require.NotNil(t, st.User)
	assert.Equal(t, "u1", st.User.ID)
	assert.True(t, st.Valid())
	assert.True(t, m.IsAuthenticated())

	require.NotNil(t, cache.get())
	assert.Equal(t, email, cache.get().Email)
}

func TestRequestOTPFailureStaysAnonymous(t *testing.T) {
	t.Parallel()

	rejected := &client.HTTPError{StatusCode: http.StatusNotFound, Message: "User not found"}
	m := New(&fakeAPI{startLogin: func(context.Context, string) error { return rejected }})

	err := m.RequestOTP(context.Background(), email)
	require.Error(t, err)
	assert.Equal(t, "User not found", client.Message(err))
	assert.Equal(t, domain.Anonymous(), m.State())
}

func TestRequestOTPRejectsMalformedEmailLocally(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := New(api)

	err := m.RequestOTP(context.Background(), "not-an-email")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, api.calls.Load())
	assert.Equal(t, domain.StatusAnonymous, m.State().Status)
}

func TestVerifyOTPFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{verifyLogin: func(_ context.Context, e, otp string) (*domain.User, error) {
		if otp != "123456" {
			return nil, &client.HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid OTP"}
		}
		return &domain.User{ID: "u1", Email: e}, nil
	}}
	m := New(api)
	ctx := context.Background()
	require.NoError(t, m.RequestOTP(ctx, email))

	err := m.VerifyOTP(ctx, email, "000000")
	require.Error(t, err)
	assert.Equal(t, "Invalid OTP", client.Message(err))
	assert.Equal(t, domain.Pending(email, domain.PurposeLogin), m.State())

	require.NoError(t, m.VerifyOTP(ctx, email, "123456"))
	assert.True(t, m.IsAuthenticated())
}

func TestVerifyOTPTransientErrorKeepsChallenge(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{verifyLogin: func(context.Context, string, string) (*domain.User, error) {
		return nil, client.ErrTransport
	}}
	m := New(api)
	require.NoError(t, m.RequestOTP(context.Background(), email))

	err := m.VerifyOTP(context.Background(), email, "123456")
	require.Error(t, err)
	assert.True(t, client.Retryable(err))
	assert.Equal(t, domain.StatusOtpPending, m.State().Status)
}

func TestVerifyOTPReplayIsNoop(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	cache := &memCache{}
	m := signedIn(t, api, WithCache(cache))
	before := api.calls.Load()
	user := m.State().User

	require.NoError(t, m.VerifyOTP(context.Background(), email, "123456"))

	assert.Equal(t, before, api.calls.Load(), "replay must not hit the server")
	assert.Equal(t, user, m.State().User)
	assert.Equal(t, 1, cache.saves)
}

func TestVerifyOTPValidation(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	m := New(api)
	ctx := context.Background()

	err := m.VerifyOTP(ctx, email, "123456")
	assert.True(t, IsTransitionError(err), "verify without a pending challenge")

	require.NoError(t, m.RequestOTP(ctx, email))
	calls := api.calls.Load()

	assert.True(t, domain.IsValidation(m.VerifyOTP(ctx, email, "   ")))
	assert.True(t, domain.IsValidation(m.VerifyOTP(ctx, "other@example.com", "123456")))
	assert.Equal(t, calls, api.calls.Load())
	assert.Equal(t, domain.StatusOtpPending, m.State().Status)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	m := New(&fakeAPI{})
	assert.True(t, IsTransitionError(m.Cancel()))

	require.NoError(t, m.RequestOTP(context.Background(), email))
	require.NoError(t, m.Cancel())
	assert.Equal(t, domain.Anonymous(), m.State())

	require.NoError(t, m.RequestOTP(context.Background(), "bob@example.com"))
	assert.Equal(t, "bob@example.com", m.State().PendingEmail)
}

func TestStateInvariantsHoldForEverySequence(t *testing.T) {
	t.Parallel()

	ops := []string{"request", "verify-bad", "verify", "cancel", "request-other"}
	api := &fakeAPI{verifyLogin: func(_ context.Context, e, otp string) (*domain.User, error) {
		if otp == "bad" {
			return nil, &client.HTTPError{StatusCode: http.StatusBadRequest, Message: "Invalid OTP"}
		}
		return &domain.User{ID: "u1", Email: e}, nil
	}}

	// Every sequence of length 4 over ops.
	var run func(prefix []string)
	run = func(prefix []string) {
		if len(prefix) == 4 {
			m := New(api)
			ctx := context.Background()
			for _, op := range prefix {
				pending := m.State().PendingEmail
				switch op {
				case "request":
					_ = m.RequestOTP(ctx, email)
				case "request-other":
					_ = m.RequestOTP(ctx, "bob@example.com")
				case "verify-bad":
					_ = m.VerifyOTP(ctx, email, "bad")
				case "verify":
					if pending != "" {
						_ = m.VerifyOTP(ctx, pending, "123456")
					} else {
						_ = m.VerifyOTP(ctx, email, "123456")
					}
				case "cancel":
					_ = m.Cancel()
				}
				if !m.State().Valid() {
					t.Fatalf("invalid state %+v after %v", m.State(), prefix)
				}
			}
			return
		}
		for _, op := range ops {
			run(append(append([]string(nil), prefix...), op))
		}
	}
	run(nil)
}

func TestSecondRequestWhileInFlightIsBusy(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	api := &fakeAPI{startLogin: func(context.Context, string) error {
		close(started)
		<-release
		return nil
	}}
	m := New(api)

	done := make(chan error, 1)
	go func() { done <- m.RequestOTP(context.Background(), email) }()
	<-started

	err := m.RequestOTP(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, email, m.State().PendingEmail)
}

func TestCancelDuringVerifyDiscardsResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var remoteLogouts atomic.Int32
	api := &fakeAPI{
		verifyLogin: func(_ context.Context, e, _ string) (*domain.User, error) {
			close(started)
			<-release
			return &domain.User{ID: "u1", Email: e}, nil
		},
		logout: func(context.Context) error {
			remoteLogouts.Add(1)
			return nil
		},
	}
	m := New(api)
	require.NoError(t, m.RequestOTP(context.Background(), email))

	done := make(chan error, 1)
	go func() { done <- m.VerifyOTP(context.Background(), email, "123456") }()
	<-started
	require.NoError(t, m.Cancel())
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, domain.Anonymous(), m.State())
	assert.Equal(t, int32(1), remoteLogouts.Load())
}

func TestSignupFlowUsesSignupVerification(t *testing.T) {
	t.Parallel()

	var gotName string
	api := &fakeAPI{
		signup: func(_ context.Context, name, _ string) error {
			gotName = name
			return nil
		},
		verifyLogin: func(context.Context, string, string) (*domain.User, error) {
			return nil, errors.New("login verification must not be used for signup")
		},
	}
	m := New(api)
	ctx := context.Background()

	assert.True(t, domain.IsValidation(m.RequestSignup(ctx, " ", email)))

	require.NoError(t, m.RequestSignup(ctx, " Ann ", email))
	assert.Equal(t, "Ann", gotName)
	assert.Equal(t, domain.PurposeSignup, m.State().Purpose)

	require.NoError(t, m.VerifyOTP(ctx, email, "654321"))
	assert.Equal(t, "new", m.State().User.ID)
}

func TestResendOTP(t *testing.T) {
	t.Parallel()

	var resentTo string
	m := New(&fakeAPI{resend: func(_ context.Context, e string) error {
		resentTo = e
		return nil
	}})
	ctx := context.Background()

	assert.True(t, IsTransitionError(m.ResendOTP(ctx)))

	require.NoError(t, m.RequestOTP(ctx, email))
	require.NoError(t, m.ResendOTP(ctx))
	assert.Equal(t, email, resentTo)
	assert.Equal(t, domain.Pending(email, domain.PurposeLogin), m.State())
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	t.Run("existing session", func(t *testing.T) {
		t.Parallel()
		cache := &memCache{}
		m := New(&fakeAPI{me: func(context.Context) (*domain.User, error) {
			return &domain.User{ID: "u1", Email: email}, nil
		}}, WithCache(cache))

		st := m.Bootstrap(context.Background())
		assert.Equal(t, domain.StatusAuthenticated, st.Status)
		assert.NotNil(t, cache.get())
		select {
		case <-m.Ready():
		default:
			t.Fatal("Ready() not closed after Bootstrap")
		}
	})

	t.Run("no session is silent", func(t *testing.T) {
		t.Parallel()
		m := New(&fakeAPI{})
		st := m.Bootstrap(context.Background())
		assert.Equal(t, domain.Anonymous(), st)
	})

	t.Run("network error is silent", func(t *testing.T) {
		t.Parallel()
		m := New(&fakeAPI{me: func(context.Context) (*domain.User, error) {
			return nil, client.ErrTransport
		}})
		assert.Equal(t, domain.Anonymous(), m.Bootstrap(context.Background()))
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		api := &fakeAPI{me: func(context.Context) (*domain.User, error) {
			return &domain.User{ID: "u1", Email: email}, nil
		}}
		m := New(api)
		m.Bootstrap(context.Background())
		epoch, ok := m.Authenticated()
		require.True(t, ok)

		m.Bootstrap(context.Background())
		again, _ := m.Authenticated()
		assert.Equal(t, epoch, again)
		assert.Equal(t, int32(1), api.calls.Load())
	})
}

func TestBootstrapResultDiscardedAfterStateChange(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	m := New(&fakeAPI{me: func(context.Context) (*domain.User, error) {
		close(started)
		<-release
		return &domain.User{ID: "stale", Email: "old@example.com"}, nil
	}})

	done := make(chan domain.Session, 1)
	go func() { done <- m.Bootstrap(context.Background()) }()
	<-started

	require.NoError(t, m.RequestOTP(context.Background(), email))
	close(release)
	<-done

	assert.Equal(t, domain.StatusOtpPending, m.State().Status)
}

func TestLogoutIsLocalEvenWhenRemoteFails(t *testing.T) {
	t.Parallel()

	cache := &memCache{}
	api := &fakeAPI{logout: func(context.Context) error { return client.ErrTransport }}
	m := signedIn(t, api, WithCache(cache))

	m.Logout(context.Background())

	assert.Equal(t, domain.Anonymous(), m.State())
	assert.Nil(t, cache.get())

	// Logging out twice is harmless.
	m.Logout(context.Background())
	assert.Equal(t, domain.Anonymous(), m.State())
}

func TestLogoutClearsCacheBeforeRemoteCall(t *testing.T) {
	t.Parallel()

	cache := &memCache{}
	var cachedDuringCall *domain.User
	api := &fakeAPI{}
	api.logout = func(context.Context) error {
		cachedDuringCall = cache.get()
		return nil
	}
	m := signedIn(t, api, WithCache(cache))
	require.NotNil(t, cache.get())

	m.Logout(context.Background())
	assert.Nil(t, cachedDuringCall)
	assert.Nil(t, cache.get())
}

func TestSignInDuringRemoteLogoutKeepsNewSession(t *testing.T) {
	t.Parallel()

	cache := &memCache{}
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{}
	api.logout = func(context.Context) error {
		close(started)
		<-release
		return nil
	}
	m := signedIn(t, api, WithCache(cache))

	done := make(chan struct{})
	go func() {
		m.Logout(context.Background())
		close(done)
	}()
	<-started

	require.NoError(t, m.RequestOTP(context.Background(), "bo@example.com"))
	require.NoError(t, m.VerifyOTP(context.Background(), "bo@example.com", "123456"))
	close(release)
	<-done

	assert.True(t, m.IsAuthenticated())
	require.NotNil(t, cache.get())
	assert.Equal(t, "bo@example.com", cache.get().Email)
}

func TestLogoutSkipsRemoteCallOnceSignedInAgain(t *testing.T) {
	t.Parallel()

	cache := &memCache{}
	var remote atomic.Int32
	api := &fakeAPI{logout: func(context.Context) error {
		remote.Add(1)
		return nil
	}}
	m := signedIn(t, api, WithCache(cache))

	// Sign straight back in from the logout notification, before Logout
	// reaches the server.
	var once sync.Once
	unsubscribe := m.Subscribe(func(c Change) {
		if c.From.Status != domain.StatusAuthenticated || c.To.Status != domain.StatusAnonymous {
			return
		}
		once.Do(func() {
			assert.NoError(t, m.RequestOTP(context.Background(), "bo@example.com"))
			assert.NoError(t, m.VerifyOTP(context.Background(), "bo@example.com", "123456"))
		})
	})
	defer unsubscribe()

	m.Logout(context.Background())

	assert.True(t, m.IsAuthenticated())
	assert.Zero(t, remote.Load())
	require.NotNil(t, cache.get())
	assert.Equal(t, "bo@example.com", cache.get().Email)
}

func TestObserveForcesLogoutOn401(t *testing.T) {
	t.Parallel()

	cache := &memCache{}
	m := signedIn(t, &fakeAPI{}, WithCache(cache))
	epoch, _ := m.Authenticated()

	assert.False(t, m.Observe(epoch, client.ErrTransport))
	assert.False(t, m.Observe(epoch, &client.HTTPError{StatusCode: http.StatusNotFound}))
	assert.True(t, m.IsAuthenticated())

	assert.False(t, m.Observe(epoch+1, &client.HTTPError{StatusCode: http.StatusUnauthorized}), "stale epoch")
	assert.True(t, m.IsAuthenticated())

	assert.True(t, m.Observe(epoch, &client.HTTPError{StatusCode: http.StatusUnauthorized}))
	assert.Equal(t, domain.Anonymous(), m.State())
	assert.Nil(t, cache.get())
	assert.False(t, m.Current(epoch))
}

func TestSubscribeDeliversTransitionsInOrder(t *testing.T) {
	t.Parallel()

	m := New(&fakeAPI{})
	var got []domain.Status
	unsubscribe := m.Subscribe(func(c Change) {
		got = append(got, c.To.Status)
		// Reading state from a subscriber must not deadlock.
		_ = m.State()
	})

	ctx := context.Background()
	require.NoError(t, m.RequestOTP(ctx, email))
	require.NoError(t, m.VerifyOTP(ctx, email, "123456"))
	m.Logout(ctx)
	unsubscribe()
	require.NoError(t, m.RequestOTP(ctx, email))

	assert.Equal(t, []domain.Status{
		domain.StatusOtpPending,
		domain.StatusAuthenticated,
		domain.StatusAnonymous,
	}, got)
}

func TestConcurrentBootstrapSharesOneProbe(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	api := &fakeAPI{me: func(context.Context) (*domain.User, error) {
		<-release
		return &domain.User{ID: "u1", Email: email}, nil
	}}
	m := New(api)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Bootstrap(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.True(t, m.IsAuthenticated())
	assert.LessOrEqual(t, api.calls.Load(), int32(5))
	assert.GreaterOrEqual(t, api.calls.Load(), int32(1))
}
