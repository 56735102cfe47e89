package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/naveenspark/quicknotes/internal/browser"
	"github.com/naveenspark/quicknotes/internal/tui"
)

const (
	callbackTimeout = 2 * time.Minute
	sessionCookie   = "token"
)

// googleLogin returns the browser sign-in flow. Progress messages go to out.
func (c *cli) googleLogin(out io.Writer) tui.GoogleLogin {
	return func(ctx context.Context) error {
		tok, err := awaitOAuthToken(ctx, c.api.OAuthURL("google"), out, browser.Open)
		if err != nil {
			return err
		}

		// The server hands the session over as the same cookie a browser
		// would have received.
		u, err := url.Parse(c.api.BaseURL())
		if err != nil {
			return fmt.Errorf("google sign-in: %w", err)
		}
		c.state.Jar().SetCookies(u, []*http.Cookie{{
			Name:     sessionCookie,
			Value:    tok,
			Path:     "/",
			HttpOnly: true,
			Secure:   u.Scheme == "https",
		}})

		if s := c.sess.Bootstrap(ctx); !s.IsAuthenticated() {
			return errors.New("google sign-in: the server did not accept the session")
		}
		return nil
	}
}

// awaitOAuthToken sends the browser to entry with a localhost callback and
// waits for the redirect that carries the session token.
func awaitOAuthToken(ctx context.Context, entry string, out io.Writer, open func(string) error) (string, error) {
	// Start ephemeral localhost server on random port.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("start callback listener: %w", err)
	}
	defer listener.Close() //nolint:errcheck

	port := listener.Addr().(*net.TCPAddr).Port
	tokenCh := make(chan string, 1)
	errCh := make(chan error, 1)

	// Generate CSRF state token.
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	expectedState := hex.EncodeToString(stateBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			http.Error(w, "invalid state", http.StatusForbidden)
			sendErr(errCh, errors.New("callback state mismatch (possible CSRF)"))
			return
		}
		if msg := q.Get("error"); msg != "" {
			http.Error(w, "sign-in failed", http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("google sign-in: %s", msg))
			return
		}
		tok := q.Get("token")
		if tok == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			sendErr(errCh, errors.New("callback received without token"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, callbackHTML) //nolint:errcheck
		select {
		case tokenCh <- tok:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if srvErr := srv.Serve(listener); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			sendErr(errCh, srvErr)
		}
	}()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx) //nolint:errcheck
	}()

	params := url.Values{}
	params.Set("redirect", fmt.Sprintf("http://127.0.0.1:%d/callback", port))
	params.Set("state", expectedState)
	loginURL := entry + "?" + params.Encode()

	fmt.Fprintln(out, "Opening browser to sign in...") //nolint:errcheck
	if err := open(loginURL); err != nil {
		fmt.Fprintf(out, "Could not open browser. Visit this URL manually:\n  %s\n", loginURL) //nolint:errcheck
	}

	timer := time.NewTimer(callbackTimeout)
	defer timer.Stop()

	select {
	case tok := <-tokenCh:
		return tok, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.New("sign-in timed out, no callback received within 2 minutes")
	}
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

const callbackHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>quicknotes</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
body{
  background:#0a0a10;color:#e4e4ec;
  font-family:'JetBrains Mono','SF Mono','Consolas',monospace;
  height:100vh;display:flex;align-items:center;justify-content:center;
}
.card{text-align:center}
.logo{
  font-size:28px;font-weight:700;letter-spacing:10px;
  text-transform:uppercase;margin-bottom:24px;color:#f5c542;
  animation:shimmer 3s ease-in-out infinite;
}
@keyframes shimmer{0%,100%{opacity:.6}50%{opacity:1}}
.check{
  width:48px;height:48px;margin:0 auto 20px;
  border:2px solid #4ade80;border-radius:50%;
  display:flex;align-items:center;justify-content:center;
}
.check svg{width:24px;height:24px}
.msg{font-size:14px;color:#4ade80;font-weight:600;margin-bottom:8px}
.sub{font-size:12px;color:#505868}
</style>
</head>
<body>
<div class="card">
  <div class="logo">quicknotes</div>
  <div class="check">
    <svg viewBox="0 0 24 24" fill="none" stroke="#4ade80" stroke-width="2.5" stroke-linecap="round" stroke-linejoin="round">
      <polyline points="20 6 9 17 4 12"/>
    </svg>
  </div>
  <div class="msg">signed in</div>
  <div class="sub">return to your terminal</div>
</div>
</body>
</html>`
