package localstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar is an http.CookieJar that survives restarts. Cookies live in a
// cookiejar.Jar; every change is mirrored to a JSON file.
type Jar struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	jar   *cookiejar.Jar
	saved map[string]map[string]storedCookie // origin -> name -> cookie
}

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (c storedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// OpenJar loads the jar stored at path. A missing file yields an empty jar;
// expired cookies are dropped on load.
func OpenJar(path string, logger *slog.Logger) (*Jar, error) {
	return openJar(path, logger, time.Now)
}

func openJar(path string, logger *slog.Logger, now func() time.Time) (*Jar, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Jar{path: path, logger: logger, now: now}
	if err := j.reset(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var saved map[string]map[string]storedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		// A corrupt file only costs a fresh login.
		logger.Warn("ignoring unreadable cookie file", "path", path, "error", err)
		return j, nil
	}

	loadedAt := j.now()
	for origin, byName := range saved {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		cookies := make([]*http.Cookie, 0, len(byName))
		for name, c := range byName {
			if !c.Expires.IsZero() && !c.Expires.After(loadedAt) {
				continue
			}
			if j.saved[origin] == nil {
				j.saved[origin] = make(map[string]storedCookie)
			}
			j.saved[origin][name] = c
			cookies = append(cookies, c.cookie())
		}
		j.jar.SetCookies(u, cookies)
	}
	return j, nil
}

func (j *Jar) reset() error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	j.jar = jar
	j.saved = make(map[string]map[string]storedCookie)
	return nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)

	origin := u.Scheme + "://" + u.Host
	now := j.now()
	for _, c := range cookies {
		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || c.Value == "" || (!expires.IsZero() && !expires.After(now)) {
			delete(j.saved[origin], c.Name)
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		if j.saved[origin] == nil {
			j.saved[origin] = make(map[string]storedCookie)
		}
		j.saved[origin][c.Name] = storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     path,
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	if len(j.saved[origin]) == 0 {
		delete(j.saved, origin)
	}
	if err := j.saveLocked(); err != nil {
		j.logger.Warn("persist cookies failed", "path", j.path, "error", err)
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Clear forgets every cookie and removes the file.
func (j *Jar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.reset(); err != nil {
		return err
	}
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cookie file: %w", err)
	}
	return nil
}

func (j *Jar) saveLocked() error {
	if len(j.saved) == 0 {
		if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	data, err := json.MarshalIndent(j.saved, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(j.path, data, 0600)
}
