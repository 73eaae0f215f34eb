package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/feedsieve/internal/config"
)

// Session cookies the feed requires
const (
	CookieAuthToken = "auth_token"
	CookieCSRF      = "ct0"
)

var feedDomains = []string{"x.com", "twitter.com"}

// CookieStore persists feed session cookies
type CookieStore struct {
	path string
	now  func() time.Time
}

// StoredCookies is the persisted cookie data
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Status describes the stored session
type Status struct {
	Present    bool
	Valid      bool
	CapturedAt time.Time
	ExpiresAt  time.Time
	Missing    []string
}

func (s Status) String() string {
	switch {
	case !s.Present:
		return "not logged in"
	case len(s.Missing) > 0:
		return fmt.Sprintf("incomplete session (missing %s)", strings.Join(s.Missing, ", "))
	case !s.Valid:
		return fmt.Sprintf("session expired at %s", s.ExpiresAt.Format(time.RFC1123))
	default:
		return fmt.Sprintf("logged in until %s", s.ExpiresAt.Format(time.RFC1123))
	}
}

func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now}
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cookies.json"), nil
}

// Save persists cookies. The session expires with the earliest of its
// required cookies.
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	var earliest time.Time
	for _, c := range cookies {
		if c.Name != CookieAuthToken && c.Name != CookieCSRF {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: cs.now(),
		ExpiresAt:  earliest,
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0600)
}

func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", cs.path, err)
	}
	return &stored, nil
}

// Status inspects the stored session without returning an error for a
// missing or unreadable file
func (cs *CookieStore) Status() Status {
	stored, err := cs.Load()
	if err != nil {
		return Status{}
	}

	st := Status{Present: true, CapturedAt: stored.CapturedAt, ExpiresAt: stored.ExpiresAt}
	for _, name := range []string{CookieAuthToken, CookieCSRF} {
		if !hasCookie(stored.Cookies, name) {
			st.Missing = append(st.Missing, name)
		}
	}
	st.Valid = len(st.Missing) == 0 && cs.now().Before(stored.ExpiresAt)
	return st
}

// IsValid reports whether a complete, unexpired session is stored
func (cs *CookieStore) IsValid() bool {
	return cs.Status().Valid
}

// Clear removes stored cookies. Clearing an empty store is not an error.
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FeedCookies returns only the cookies scoped to the feed's domains
func (cs *CookieStore) FeedCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var out []*network.Cookie
	for _, c := range stored.Cookies {
		if IsFeedDomain(c.Domain) {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsFeedDomain matches a cookie domain, with or without the leading dot
func IsFeedDomain(domain string) bool {
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	for _, fd := range feedDomains {
		if d == fd {
			return true
		}
	}
	return false
}

func hasCookie(cookies []*network.Cookie, name string) bool {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}
