// Package auth captures and stores the feed's session cookies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/feedsieve/internal/browser"
)

const (
	DefaultLoginURL = "https://x.com/login"
	loginTimeout    = 5 * time.Minute
	pollInterval    = 2 * time.Second
)

// ErrLoginTimeout is returned when the user never reaches the home feed
var ErrLoginTimeout = errors.New("login timeout exceeded")

// Manager runs the interactive login and hands stored cookies to sessions
type Manager struct {
	cookieStore *CookieStore
	loginURL    string
	log         *slog.Logger
}

func NewManager(cookieStore *CookieStore) *Manager {
	return &Manager{
		cookieStore: cookieStore,
		loginURL:    DefaultLoginURL,
		log:         slog.Default().With("component", "auth"),
	}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Status describes the stored session
func (m *Manager) Status() Status {
	return m.cookieStore.Status()
}

// Login opens a visible browser for the user to log in, then saves the
// session cookies once the home feed loads
func (m *Manager) Login(ctx context.Context) error {
	browserCtx, cancel := browser.NewContext(ctx, false, chromedp.Flag("start-maximized", true))
	defer cancel()

	m.log.Info("opening login page", "url", m.loginURL)
	if err := chromedp.Run(browserCtx, chromedp.Navigate(m.loginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	if err := m.waitForLogin(browserCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("failed to extract cookies: %w", err)
	}
	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	m.log.Info("login successful", "cookies", len(cookies))
	return nil
}

// waitForLogin polls until the tab shows the home feed with an auth token set
func (m *Manager) waitForLogin(ctx context.Context) error {
	timeout := time.After(loginTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return ErrLoginTimeout
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var loc string
			if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
				continue
			}
			if !IsHomeURL(loc) {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			if hasCookie(cookies, CookieAuthToken) {
				return nil
			}
		}
	}
}

// IsHomeURL reports whether loc is the feed's home timeline
func IsHomeURL(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	return IsFeedDomain(u.Hostname()) && strings.TrimSuffix(u.Path, "/") == "/home"
}

func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// Cookies returns the stored feed cookies for a live session
func (m *Manager) Cookies() ([]*network.Cookie, error) {
	return m.cookieStore.FeedCookies()
}
