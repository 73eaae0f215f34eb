package scraper

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/feedsieve/internal/browser"
)

// BindingName is the page function events are sent through
const BindingName = "fsEmit"

const (
	feedLoadTimeout = 30 * time.Second
	commandBuffer   = 1024
)

// ErrNotAuthenticated is returned when the feed URL lands on the login form
var ErrNotAuthenticated = errors.New("feed requires login")

//go:embed page.js
var pageScript string

// Poster runs functions on the goroutine that owns the mirror
type Poster interface {
	Post(fn func())
}

// SessionConfig configures a live browser session
type SessionConfig struct {
	FeedURL    string
	Headless   bool
	Cookies    []*network.Cookie
	Threshold  float64
	RootMargin float64
}

// Session drives a real browser tab: page events are mirrored into a
// document on the loop, and treatments flow back as page commands.
type Session struct {
	cfg    SessionConfig
	loop   Poster
	mirror *Mirror
	cmds   chan string
	done   chan struct{}
	log    *slog.Logger
}

func NewSession(cfg SessionConfig, l Poster) *Session {
	s := &Session{
		cfg:  cfg,
		loop: l,
		cmds: make(chan string, commandBuffer),
		done: make(chan struct{}),
		log:  slog.Default().With("component", "session"),
	}
	s.mirror = NewMirror(s.enqueue, Handlers{})
	return s
}

// Mirror returns the document mirror. Touch it only from the loop.
func (s *Session) Mirror() *Mirror {
	return s.mirror
}

func (s *Session) enqueue(cmd string) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// Script returns the page script with its options prepended
func (s *Session) Script() string {
	opts, _ := json.Marshal(map[string]any{
		"threshold":  s.cfg.Threshold,
		"rootMargin": s.cfg.RootMargin,
		"binding":    BindingName,
	})
	return fmt.Sprintf("window.__fsOptions = %s;\n%s", opts, pageScript)
}

// Run opens the feed and relays events and commands until ctx is done
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	tabCtx, cancel := browser.NewContext(ctx, s.cfg.Headless)
	defer cancel()

	chromedp.ListenTarget(tabCtx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != BindingName {
			return
		}
		payload := called.Payload
		s.loop.Post(func() {
			if err := s.mirror.Handle(payload); err != nil {
				s.log.Warn("page event dropped", "error", err)
			}
		})
	})

	if len(s.cfg.Cookies) > 0 {
		if err := browser.InjectCookies(tabCtx, s.cfg.Cookies); err != nil {
			return fmt.Errorf("failed to inject cookies: %w", err)
		}
	}

	script := s.Script()
	if err := chromedp.Run(tabCtx,
		runtime.AddBinding(BindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Navigate(s.cfg.FeedURL),
	); err != nil {
		return fmt.Errorf("failed to load feed: %w", err)
	}

	if err := s.waitForFeed(tabCtx); err != nil {
		return err
	}
	s.log.Info("feed loaded", "url", s.cfg.FeedURL)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-s.cmds:
			if err := chromedp.Run(tabCtx, chromedp.Evaluate(cmd, nil)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Warn("page command failed", "command", cmd, "error", err)
			}
		}
	}
}

// waitForFeed blocks until either the timeline or the login form renders
func (s *Session) waitForFeed(ctx context.Context) error {
	expr := fmt.Sprintf(`document.querySelector(%q) ? "feed" : (document.querySelector(%q) ? "login" : "")`,
		WaitForFeed, LoginForm)

	var state string
	if err := chromedp.Run(ctx,
		chromedp.Poll(expr, &state, chromedp.WithPollingTimeout(feedLoadTimeout)),
	); err != nil {
		return fmt.Errorf("feed did not load: %w", err)
	}
	if state == "login" {
		return ErrNotAuthenticated
	}
	return nil
}
