// Package browser provides shared chromedp configuration with anti-bot-detection measures.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// DefaultUserAgent is a realistic Chrome user agent
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Window size for every session. The document mirror uses the same viewport.
const (
	WindowWidth  = 1920
	WindowHeight = 1080
)

// BotTestURL is a fingerprint audit page
const BotTestURL = "https://bot.sannysoft.com"

// Options returns chromedp allocator options with anti-bot-detection measures.
// All browser instances use this so the stealth configuration stays consistent.
func Options(headless bool, extra ...chromedp.ExecAllocatorOption) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),

		// Prevent navigator.webdriver = true, which the feed checks
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.UserAgent(DefaultUserAgent),
		chromedp.WindowSize(WindowWidth, WindowHeight),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	if headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}

	return append(opts, extra...)
}

// NewContext starts a browser with Options and returns a tab context.
// cancel closes the tab and shuts the browser down.
func NewContext(ctx context.Context, headless bool, extra ...chromedp.ExecAllocatorOption) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(headless, extra...)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	return tabCtx, func() {
		tabCancel()
		allocCancel()
	}
}

// InjectCookies sets cookies in the browser before navigation
func InjectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
}

// BotTest opens the fingerprint audit page in a visible browser and waits
// until ctx is done
func BotTest(ctx context.Context) error {
	tabCtx, cancel := NewContext(ctx, false)
	defer cancel()

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(BotTestURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	<-ctx.Done()
	return nil
}
