package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BrowserOptions configures the headless admin-panel fetcher.
type BrowserOptions struct {
	// BaseURL is the submission list endpoint; the page index is appended
	// as a query parameter.
	BaseURL string

	// SessionCookie is a pre-authenticated admin session cookie value.
	// Login itself is out of scope here; the operator supplies the cookie.
	SessionCookie string

	// PageTimeout bounds a single page render. Default: 45s.
	PageTimeout time.Duration

	// MaxRate caps navigations per second against the admin host.
	// Default: 0.5 (one page every two seconds at most).
	MaxRate float64
}

// Browser fetches submission pages by driving one headless Chrome session.
// The session is stateful, so a Browser must not be shared across
// concurrent fetch loops.
type Browser struct {
	opts    BrowserOptions
	limiter *rate.Limiter

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewBrowser starts a headless Chrome session for the admin panel.
func NewBrowser(ctx context.Context, opts BrowserOptions) (*Browser, error) {
	if opts.BaseURL == "" {
		return nil, eris.New("browser: base url required")
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 45 * time.Second
	}
	if opts.MaxRate <= 0 {
		opts.MaxRate = 0.5
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Start the browser process up front so a broken Chrome install fails
	// fast instead of on page one.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, eris.Wrap(err, "browser: start chrome")
	}

	b := &Browser{
		opts:        opts,
		limiter:     rate.NewLimiter(rate.Limit(opts.MaxRate), 1),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	// Install the operator-supplied session cookie on the admin origin.
	if opts.SessionCookie != "" {
		var ignored any
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(opts.BaseURL),
			chromedp.WaitReady("body"),
			chromedp.Evaluate(fmt.Sprintf("document.cookie = %q", opts.SessionCookie), &ignored),
		)
		if err != nil {
			b.Close()
			return nil, eris.Wrap(err, "browser: install session cookie")
		}
	}

	return b, nil
}

// Close tears down the browser session.
func (b *Browser) Close() {
	b.tabCancel()
	b.allocCancel()
}

// FetchPage renders the submission list for the given page index and parses
// its rows. Failures are classified for the engine's retry policy.
func (b *Browser) FetchPage(ctx context.Context, pageIndex int) (*Page, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "browser: rate limiter wait")
	}

	url := fmt.Sprintf("%s?page=%d", b.opts.BaseURL, pageIndex)

	navCtx, cancel := context.WithTimeout(b.tabCtx, b.opts.PageTimeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	}

	if err := chromedp.Run(navCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, NewFetchError(KindTimeout, pageIndex, err)
		}
		return nil, NewFetchError(KindUnknown, pageIndex, err)
	}

	if blocked, kind := DetectBlock(html); blocked {
		zap.L().Warn("admin page blocked",
			zap.String("component", "fetcher.browser"),
			zap.Int("page", pageIndex),
			zap.String("block_type", string(kind)),
		)
		return nil, NewFetchError(KindBlocked, pageIndex,
			eris.Errorf("blocked by %s", kind))
	}

	page, err := ParsePage(html)
	if err != nil {
		return nil, NewFetchError(KindUnknown, pageIndex, err)
	}

	if len(page.Records) == 0 && !page.HasMore {
		// Distinguish genuine end-of-data from a page that simply does not
		// exist: a missing submission table means the index ran past the
		// panel's range.
		if !HasSubmissionTable(html) {
			return nil, NewFetchError(KindNotFound, pageIndex,
				eris.New("no submission table on page"))
		}
	}

	return page, nil
}
