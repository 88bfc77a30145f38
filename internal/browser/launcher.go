// Package browser drives a headless Chrome tab as a spot.Document.
package browser

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	defaultTimeout = 25 * time.Second
	defaultWidth   = 1280
	defaultHeight  = 800
)

// Config selects how Chrome is reached.
type Config struct {
	// RemoteURL is a DevTools websocket URL of an already running browser.
	// Empty launches a local headless Chrome.
	RemoteURL string
	Logger    *log.Logger
}

// PageOptions control navigation and the wait before a page counts as loaded.
type PageOptions struct {
	Header          http.Header
	Cookies         []*http.Cookie
	WaitSelector    string
	WaitNetworkIdle time.Duration
	WaitAfterLoad   time.Duration
	Timeout         time.Duration
	Width           int
	Height          int
}

// Launcher owns the browser allocator. Pages opened from it share one
// browser process.
type Launcher struct {
	allocator context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
}

// NewLauncher prepares an allocator; Chrome itself starts with the first page.
func NewLauncher(cfg Config) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if remote := strings.TrimSpace(cfg.RemoteURL); remote != "" {
		allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), remote)
		return &Launcher{allocator: allocCtx, cancel: cancel, logger: logger}
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Launcher{allocator: allocCtx, cancel: cancel, logger: logger}
}

// Close shuts the browser down.
func (l *Launcher) Close() {
	if l.cancel != nil {
		l.cancel()
	}
}

// Open navigates a new tab to target and waits until it is loaded. The
// caller must Close the page.
func (l *Launcher) Open(ctx context.Context, target string, opt PageOptions) (*Page, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("browser: empty target url")
	}
	tabCtx, cancelTab := chromedp.NewContext(l.allocator)
	// allocate the tab on its own context so the load timeout below does
	// not close it
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		return nil, fmt.Errorf("browser: start tab: %w", err)
	}
	p := newPage(tabCtx, cancelTab, l.logger)

	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	loadCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-loadCtx.Done():
			}
		}()
	}

	var mu sync.Mutex
	activeRequests := 0
	lastActivity := time.Now()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			mu.Lock()
			activeRequests++
			lastActivity = time.Now()
			mu.Unlock()
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			mu.Lock()
			if activeRequests > 0 {
				activeRequests--
			}
			lastActivity = time.Now()
			mu.Unlock()
		}
	})

	width, height := opt.Width, opt.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false),
	}
	actions = append(actions, headerActions(opt.Header)...)
	if act := cookieAction(target, opt.Cookies); act != nil {
		actions = append(actions, act)
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if sel := strings.TrimSpace(opt.WaitSelector); sel != "" {
		actions = append(actions, chromedp.WaitVisible(sel, chromedp.ByQuery))
	}
	if opt.WaitNetworkIdle > 0 {
		waitDur := opt.WaitNetworkIdle
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			ticker := time.NewTicker(50 * time.Millisecond)
			defer ticker.Stop()
			for {
				mu.Lock()
				active := activeRequests
				elapsed := time.Since(lastActivity)
				mu.Unlock()
				if active == 0 && elapsed >= waitDur {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		}))
	}
	if opt.WaitAfterLoad > 0 {
		actions = append(actions, chromedp.Sleep(opt.WaitAfterLoad))
	}

	start := time.Now()
	if err := chromedp.Run(loadCtx, actions...); err != nil {
		p.Close()
		return nil, fmt.Errorf("browser: load %s: %w", target, err)
	}
	if err := p.bind(loadCtx); err != nil {
		p.Close()
		return nil, err
	}
	l.logger.Printf("BROWSER loaded %s in %s", target, time.Since(start).Round(time.Millisecond))
	return p, nil
}

func headerActions(hdr http.Header) []chromedp.Action {
	requestHeaders := cloneHeader(hdr)
	var actions []chromedp.Action
	if ua := requestHeaders.Get("User-Agent"); ua != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}))
		requestHeaders.Del("User-Agent")
	}
	extra := network.Headers{}
	for k, vs := range requestHeaders {
		name := http.CanonicalHeaderKey(k)
		if strings.EqualFold(name, "Content-Length") || len(vs) == 0 {
			continue
		}
		extra[name] = strings.Join(vs, ", ")
	}
	if len(extra) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(extra).Do(ctx)
		}))
	}
	return actions
}

func cookieAction(target string, cookies []*http.Cookie) chromedp.Action {
	u, err := url.Parse(target)
	if err != nil || len(cookies) == 0 {
		return nil
	}
	params := cookieParams(cookies, u)
	if len(params) == 0 {
		return nil
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	})
}

func cookieParams(cookies []*http.Cookie, u *url.URL) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   cookieDomainForParam(c, u),
			Path:     cookiePathForParam(c),
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires.UTC())
			param.Expires = &exp
		}
		params = append(params, param)
	}
	return params
}

func cookieDomainForParam(c *http.Cookie, u *url.URL) string {
	if c.Domain != "" {
		return c.Domain
	}
	if u != nil {
		return u.Hostname()
	}
	return ""
}

func cookiePathForParam(c *http.Cookie) string {
	if c.Path != "" {
		return c.Path
	}
	return "/"
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	out := http.Header{}
	for k, vs := range h {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}
