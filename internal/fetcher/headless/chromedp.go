// Package headless contains a browser-emulating fetch session backed by
// chromedp and headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/fetcher"
	"github.com/JakeFAU/resource-existence/internal/metrics"
)

const defaultNavigationTimeout = 45 * time.Second

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after the body is ready, letting
	// client-side redirects and challenge scripts run.
	SettleDelay time.Duration
	CookieURL   string
	Cookies     []*http.Cookie
}

// Pacer delays requests to respect the remote site's rate limits.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher is a headless browser session. One browser process serves every
// request until DisposeSession replaces it.
type Fetcher struct {
	cfg    Config
	pacer  Pacer
	logger *zap.Logger
	opts   []chromedp.ExecAllocatorOption

	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
	cookies     []*http.Cookie
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first request.
func NewChromedp(cfg Config, pacer Pacer, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout < 0 {
		return nil, fmt.Errorf("navigation timeout must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	f := &Fetcher{
		cfg:     cfg,
		pacer:   pacer,
		logger:  logger.Named("headless_fetcher"),
		opts:    opts,
		cookies: append([]*http.Cookie(nil), cfg.Cookies...),
	}
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), f.opts...)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocCancel()
	return nil
}

// DisposeSession kills the browser process and prepares a fresh one. Cookies
// collected so far are replayed into the new browser.
func (f *Fetcher) DisposeSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocCancel()
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), f.opts...)
	f.logger.Debug("browser session disposed", zap.Int("cookies", len(f.cookies)))
	return nil
}

// Cookies returns the cookies collected for CookieURL.
func (f *Fetcher) Cookies() []*http.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Cookie(nil), f.cookies...)
}

// Get navigates to url and returns the rendered DOM together with the status
// code of the main document response.
func (f *Fetcher) Get(ctx context.Context, url string) (fetcher.Response, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, url); err != nil {
			return fetcher.Response{}, fetcher.Wrap(url, err)
		}
	}

	f.mu.Lock()
	allocator := f.allocator
	cookies := append([]*http.Cookie(nil), f.cookies...)
	f.mu.Unlock()

	taskCtx, taskCancel := chromedp.NewContext(allocator)
	defer taskCancel()
	// Stop the browser task when the caller goes away.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, collected, err := f.runHeadless(taskCtx, url, cookies)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return fetcher.Response{}, wrapNavigationError(url, err)
	}
	if f.cfg.CookieURL != "" {
		f.mu.Lock()
		f.cookies = collected
		f.mu.Unlock()
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	metrics.ObserveFetch(url, status)
	return fetcher.Response{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) runHeadless(
	ctx context.Context,
	url string,
	cookies []*http.Cookie,
) (string, string, []*http.Cookie, error) {
	var (
		html      string
		finalURL  string
		collected []*http.Cookie
	)
	actions := []chromedp.Action{
		f.networkSetupAction(cookies),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.settleDelay()),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if f.cfg.CookieURL != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			got, err := network.GetCookies().WithURLs([]string{f.cfg.CookieURL}).Do(ctx)
			if err != nil {
				return fmt.Errorf("read cookies: %w", err)
			}
			collected = fromNetworkCookies(got)
			return nil
		}))
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", nil, fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, collected, nil
}

// Chrome reports its own network timeouts as page load error text.
var chromeTimeoutCodes = []string{"net::ERR_TIMED_OUT", "net::ERR_CONNECTION_TIMED_OUT"}

func wrapNavigationError(url string, err error) error {
	msg := err.Error()
	for _, code := range chromeTimeoutCodes {
		if strings.Contains(msg, code) {
			return &fetcher.Error{URL: url, Kind: fetcher.KindTimeout, Err: err}
		}
	}
	return fetcher.Wrap(url, err)
}

func (f *Fetcher) networkSetupAction(cookies []*http.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if f.cfg.CookieURL != "" && len(cookies) > 0 {
			if err := network.SetCookies(toCookieParams(f.cfg.CookieURL, cookies)).Do(ctx); err != nil {
				return fmt.Errorf("set cookies: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	// The first document response is the one requested; later ones are
	// challenge redirects.
	if m.status == 0 {
		m.status = int(event.Response.Status)
		m.headers = headers
		m.url = event.Response.URL
	}
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) settleDelay() time.Duration {
	if f.cfg.SettleDelay > 0 {
		return f.cfg.SettleDelay
	}
	return 500 * time.Millisecond
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toCookieParams(url string, cookies []*http.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      url,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return params
}

func fromNetworkCookies(cookies []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0).UTC()
		}
		out = append(out, hc)
	}
	return out
}
