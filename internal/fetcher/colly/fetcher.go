// Package collyfetcher implements the page fetch session using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/fetcher"
	"github.com/JakeFAU/resource-existence/internal/metrics"
)

const defaultTimeout = 20 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// CookieURL scopes the cookies loaded into and read back from the session.
	CookieURL string
	Cookies   []*http.Cookie
}

// Pacer delays requests to respect the remote site's rate limits.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher is an HTTP fetch session backed by a Colly collector. Cookies are
// shared by every request of the session and survive DisposeSession.
type Fetcher struct {
	cfg    Config
	pacer  Pacer
	logger *zap.Logger

	mu            sync.Mutex
	transport     *http.Transport
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. pacer and logger may be nil.
func New(cfg Config, pacer Pacer, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	f := &Fetcher{cfg: cfg, pacer: pacer, logger: logger.Named("colly_fetcher")}
	f.baseCollector, f.transport = f.newCollector()
	if cfg.CookieURL != "" && len(cfg.Cookies) > 0 {
		if err := f.baseCollector.SetCookies(cfg.CookieURL, cfg.Cookies); err != nil {
			return nil, fmt.Errorf("load session cookies: %w", err)
		}
	}
	return f, nil
}

// Get performs a single GET. HTTP error statuses are returned as responses;
// only transport failures produce an error, always as *fetcher.Error.
func (f *Fetcher) Get(ctx context.Context, url string) (fetcher.Response, error) {
	if f.pacer != nil {
		if err := f.pacer.Wait(ctx, url); err != nil {
			return fetcher.Response{}, fetcher.Wrap(url, err)
		}
	}
	var (
		result   fetcher.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return fetcher.Response{}, fetcher.Wrap(url, err)
	}
	metrics.ObserveFetch(url, result.StatusCode)
	return result, nil
}

// DisposeSession drops pooled connections and starts a fresh collector,
// carrying the session cookies over.
func (f *Fetcher) DisposeSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cookies []*http.Cookie
	if f.cfg.CookieURL != "" {
		cookies = f.baseCollector.Cookies(f.cfg.CookieURL)
	}
	f.transport.CloseIdleConnections()
	f.baseCollector, f.transport = f.newCollector()
	if len(cookies) > 0 {
		if err := f.baseCollector.SetCookies(f.cfg.CookieURL, cookies); err != nil {
			return fmt.Errorf("restore session cookies: %w", err)
		}
	}
	f.logger.Debug("fetch session disposed", zap.Int("cookies", len(cookies)))
	return nil
}

// Cookies returns the session cookies for CookieURL.
func (f *Fetcher) Cookies() []*http.Cookie {
	if f.cfg.CookieURL == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseCollector.Cookies(f.cfg.CookieURL)
}

// Close releases pooled connections.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transport.CloseIdleConnections()
	return nil
}

func (f *Fetcher) newCollector() (*colly.Collector, *http.Transport) {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport()
	c.WithTransport(transport)
	c.IgnoreRobotsTxt = true
	// Error statuses (e.g. 503 soft blocks, 404) are verdict inputs, not failures.
	c.ParseHTTPErrorResponse = true
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.SetRequestTimeout(f.cfg.Timeout)
	return c, transport
}

func (f *Fetcher) buildCollector(start time.Time, result *fetcher.Response, fetchErr *error) *colly.Collector {
	f.mu.Lock()
	collector := f.baseCollector.Clone()
	f.mu.Unlock()
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetcher.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
