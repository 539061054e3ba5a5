// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Limiter gates requests per host before they are sent.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	Limiter      Limiter
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

type outcome struct {
	status int
	body   []byte
	err    error
}

// Fetch retrieves url and returns its body, gunzipped when the payload is
// gzip-compressed. Failures are reported as *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, url)
	status := "ok"
	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) {
		status = string(fetchErr.Kind)
	}
	metrics.ObserveFetch(url, status, len(body), time.Since(start))
	return body, err
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
			return nil, classify(url, err)
		}
	}

	var result outcome
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &result)

	if err := f.runCollector(ctx, collector, url); err != nil {
		if ctx.Err() != nil {
			// the visit goroutine may still write result
			return nil, classify(url, err)
		}
		if result.err == nil {
			result.err = err
		}
	}
	if result.status >= http.StatusBadRequest {
		return nil, &crawler.FetchError{URL: url, Kind: crawler.FetchHTTPStatus, StatusCode: result.status, Err: result.err}
	}
	if result.err != nil {
		return nil, classify(url, result.err)
	}

	body, err := maybeGunzip(result.body)
	if err != nil {
		return nil, &crawler.FetchError{URL: url, Kind: crawler.FetchNetwork, Err: err}
	}
	return body, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	// robots.txt is fetched explicitly for Sitemap: directives
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *outcome) {
	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
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
		return nil
	}
}

// classify maps transport errors onto fetch error kinds.
func classify(url string, err error) *crawler.FetchError {
	kind := crawler.FetchNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = crawler.FetchTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = crawler.FetchTimeout
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		kind = crawler.FetchTimeout
	}
	return &crawler.FetchError{URL: url, Kind: kind, Err: err}
}

var gzipMagic = []byte{0x1f, 0x8b}

// maybeGunzip decompresses gzip payloads. Colly already inflates responses
// served with a gzip Content-Encoding or an .xml.gz path, so only bodies that
// still carry the gzip magic are touched.
func maybeGunzip(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip body: %w", err)
	}
	defer func() {
		_ = zr.Close()
	}()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip body: %w", err)
	}
	return out, nil
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
