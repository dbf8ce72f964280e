// Package crawler fetches pages over plain HTTP. It backs the static browser
// driver and the single-post extract command.
package crawler

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotHTML = errors.New("non-html content")

// StatusError is returned for responses outside 2xx/3xx.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.Code, e.URL)
}

type Options struct {
	Timeout     time.Duration
	DialTimeout time.Duration
	SizeCap     int64
	UserAgent   string
	Language    string
}

func DefaultOptions() Options {
	return Options{
		Timeout:     30 * time.Second,
		DialTimeout: 5 * time.Second,
		SizeCap:     5 << 20,
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		Language:    "es-CL,es;q=0.9,en;q=0.8",
	}
}

type HTTPClient struct {
	client *http.Client
	opts   Options
}

// Response is a fetched HTML document. Body is capped at the client's size
// limit and must be closed.
type Response struct {
	Body        io.ReadCloser
	FinalURL    string
	ContentType string
	Elapsed     time.Duration
}

func NewHTTPClient(opts Options) *HTTPClient {
	d := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = d.DialTimeout
	}
	if opts.SizeCap <= 0 {
		opts.SizeCap = d.SizeCap
	}
	if opts.UserAgent == "" {
		opts.UserAgent = d.UserAgent
	}
	if opts.Language == "" {
		opts.Language = d.Language
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

func (h *HTTPClient) Get(ctx context.Context, rawURL string) (*Response, error) {
	start := time.Now()
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Accept-Language", h.opts.Language)
	req.Header.Set("User-Agent", h.opts.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	// servers that omit the header are given the benefit of the doubt
	if mediaType != "" && !strings.Contains(mediaType, "text/html") && !strings.Contains(mediaType, "application/xhtml+xml") {
		resp.Body.Close()
		return nil, ErrNotHTML
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		body = gz
	}

	return &Response{
		Body:        cappedBody{Reader: io.LimitReader(body, h.opts.SizeCap), closer: resp.Body},
		FinalURL:    resp.Request.URL.String(),
		ContentType: contentType,
		Elapsed:     time.Since(start),
	}, nil
}

// Fetch returns only the body and content type.
func (h *HTTPClient) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	resp, err := h.Get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.ContentType, nil
}

type cappedBody struct {
	io.Reader
	closer io.Closer
}

func (c cappedBody) Close() error { return c.closer.Close() }
