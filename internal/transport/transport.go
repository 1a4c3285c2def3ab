// Package transport provides the shared HTTP client for upstream API calls.
// One place owns connection tuning, response decompression, request ids and
// the polite client-side rate limit on the API host.
package transport

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// Config holds transport settings tuned for a low-volume polling client.
// This is the single source of truth for connection behavior.
var Config = struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	RequestTimeout        time.Duration
}{
	MaxIdleConns:          10,
	MaxIdleConnsPerHost:   4,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 30 * time.Second,
	DialTimeout:           15 * time.Second,
	KeepAlive:             30 * time.Second,
	RequestTimeout:        45 * time.Second,
}

// hostLimiter keeps the whole process under a gentle request rate against
// the API host, independent of upstream rate-limit accounting.
var hostLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 5)

type roundTripper struct {
	base http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := hostLimiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	if req.Header.Get("X-Request-Id") == "" {
		req.Header.Set("X-Request-Id", uuid.NewString())
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	decodeBody(resp)
	return resp, nil
}

// decodeBody transparently unwraps gzip and brotli response bodies.
func decodeBody(resp *http.Response) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		if gz, err := gzip.NewReader(resp.Body); err == nil {
			resp.Body = &decodedBody{Reader: gz, underlying: resp.Body}
			resp.Header.Del("Content-Encoding")
			resp.ContentLength = -1
		}
	case "br":
		resp.Body = &decodedBody{Reader: brotli.NewReader(resp.Body), underlying: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.ContentLength = -1
	}
}

type decodedBody struct {
	io.Reader
	underlying io.ReadCloser
}

func (b *decodedBody) Close() error {
	if c, ok := b.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return b.underlying.Close()
}

// NewClient builds the shared upstream client.
func NewClient() *http.Client {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   Config.DialTimeout,
			KeepAlive: Config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          Config.MaxIdleConns,
		MaxIdleConnsPerHost:   Config.MaxIdleConnsPerHost,
		IdleConnTimeout:       Config.IdleConnTimeout,
		TLSHandshakeTimeout:   Config.TLSHandshakeTimeout,
		ExpectContinueTimeout: Config.ExpectContinueTimeout,
		ResponseHeaderTimeout: Config.ResponseHeaderTimeout,
		// Decompression is handled by our round tripper so brotli works too.
		DisableCompression: true,
	}
	if err := http2.ConfigureTransport(t); err == nil {
		t.ForceAttemptHTTP2 = true
	}
	return &http.Client{
		Transport: &roundTripper{base: t},
		Timeout:   Config.RequestTimeout,
	}
}

// RetryAfter reads the Retry-After header, honoring both the delta-seconds
// and the HTTP-date form. Defaults to 60s when absent or unparsable.
func RetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	return 60 * time.Second
}

// NewRequest builds a request with the standard API headers applied.
func NewRequest(ctx context.Context, method, url, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "quotapace")
	return req, nil
}
