package internal

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// UpstreamOptions configures the HTTP client used to talk to Judge.me.
type UpstreamOptions struct {
	BaseURL    string // e.g. https://judge.me
	ShopDomain string
	Token      string
	UserAgent  string
	RPS        float64
	Timeout    time.Duration // Per request. Zero means no timeout.
}

// NewUpstream creates a new http.Client with middleware appropriate for use
// with Judge.me. Every request is pinned to BaseURL's host, carries our
// credentials and is rate limited. Non-2xx responses surface as errors.
func NewUpstream(opts UpstreamOptions) (*http.Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: missing scheme or host", opts.BaseURL)
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}

	var rt http.RoundTripper = errorProxyTransport{http.DefaultTransport}
	rt = throttledTransport{Limiter: rate.NewLimiter(limit, 1), RoundTripper: rt}
	if opts.UserAgent != "" {
		rt = HeaderTransport{Key: "User-Agent", Value: opts.UserAgent, RoundTripper: rt}
	}
	rt = credentialTransport{
		params: url.Values{
			"shop_domain": []string{opts.ShopDomain},
			"api_token":   []string{opts.Token},
		},
		RoundTripper: rt,
	}
	rt = ScopedTransport{Scheme: base.Scheme, Host: base.Host, RoundTripper: rt}

	return &http.Client{Transport: rt, Timeout: opts.Timeout}, nil
}

// throttledTransport rate limits requests.
type throttledTransport struct {
	http.RoundTripper
	*rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	resp, err := t.RoundTripper.RoundTrip(r)

	// Back off for a minute if we got a 429.
	if statusOf(err) == http.StatusTooManyRequests {
		slog.Default().Warn("backing off after 429", "limit", t.Limiter.Limit(), "tokens", t.Limiter.Tokens())
		orig := t.Limiter.Limit()
		t.Limiter.SetLimit(rate.Every(time.Second))              // 1RPS
		t.Limiter.SetLimitAt(time.Now().Add(time.Minute), orig) // Restore
	}

	return resp, err
}

// ScopedTransport restricts requests to a particular scheme and host.
type ScopedTransport struct {
	Scheme string
	Host   string
	http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t ScopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = t.Scheme
	r.URL.Host = t.Host
	r.Host = t.Host
	return t.RoundTripper.RoundTrip(r)
}

// credentialTransport adds opaque credentials as query parameters. Best used
// with a ScopedTransport so they can't leak to another host.
type credentialTransport struct {
	params url.Values
	http.RoundTripper
}

func (t credentialTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	q := r.URL.Query()
	for k, v := range t.params {
		q[k] = v
	}
	r.URL.RawQuery = q.Encode()
	return t.RoundTripper.RoundTrip(r)
}

// HeaderTransport sets a header on all requests.
type HeaderTransport struct {
	Key   string
	Value string
	http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(t.Key, t.Value)
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport returns a statusErr for any non-2xx response so callers
// only ever see successful bodies.
type errorProxyTransport struct {
	http.RoundTripper
}

func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()

	return nil, statusErr(resp.StatusCode)
}
