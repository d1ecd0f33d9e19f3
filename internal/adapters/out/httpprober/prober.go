// Package httpprober implements the readiness prober over HTTP.
package httpprober

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnema/zerowrap"
)

// DefaultTimeout bounds a single probe request.
const DefaultTimeout = 2 * time.Second

const userAgent = "sandboxer-readiness/1.0"

// Prober issues readiness GET requests against a sandbox endpoint.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// Option configures the Prober.
type Option func(*Prober)

// WithTimeout sets the per request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		p.client = client
	}
}

// New creates a prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		p.client = &http.Client{
			Timeout: p.timeout,
			Transport: &http.Transport{
				// #nosec G402 - a DinD engine API started with TLS uses
				// certificates generated inside the sandbox. Only reachability
				// is checked.
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
				},
				DisableKeepAlives: true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	return p
}

// Probe sends a GET request to url and returns the status code and the
// response time in milliseconds.
func (p *Prober) Probe(ctx context.Context, url string) (int, int64, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "adapter",
		zerowrap.FieldAdapter: "httpprober",
		zerowrap.FieldAction:  "Probe",
	})
	log := zerowrap.FromCtx(ctx)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("readiness probe failed")
		return 0, elapsed, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	log.Debug().Str("url", url).Int("status", resp.StatusCode).Int64("elapsed_ms", elapsed).Msg("readiness probe")
	return resp.StatusCode, elapsed, nil
}
