package httputil

import (
	"fmt"
	"net/http"
	"time"
)

// Transport retries requests that fail with a transport error, 429 or 5xx.
// JSON-RPC POST bodies are replayed through Request.GetBody, which
// http.NewRequest sets for in-memory bodies.
type Transport struct {
	Base  http.RoundTripper
	Retry RetryConfig
}

func NewClient(timeout time.Duration, retry RetryConfig) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Base: http.DefaultTransport, Retry: retry},
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Body != nil && req.GetBody == nil {
		// Body cannot be replayed; one attempt only.
		return base.RoundTrip(req)
	}

	first := true
	return Do(req.Context(), base.RoundTrip, t.Retry, func() (*http.Request, error) {
		if first {
			first = false
			return req, nil
		}
		clone := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("replay body: %w", err)
			}
			clone.Body = body
		}
		return clone, nil
	})
}
