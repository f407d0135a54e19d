// Package network builds the shared HTTP client used for media downloads.
// Renderer collaborator calls go through http.Execute, which builds its own
// client.
package network

import (
	"net/http"
	"time"

	"github.com/silberengel/epaperpub/common"
)

const defaultUserAgent = "epaperpub/1.0"

// NewClient returns an *http.Client with the given overall timeout, a
// bounded redirect chain, and a descriptive User-Agent on every request.
// Per-call time budgets (media's 10s/30s) are still applied via context, so timeout here is a safety ceiling rather
// than the operative deadline.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			common.Logger.WithField("url", req.URL.String()).Debug("following redirect")
			return nil
		},
		Transport: &userAgentTransport{base: http.DefaultTransport},
	}
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	return t.base.RoundTrip(req)
}
