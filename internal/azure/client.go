// Package azure implements the Computer Vision collaborators: the Read API
// (asynchronous OCR jobs) and the image analysis API (tags, objects, brands,
// captions).
package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is a minimal HTTP client for the two Computer Vision endpoints this
// pipeline uses. One client serves both so they share the connection pool and
// the request budget.
type Client struct {
	baseURL *url.URL
	key     string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient constructs a client for a Computer Vision resource endpoint,
// e.g. "https://<resource>.cognitiveservices.azure.com".
//
// rps > 0 applies a global request rate limit shared by OCR submits, polls
// and analysis calls.
func NewClient(endpoint, key string, rps float64) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("vision endpoint is required")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("vision key is required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse vision endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("vision endpoint must include a host (got %q)", endpoint)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as
	// a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Client{
		baseURL: u,
		key:     strings.TrimSpace(key),
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
	}, nil
}

func (c *Client) resolve(p string) *url.URL {
	ref := &url.URL{Path: p}
	return c.baseURL.ResolveReference(ref)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	return c.http.Do(req)
}
