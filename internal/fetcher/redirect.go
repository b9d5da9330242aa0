package fetcher

import (
	"context"
	"net/http"
	"strings"
)

// IsClickTracker reports whether a URL is a MercadoLibre click-tracking
// redirect rather than a listing permalink.
func IsClickTracker(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "click") && strings.Contains(lower, "mercadolibre")
}

// ResolveRedirectURL follows a click-tracker URL to its final destination.
// HEAD is tried first, then GET. Resolution failure is never fatal: the
// original URL is returned so the pipeline can continue with it.
func (c *Client) ResolveRedirectURL(ctx context.Context, rawURL string) string {
	if !IsClickTracker(rawURL) {
		return rawURL
	}

	if final, ok := c.followRedirects(ctx, http.MethodHead, rawURL); ok {
		return final
	}
	if final, ok := c.followRedirects(ctx, http.MethodGet, rawURL); ok {
		return final
	}

	c.log.Warn("click-tracker resolution failed, keeping original", "url", rawURL)
	return rawURL
}

// followRedirects issues one request with redirects enabled and returns the
// final URL after the chain.
func (c *Client) followRedirects(ctx context.Context, method, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return "", false
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", false
	}

	return resp.Request.URL.String(), true
}
