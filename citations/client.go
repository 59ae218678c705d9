// Package citations provides clients for bibliographic APIs (Semantic
// Scholar, Scopus, Taylor & Francis). All outbound calls are paced and
// retried by the ratelimit package under each service's provider key.
package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	xerrors "github.com/researchforge/citekit/errors"
)

// Paper holds the metadata citekit cares about, normalized across services.
type Paper struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	DOI      string   `json:"doi"`
	Abstract string   `json:"abstract,omitempty"`
	Year     int      `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
}

// Client is the interface implemented by each citation service.
type Client interface {
	// Name returns the provider key used for rate limiting.
	Name() string

	// SearchByDOI looks up a paper's metadata by DOI.
	SearchByDOI(ctx context.Context, doi string) (*Paper, error)

	// FullText retrieves the paper's full text if the service has it.
	FullText(ctx context.Context, doi string) (string, error)
}

// defaultHTTPClient bounds a single citation API call.
var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// getJSON performs a GET against a citation service and decodes the JSON
// body into out. Rate-limit and not-found responses come back as structured
// errors so the retry layer and callers can classify them by value.
func getJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return xerrors.WrapWithCode(err, xerrors.ErrCodeNetworkErr,
			fmt.Sprintf("%s unreachable", provider), xerrors.WithProvider(provider))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return xerrors.RateLimited(fmt.Sprintf("%s rejected the request", provider),
			xerrors.WithProvider(provider),
			xerrors.WithCause(fmt.Errorf("HTTP 429: %s", string(body))))
	case resp.StatusCode == http.StatusNotFound:
		return xerrors.NotFound(fmt.Sprintf("%s has no record for this DOI", provider),
			xerrors.WithProvider(provider))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return xerrors.New(xerrors.ErrCodeUnauthorized,
			fmt.Sprintf("%s rejected the API key", provider), xerrors.WithProvider(provider))
	default:
		return fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", provider, err)
	}
	return nil
}
