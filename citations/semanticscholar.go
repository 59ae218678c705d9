package citations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/ratelimit"
)

// SemanticScholarBaseURL is the production endpoint.
const SemanticScholarBaseURL = "https://api.semanticscholar.org/v1"

// SemanticScholar is a client for the Semantic Scholar paper API.
// The API key is optional; unauthenticated callers share a public quota.
type SemanticScholar struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retrier    *ratelimit.Retrier
}

// SemanticScholarConfig configures the client.
type SemanticScholarConfig struct {
	APIKey     string
	BaseURL    string       // defaults to SemanticScholarBaseURL
	HTTPClient *http.Client // defaults to a 30s-timeout client
}

// NewSemanticScholar creates a Semantic Scholar client.
func NewSemanticScholar(cfg SemanticScholarConfig, retrier *ratelimit.Retrier) (*SemanticScholar, error) {
	if retrier == nil {
		return nil, fmt.Errorf("semantic scholar: retrier is required")
	}
	c := &SemanticScholar{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		retrier:    retrier,
	}
	if c.baseURL == "" {
		c.baseURL = SemanticScholarBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient
	}
	return c, nil
}

// Name implements Client.
func (c *SemanticScholar) Name() string {
	return ratelimit.ProviderSemanticScholar
}

func (c *SemanticScholar) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": c.apiKey}
}

// s2Paper is the wire format of a paper lookup.
type s2Paper struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	DOI      string `json:"doi"`
	Year     int    `json:"year"`
	Venue    string `json:"venue"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// SearchByDOI implements Client.
func (c *SemanticScholar) SearchByDOI(ctx context.Context, doi string) (*Paper, error) {
	endpoint := fmt.Sprintf("%s/paper/%s", c.baseURL, url.PathEscape(doi))

	raw, err := ratelimit.Invoke(ctx, c.retrier, c.Name(),
		func(ctx context.Context) (*s2Paper, error) {
			var p s2Paper
			if err := getJSON(ctx, c.httpClient, c.Name(), endpoint, c.headers(), &p); err != nil {
				return nil, err
			}
			return &p, nil
		})
	if err != nil {
		return nil, err
	}

	paper := &Paper{
		Title:    raw.Title,
		Abstract: raw.Abstract,
		DOI:      raw.DOI,
		Year:     raw.Year,
		Venue:    raw.Venue,
	}
	if paper.DOI == "" {
		paper.DOI = doi
	}
	for _, a := range raw.Authors {
		paper.Authors = append(paper.Authors, a.Name)
	}
	return paper, nil
}

// FullText implements Client.
func (c *SemanticScholar) FullText(ctx context.Context, doi string) (string, error) {
	endpoint := fmt.Sprintf("%s/paper/%s/fulltext", c.baseURL, url.PathEscape(doi))

	return ratelimit.Invoke(ctx, c.retrier, c.Name(),
		func(ctx context.Context) (string, error) {
			var out struct {
				FullText string `json:"fullText"`
			}
			if err := getJSON(ctx, c.httpClient, c.Name(), endpoint, c.headers(), &out); err != nil {
				return "", err
			}
			if out.FullText == "" {
				return "", xerrors.NotFound("no full text available",
					xerrors.WithProvider(c.Name()))
			}
			return out.FullText, nil
		})
}

var _ Client = (*SemanticScholar)(nil)
