package citations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/ratelimit"
)

// ScopusBaseURL is the production endpoint for Elsevier's content APIs.
const ScopusBaseURL = "https://api.elsevier.com/content"

// Scopus is a client for the Elsevier Scopus abstract and article APIs.
type Scopus struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retrier    *ratelimit.Retrier
}

// ScopusConfig configures the client. APIKey is required.
type ScopusConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewScopus creates a Scopus client.
func NewScopus(cfg ScopusConfig, retrier *ratelimit.Retrier) (*Scopus, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scopus: api key is required")
	}
	if retrier == nil {
		return nil, fmt.Errorf("scopus: retrier is required")
	}
	c := &Scopus{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		retrier:    retrier,
	}
	if c.baseURL == "" {
		c.baseURL = ScopusBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient
	}
	return c, nil
}

// Name implements Client.
func (c *Scopus) Name() string {
	return ratelimit.ProviderScopus
}

func (c *Scopus) headers() map[string]string {
	return map[string]string{"X-ELS-APIKey": c.apiKey}
}

// scopusAbstract is the subset of the abstract retrieval response we use.
type scopusAbstract struct {
	Response struct {
		CoreData struct {
			Title     string `json:"dc:title"`
			Creator   string `json:"dc:creator"`
			DOI       string `json:"prism:doi"`
			CoverDate string `json:"prism:coverDate"`
			Venue     string `json:"prism:publicationName"`
			Abstract  string `json:"dc:description"`
		} `json:"coredata"`
	} `json:"abstracts-retrieval-response"`
}

// SearchByDOI implements Client.
func (c *Scopus) SearchByDOI(ctx context.Context, doi string) (*Paper, error) {
	endpoint := fmt.Sprintf("%s/abstract/doi/%s?view=FULL", c.baseURL, url.PathEscape(doi))

	raw, err := ratelimit.Invoke(ctx, c.retrier, c.Name(),
		func(ctx context.Context) (*scopusAbstract, error) {
			var p scopusAbstract
			if err := getJSON(ctx, c.httpClient, c.Name(), endpoint, c.headers(), &p); err != nil {
				return nil, err
			}
			return &p, nil
		})
	if err != nil {
		return nil, err
	}

	core := raw.Response.CoreData
	paper := &Paper{
		Title:    core.Title,
		DOI:      core.DOI,
		Abstract: core.Abstract,
		Venue:    core.Venue,
	}
	if paper.DOI == "" {
		paper.DOI = doi
	}
	if core.Creator != "" {
		paper.Authors = []string{core.Creator}
	}
	// Cover dates look like 2024-03-15; the year is all we keep.
	if len(core.CoverDate) >= 4 {
		if year, convErr := strconv.Atoi(core.CoverDate[:4]); convErr == nil {
			paper.Year = year
		}
	}
	return paper, nil
}

// scopusFullText is the subset of the article retrieval response we use.
type scopusFullText struct {
	Response struct {
		OriginalText string `json:"originalText"`
	} `json:"full-text-retrieval-response"`
}

// FullText implements Client.
func (c *Scopus) FullText(ctx context.Context, doi string) (string, error) {
	endpoint := fmt.Sprintf("%s/article/doi/%s?view=FULL", c.baseURL, url.PathEscape(doi))

	return ratelimit.Invoke(ctx, c.retrier, c.Name(),
		func(ctx context.Context) (string, error) {
			var out scopusFullText
			if err := getJSON(ctx, c.httpClient, c.Name(), endpoint, c.headers(), &out); err != nil {
				return "", err
			}
			text := strings.TrimSpace(out.Response.OriginalText)
			if text == "" {
				return "", xerrors.NotFound("no full text available",
					xerrors.WithProvider(c.Name()))
			}
			return text, nil
		})
}

var _ Client = (*Scopus)(nil)
