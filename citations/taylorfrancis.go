package citations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	xerrors "github.com/researchforge/citekit/errors"
	"github.com/researchforge/citekit/ratelimit"
)

// TaylorFrancisBaseURL is the production endpoint.
const TaylorFrancisBaseURL = "https://api.taylorfrancis.com/v2"

// TaylorFrancis is a client for the Taylor & Francis article API.
type TaylorFrancis struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retrier    *ratelimit.Retrier
}

// TaylorFrancisConfig configures the client. APIKey is required.
type TaylorFrancisConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewTaylorFrancis creates a Taylor & Francis client.
func NewTaylorFrancis(cfg TaylorFrancisConfig, retrier *ratelimit.Retrier) (*TaylorFrancis, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("taylor francis: api key is required")
	}
	if retrier == nil {
		return nil, fmt.Errorf("taylor francis: retrier is required")
	}
	c := &TaylorFrancis{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		retrier:    retrier,
	}
	if c.baseURL == "" {
		c.baseURL = TaylorFrancisBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient
	}
	return c, nil
}

// Name implements Client.
func (c *TaylorFrancis) Name() string {
	return ratelimit.ProviderTaylorFrancis
}

func (c *TaylorFrancis) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// tfArticleList is the wire format of an article search.
type tfArticleList struct {
	Articles []struct {
		Title    string   `json:"title"`
		Authors  []string `json:"authors"`
		DOI      string   `json:"doi"`
		Abstract string   `json:"abstract"`
		Year     int      `json:"year"`
		Journal  string   `json:"journal"`
	} `json:"articles"`
}

// SearchByDOI implements Client.
func (c *TaylorFrancis) SearchByDOI(ctx context.Context, doi string) (*Paper, error) {
	endpoint := fmt.Sprintf("%s/articles?doi=%s", c.baseURL, url.QueryEscape(doi))

	raw, err := ratelimit.Invoke(ctx, c.retrier, c.Name(),
		func(ctx context.Context) (*tfArticleList, error) {
			var list tfArticleList
			if err := getJSON(ctx, c.httpClient, c.Name(), endpoint, c.headers(), &list); err != nil {
				return nil, err
			}
			return &list, nil
		})
	if err != nil {
		return nil, err
	}

	if len(raw.Articles) == 0 {
		return nil, xerrors.NotFound("taylor francis has no record for this DOI",
			xerrors.WithProvider(c.Name()))
	}

	a := raw.Articles[0]
	paper := &Paper{
		Title:    a.Title,
		Authors:  a.Authors,
		DOI:      a.DOI,
		Abstract: a.Abstract,
		Year:     a.Year,
		Venue:    a.Journal,
	}
	if paper.DOI == "" {
		paper.DOI = doi
	}
	return paper, nil
}

// FullText implements Client.
func (c *TaylorFrancis) FullText(ctx context.Context, doi string) (string, error) {
	endpoint := fmt.Sprintf("%s/articles/%s/full-text", c.baseURL, url.PathEscape(doi))

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

var _ Client = (*TaylorFrancis)(nil)
