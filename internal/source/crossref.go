package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/estimator"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/query"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/ratelimit"
)

const PlatformCrossref = "crossref"

// Crossref queries the /works endpoint. It has no boolean operators, so it
// only serves single terms and returns a DOI sample alongside the total.
type Crossref struct {
	client     *httpClient
	baseURL    string
	mailto     string
	sampleSize int
}

func NewCrossref(cfg config.PlatformConfig, sampleSize int, limiter *ratelimit.Limiter, hook BreakerHook) *Crossref {
	if sampleSize <= 0 {
		sampleSize = estimator.DefaultSampleSize
	}
	return &Crossref{
		client:     newHTTPClient(PlatformCrossref, cfg, limiter, hook),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		mailto:     cfg.Mailto,
		sampleSize: sampleSize,
	}
}

func (c *Crossref) Platform() string { return PlatformCrossref }

func (c *Crossref) SupportsBoolean() bool { return false }

type worksResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int `json:"total-results"`
		Items        []struct {
			DOI string `json:"DOI"`
		} `json:"items"`
	} `json:"message"`
}

func (c *Crossref) Fetch(ctx context.Context, node *query.Node) (estimator.Result, error) {
	if !node.IsLeaf() {
		return estimator.Result{}, fmt.Errorf("%w: crossref cannot evaluate %s expressions", apperrors.ErrInvalidQuery, node.Operator)
	}
	params := url.Values{}
	params.Set(fieldParam(node.SearchField), node.String(query.SyntaxCrossref))
	params.Set("rows", strconv.Itoa(c.sampleSize))
	params.Set("select", "DOI")
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	var resp worksResponse
	if err := c.client.getJSON(ctx, c.baseURL+"/works?"+params.Encode(), &resp); err != nil {
		return estimator.Result{}, err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return estimator.Result{}, fmt.Errorf("%w: crossref status %q", apperrors.ErrUpstream, resp.Status)
	}
	dois := make([]string, 0, len(resp.Message.Items))
	for _, item := range resp.Message.Items {
		dois = append(dois, item.DOI)
	}
	return estimator.Result{Count: resp.Message.TotalResults, Identifiers: dois}, nil
}

// fieldParam maps a search field onto the closest Crossref field query.
func fieldParam(field string) string {
	switch strings.ToLower(field) {
	case query.FieldAuthor:
		return "query.author"
	case query.FieldTitle, query.FieldAbstract, query.FieldTiAb:
		return "query.bibliographic"
	default:
		return "query"
	}
}
