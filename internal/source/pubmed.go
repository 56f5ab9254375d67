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

const PlatformPubMed = "pubmed"

// PubMed counts results with the NCBI E-utilities esearch endpoint, which
// evaluates boolean queries directly.
type PubMed struct {
	client  *httpClient
	baseURL string
	apiKey  string
}

func NewPubMed(cfg config.PlatformConfig, limiter *ratelimit.Limiter, hook BreakerHook) *PubMed {
	return &PubMed{
		client:  newHTTPClient(PlatformPubMed, cfg, limiter, hook),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

func (p *PubMed) Platform() string { return PlatformPubMed }

func (p *PubMed) SupportsBoolean() bool { return true }

type esearchResponse struct {
	Result struct {
		Count     string   `json:"count"`
		Error     string   `json:"ERROR"`
		ErrorList struct {
			PhraseNotFound []string `json:"phrasesnotfound"`
		} `json:"errorlist"`
	} `json:"esearchresult"`
}

func (p *PubMed) Fetch(ctx context.Context, node *query.Node) (estimator.Result, error) {
	term := node.String(query.SyntaxPubMed)
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("rettype", "count")
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	var resp esearchResponse
	if err := p.client.getJSON(ctx, p.baseURL+"/esearch.fcgi?"+params.Encode(), &resp); err != nil {
		return estimator.Result{}, err
	}
	if resp.Result.Error != "" {
		return estimator.Result{}, fmt.Errorf("%w: pubmed: %s", apperrors.ErrInvalidQuery, resp.Result.Error)
	}
	if resp.Result.Count == "" {
		return estimator.Result{}, fmt.Errorf("%w: pubmed returned no count for %q", apperrors.ErrNoResults, term)
	}
	count, err := strconv.Atoi(resp.Result.Count)
	if err != nil {
		return estimator.Result{}, fmt.Errorf("%w: pubmed count %q: %v", apperrors.ErrUpstream, resp.Result.Count, err)
	}
	return estimator.Result{Count: count}, nil
}
