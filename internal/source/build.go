package source

import (
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/pkg/ratelimit"
)

// FromConfig builds the enabled live platform sources. They share limiter,
// keyed per platform.
func FromConfig(cfg config.PlatformsConfig, sampleSize int, limiter *ratelimit.Limiter, hook BreakerHook) []Source {
	var out []Source
	if cfg.PubMed.Enabled {
		out = append(out, NewPubMed(cfg.PubMed, limiter, hook))
	}
	if cfg.Crossref.Enabled {
		out = append(out, NewCrossref(cfg.Crossref, sampleSize, limiter, hook))
	}
	return out
}
