package analyzer

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/query-yield-analyzer/internal/classifier"
)

// Entry is the yield of one node of the analysed tree, in flattened order.
type Entry struct {
	Index    int    `json:"index"`
	Parent   int    `json:"parent"`
	Operator string `json:"operator"`
	Query    string `json:"query"`
	Yield    int    `json:"yield"`
}

// Result is the outcome of one analysis.
type Result struct {
	ID          string           `json:"id"`
	Platform    string           `json:"platform"`
	Query       string           `json:"query"`
	Yield       int              `json:"yield"`
	Range       classifier.Range `json:"range"`
	Direction   string           `json:"direction,omitempty"`
	Entries     []Entry          `json:"entries"`
	Suggestions []string         `json:"suggestions"`
	Trail       []string         `json:"trail,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
	Phases      map[string]int64 `json:"phases,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Summary is the listing form of a Result.
type Summary struct {
	ID        string           `json:"id"`
	Platform  string           `json:"platform"`
	Query     string           `json:"query"`
	Yield     int              `json:"yield"`
	Range     classifier.Range `json:"range"`
	CreatedAt time.Time        `json:"created_at"`
}

func (r *Result) Summary() Summary {
	return Summary{
		ID:        r.ID,
		Platform:  r.Platform,
		Query:     r.Query,
		Yield:     r.Yield,
		Range:     r.Range,
		CreatedAt: r.CreatedAt,
	}
}
