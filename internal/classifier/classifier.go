// Package classifier maps a result count onto the five ordered yield ranges
// used to judge a systematic-review search. The default thresholds follow
// the PRISMA recommendation of 200 to 2000 records.
package classifier

import "fmt"

// Range is a yield category, ordered from too few to too many results.
type Range int

const (
	Restrictive Range = iota
	Low
	Optimal
	High
	Dynamite
)

func (r Range) String() string {
	switch r {
	case Restrictive:
		return "restrictive"
	case Low:
		return "low"
	case Optimal:
		return "optimal"
	case High:
		return "high"
	case Dynamite:
		return "dynamite"
	default:
		return "unknown"
	}
}

// ParseRange is the inverse of Range.String.
func ParseRange(s string) (Range, error) {
	for r := Restrictive; r <= Dynamite; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown yield range %q", s)
}

// TooHigh reports whether r lies above the optimal band.
func (r Range) TooHigh() bool {
	return r == High || r == Dynamite
}

// TooLow reports whether r lies below the optimal band.
func (r Range) TooLow() bool {
	return r == Low || r == Restrictive
}

// MarshalText lets Range travel as its name in JSON.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Range) UnmarshalText(text []byte) error {
	parsed, err := ParseRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Thresholds bound the ranges. They must satisfy
// LowerLimit < LowerOptimum < UpperOptimum < UpperLimit.
type Thresholds struct {
	LowerLimit   int `json:"lower_limit" yaml:"lowerLimit"`
	LowerOptimum int `json:"lower_optimum" yaml:"lowerOptimum"`
	UpperOptimum int `json:"upper_optimum" yaml:"upperOptimum"`
	UpperLimit   int `json:"upper_limit" yaml:"upperLimit"`
}

// Default holds the PRISMA thresholds.
var Default = Thresholds{
	LowerLimit:   50,
	LowerOptimum: 200,
	UpperOptimum: 2000,
	UpperLimit:   2500,
}

// Validate checks the ordering invariant.
func (t Thresholds) Validate() error {
	if t.LowerLimit < 0 {
		return fmt.Errorf("lower limit must be non-negative, got %d", t.LowerLimit)
	}
	if !(t.LowerLimit < t.LowerOptimum && t.LowerOptimum < t.UpperOptimum && t.UpperOptimum < t.UpperLimit) {
		return fmt.Errorf("thresholds must be strictly increasing, got %d < %d < %d < %d",
			t.LowerLimit, t.LowerOptimum, t.UpperOptimum, t.UpperLimit)
	}
	return nil
}

// Classify returns the single range containing y:
//
//	restrictive  y <= LowerLimit
//	low          LowerLimit < y < LowerOptimum
//	optimal      LowerOptimum <= y <= UpperOptimum
//	high         UpperOptimum < y < UpperLimit
//	dynamite     y >= UpperLimit
func (t Thresholds) Classify(y int) Range {
	switch {
	case y <= t.LowerLimit:
		return Restrictive
	case y < t.LowerOptimum:
		return Low
	case y <= t.UpperOptimum:
		return Optimal
	case y < t.UpperLimit:
		return High
	default:
		return Dynamite
	}
}

func (t Thresholds) IsRestrictive(y int) bool { return t.Classify(y) == Restrictive }
func (t Thresholds) IsLow(y int) bool         { return t.Classify(y) == Low }
func (t Thresholds) IsOptimal(y int) bool     { return t.Classify(y) == Optimal }
func (t Thresholds) IsHigh(y int) bool        { return t.Classify(y) == High }
func (t Thresholds) IsDynamite(y int) bool    { return t.Classify(y) == Dynamite }

// Classify applies the default thresholds.
func Classify(y int) Range {
	return Default.Classify(y)
}
