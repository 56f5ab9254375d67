package classifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyExactlyOneRange(t *testing.T) {
	th := Default
	for y := 0; y <= 5000; y++ {
		hits := 0
		for _, pred := range []func(int) bool{th.IsRestrictive, th.IsLow, th.IsOptimal, th.IsHigh, th.IsDynamite} {
			if pred(y) {
				hits++
			}
		}
		require.Equal(t, 1, hits, "yield %d", y)
	}
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		yield int
		want  Range
	}{
		{0, Restrictive},
		{50, Restrictive},
		{51, Low},
		{199, Low},
		{200, Optimal},
		{2000, Optimal},
		{2001, High},
		{2499, High},
		{2500, Dynamite},
		{1 << 30, Dynamite},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.yield), "yield %d", tt.yield)
	}
}

func TestRangeDirection(t *testing.T) {
	assert.True(t, Restrictive.TooLow())
	assert.True(t, Low.TooLow())
	assert.False(t, Optimal.TooLow())
	assert.False(t, Optimal.TooHigh())
	assert.True(t, High.TooHigh())
	assert.True(t, Dynamite.TooHigh())
}

func TestRangeText(t *testing.T) {
	data, err := json.Marshal(map[string]Range{"range": High})
	require.NoError(t, err)
	assert.JSONEq(t, `{"range":"high"}`, string(data))

	var out map[string]Range
	require.NoError(t, json.Unmarshal([]byte(`{"range":"dynamite"}`), &out))
	assert.Equal(t, Dynamite, out["range"])

	_, err = ParseRange("huge")
	assert.Error(t, err)
	assert.Equal(t, "unknown", Range(9).String())
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, Default.Validate())
	assert.Error(t, Thresholds{LowerLimit: 10, LowerOptimum: 10, UpperOptimum: 20, UpperLimit: 30}.Validate())
	assert.Error(t, Thresholds{LowerLimit: -1, LowerOptimum: 10, UpperOptimum: 20, UpperLimit: 30}.Validate())
	assert.Error(t, Thresholds{LowerLimit: 1, LowerOptimum: 10, UpperOptimum: 40, UpperLimit: 30}.Validate())
}

func TestCustomThresholds(t *testing.T) {
	th := Thresholds{LowerLimit: 5, LowerOptimum: 10, UpperOptimum: 20, UpperLimit: 30}
	assert.Equal(t, Restrictive, th.Classify(5))
	assert.Equal(t, Low, th.Classify(9))
	assert.Equal(t, Optimal, th.Classify(15))
	assert.Equal(t, High, th.Classify(29))
	assert.Equal(t, Dynamite, th.Classify(30))
}
