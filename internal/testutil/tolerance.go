package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireNearly fails t if got and want differ in length or if any sample
// pair differs by more than eps.
func RequireNearly(t testing.TB, want, got []float64, eps float64) {
	t.Helper()
	require.Len(t, got, len(want))

	for i := range got {
		require.InDelta(t, want[i], got[i], eps, "sample %d", i)
	}
}

// RequireConstant fails t unless every sample is within eps of want.
func RequireConstant(t testing.TB, want float64, got []float64, eps float64) {
	t.Helper()

	for i, v := range got {
		require.InDelta(t, want, v, eps, "sample %d", i)
	}
}

// RequireBounded fails t if any sample is not finite or exceeds limit in
// magnitude.
func RequireBounded(t testing.TB, got []float64, limit float64) {
	t.Helper()

	for i, v := range got {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "sample %d is %v", i, v)
		require.LessOrEqual(t, math.Abs(v), limit, "sample %d", i)
	}
}

// Peak returns the largest absolute sample value.
func Peak(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		peak = math.Max(peak, math.Abs(v))
	}

	return peak
}
