//go:build headless

package output

import (
	"testing"

	"github.com/cwbudde/algo-dspgraph/dsp/dspgraph"
	"github.com/stretchr/testify/require"
)

func TestOtoPlayerUnavailableHeadless(t *testing.T) {
	t.Parallel()

	g := newTestGraph(t, 2)
	r, err := NewRenderer(g)
	require.NoError(t, err)

	_, err = NewOtoPlayer(r, 0)
	require.ErrorIs(t, err, dspgraph.ErrUnsupportedPlatform)
}
