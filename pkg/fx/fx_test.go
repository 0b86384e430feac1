package fx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUSD(t *testing.T) {
	c := NewConverter(map[string]float64{"afn": 0.0142})

	usd, rate, err := c.ToUSD(50000, "AFN")
	require.NoError(t, err)
	assert.Equal(t, int64(710), usd)
	assert.InDelta(t, 0.0142, rate, 1e-9)

	usd, _, err = c.ToUSD(999, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(999), usd)

	_, _, err = c.ToUSD(100, "EUR")
	assert.Error(t, err)
}
