package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionQuantity(t *testing.T) {
	assert.InDelta(t, 0.02, PositionQuantity(10000, 0.1, 50000), 1e-12)
	assert.Equal(t, 0.0, PositionQuantity(0, 0.1, 50000))
	assert.Equal(t, 0.0, PositionQuantity(10000, 0.1, 0))
}

func TestRoundToStep(t *testing.T) {
	assert.InDelta(t, 0.023, RoundToStep(0.0239, 0.001), 1e-12)
	assert.InDelta(t, 0.0239, RoundToStep(0.0239, 0), 1e-12)
	assert.Equal(t, 0.0, RoundToStep(-1, 0.001))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "0.023", FormatQuantity(0.023))
	assert.Equal(t, "0.00000001", FormatQuantity(0.00000001))
}
