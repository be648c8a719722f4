package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueBlock(t *testing.T) {
	for _, tt := range []struct {
		name         string
		start        uint64
		terms        uint64
		blocksPerDay uint64
		want         uint64
		overflow     bool
	}{
		{"ten days", 1, 10, 14_400, 144_001, false},
		{"zero terms", 7, 0, 14_400, 7, false},
		{"terms times blocks wraps", 1, math.MaxUint64/14_400 + 1, 14_400, 0, true},
		{"start plus span wraps", math.MaxUint64 - 10, 1, 14_400, 0, true},
		{"last representable block", math.MaxUint64 - 14_400, 1, 14_400, math.MaxUint64, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			due, err := DueBlock(tt.start, tt.terms, tt.blocksPerDay)
			if tt.overflow {
				assert.ErrorIs(t, err, ErrArithmeticOverflow)
				assert.True(t, IsFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, due)
		})
	}

	_, err := BlockAfter(1, math.MaxUint64)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}
