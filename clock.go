package core

import (
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	// BlockClock exposes the current block height and wall clock time.
	BlockClock interface {
		BlockNumber() uint64
		Now() time.Time
	}

	ChainClock struct {
		clk    clock.Clock
		height atomic.Uint64
	}
)

func NewChainClock(clk clock.Clock, height uint64) *ChainClock {
	c := &ChainClock{clk: clk}
	c.height.Store(height)
	return c
}

func (c *ChainClock) BlockNumber() uint64 {
	return c.height.Load()
}

func (c *ChainClock) Now() time.Time {
	return c.clk.Now()
}

// Advance moves to the next block and returns its height.
func (c *ChainClock) Advance() uint64 {
	return c.height.Add(1)
}

func (c *ChainClock) SetBlockNumber(height uint64) {
	c.height.Store(height)
}

// BlockAfter returns start + blocks, failing instead of wrapping.
func BlockAfter(start, blocks uint64) (uint64, error) {
	sum, carry := bits.Add64(start, blocks, 0)
	if carry != 0 {
		return 0, errors.Wrapf(ErrArithmeticOverflow, "block %d + %d", start, blocks)
	}
	return sum, nil
}

// DueBlock is start + terms days of blocksPerDay blocks.
func DueBlock(start, terms, blocksPerDay uint64) (uint64, error) {
	hi, span := bits.Mul64(terms, blocksPerDay)
	if hi != 0 {
		return 0, errors.Wrapf(ErrArithmeticOverflow, "%d terms of %d blocks", terms, blocksPerDay)
	}
	return BlockAfter(start, span)
}
