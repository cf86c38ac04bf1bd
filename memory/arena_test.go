package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocAndReset(t *testing.T) {
	a := NewArena(16)
	assert.True(t, a.Empty())

	b, err := a.Alloc(10)
	require.NoError(t, err)
	assert.Len(t, b, 10)
	assert.False(t, a.Empty())

	_, err = a.Alloc(10)
	assert.ErrorIs(t, err, ErrArenaExhausted)

	a.Reset()
	assert.True(t, a.Empty())
	_, err = a.Alloc(16)
	assert.NoError(t, err)
}

func TestEntitySliceOversizeDropped(t *testing.T) {
	small := GetEntitySlice()
	PutEntitySlice(small)

	big := make([]uint32, 0, 100000)
	PutEntitySlice(big) // must not panic; silently dropped
}
