package eod

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchWriter_FlushesOnCapacity(t *testing.T) {
	var flushes [][]int
	w := NewBatchWriter(3, func(_ context.Context, items []int) error {
		batch := make([]int, len(items))
		copy(batch, items)
		flushes = append(flushes, batch)
		return nil
	})

	for i := 1; i <= 7; i++ {
		require.NoError(t, w.Add(context.Background(), i))
	}

	require.Len(t, flushes, 2)
	assert.Equal(t, []int{1, 2, 3}, flushes[0])
	assert.Equal(t, []int{4, 5, 6}, flushes[1])
	assert.Equal(t, 6, w.Written())
	assert.Equal(t, 1, w.Pending())

	require.NoError(t, w.Close(context.Background()))
	require.Len(t, flushes, 3)
	assert.Equal(t, []int{7}, flushes[2])
	assert.Equal(t, 7, w.Written())
	assert.Equal(t, 0, w.Pending())
}

func TestBatchWriter_CloseWithEmptyBuffer(t *testing.T) {
	calls := 0
	w := NewBatchWriter(10, func(_ context.Context, _ []string) error {
		calls++
		return nil
	})

	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, 0, calls)
}

func TestBatchWriter_FlushErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	w := NewBatchWriter(2, func(_ context.Context, _ []int) error {
		return boom
	})

	require.NoError(t, w.Add(context.Background(), 1))
	err := w.Add(context.Background(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, w.Written())
}
