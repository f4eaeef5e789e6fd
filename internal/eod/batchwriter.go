package eod

import (
	"context"
	"fmt"
)

// BatchWriter buffers items and hands them to a single flush function once
// capacity is reached. Raw inserts and canonical upserts each run their own
// writer so the two paths keep independent buffer thresholds.
type BatchWriter[T any] struct {
	buf      []T
	capacity int
	flush    func(ctx context.Context, items []T) error
	written  int
}

// NewBatchWriter creates a writer that flushes every capacity items.
func NewBatchWriter[T any](capacity int, flush func(ctx context.Context, items []T) error) *BatchWriter[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &BatchWriter[T]{
		buf:      make([]T, 0, capacity),
		capacity: capacity,
		flush:    flush,
	}
}

// Add buffers one item, flushing when the buffer is full.
func (w *BatchWriter[T]) Add(ctx context.Context, item T) error {
	w.buf = append(w.buf, item)
	if len(w.buf) >= w.capacity {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes out whatever is buffered. Safe to call with an empty buffer.
func (w *BatchWriter[T]) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}

	if err := w.flush(ctx, w.buf); err != nil {
		return fmt.Errorf("flush batch of %d: %w", len(w.buf), err)
	}

	w.written += len(w.buf)
	w.buf = w.buf[:0]
	return nil
}

// Close flushes the remaining items at stream end.
func (w *BatchWriter[T]) Close(ctx context.Context) error {
	return w.Flush(ctx)
}

// Written returns how many items have been flushed so far.
func (w *BatchWriter[T]) Written() int {
	return w.written
}

// Pending returns how many items are buffered but not yet flushed.
func (w *BatchWriter[T]) Pending() int {
	return len(w.buf)
}
