// Package stream runs small generation batches synchronously and writes one
// newline-delimited JSON record per item as soon as the item finishes.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBatch is the largest batch a single stream accepts.
const MaxBatch = 16

// Line statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ContentType is the media type of a stream response.
const ContentType = "application/x-ndjson"

// ErrBatchSize is returned for n outside 1..MaxBatch.
var ErrBatchSize = fmt.Errorf("batch size must be between 1 and %d", MaxBatch)

// Line is one self-contained record of a stream.
type Line struct {
	ID     string `json:"id"`
	Index  int    `json:"index"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Item is what an ItemFunc reports. ID should be set even on failure when
// a record was created.
type Item struct {
	ID     string
	Result any
}

// ItemFunc produces item index of the batch.
type ItemFunc func(ctx context.Context, index int) (Item, error)

// Summary counts what was written.
type Summary struct {
	Written   int
	Completed int
	Failed    int
}

// Executor writes lines to w, calling flush after each one.
type Executor struct {
	w     io.Writer
	flush func() error
}

// NewExecutor returns an executor over w. flush may be nil; an
// http.ErrNotSupported from it is ignored.
func NewExecutor(w io.Writer, flush func() error) *Executor {
	return &Executor{w: w, flush: flush}
}

// Run executes items 0..n-1 strictly in order. An item error becomes a
// failed line and the batch continues. Run stops early only when ctx ends or
// a write fails; lines already written remain valid.
func (e *Executor) Run(ctx context.Context, n int, fn ItemFunc) (Summary, error) {
	var sum Summary
	if n < 1 || n > MaxBatch {
		return sum, ErrBatchSize
	}
	enc := json.NewEncoder(e.w)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		item, err := fn(ctx, i)
		line := Line{ID: item.ID, Index: i, Status: StatusCompleted, Result: item.Result}
		if line.ID == "" {
			line.ID = fmt.Sprintf("item-%d", i)
		}
		if err != nil {
			line.Status = StatusFailed
			line.Result = nil
			line.Error = err.Error()
		}
		// Encode appends the newline that terminates the record.
		if werr := enc.Encode(line); werr != nil {
			return sum, fmt.Errorf("write line %d: %w", i, werr)
		}
		if e.flush != nil {
			if ferr := e.flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return sum, fmt.Errorf("flush line %d: %w", i, ferr)
			}
		}
		sum.Written++
		if err != nil {
			sum.Failed++
		} else {
			sum.Completed++
		}
	}
	return sum, nil
}
