package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEmitsOneLinePerItemInOrder(t *testing.T) {
	var buf bytes.Buffer
	flushes := 0
	exec := NewExecutor(&buf, func() error { flushes++; return nil })

	sum, err := exec.Run(context.Background(), 4, func(ctx context.Context, i int) (Item, error) {
		id := fmt.Sprintf("gen-%d", i)
		if i == 1 {
			return Item{ID: id}, errors.New("provider exploded")
		}
		return Item{ID: id, Result: map[string]string{"url": "https://cdn/" + id + ".png"}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Written: 4, Completed: 3, Failed: 1}, sum)
	assert.Equal(t, 4, flushes)

	raw := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, raw, 4)

	lines, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	for i, line := range lines {
		assert.Equal(t, i, line.Index)
		assert.Equal(t, fmt.Sprintf("gen-%d", i), line.ID)
		if i == 1 {
			assert.Equal(t, StatusFailed, line.Status)
			assert.Equal(t, "provider exploded", line.Error)
			assert.Nil(t, line.Result)
			continue
		}
		assert.Equal(t, StatusCompleted, line.Status)
		assert.Equal(t, map[string]any{"url": "https://cdn/gen-" + fmt.Sprint(i) + ".png"}, line.Result)
	}
}

func TestRunWritesBeforeNextItemStarts(t *testing.T) {
	var buf bytes.Buffer
	exec := NewExecutor(&buf, nil)
	_, err := exec.Run(context.Background(), 3, func(ctx context.Context, i int) (Item, error) {
		written := strings.Count(buf.String(), "\n")
		if written != i {
			return Item{}, fmt.Errorf("item %d started with %d lines written", i, written)
		}
		return Item{ID: fmt.Sprint(i)}, nil
	})
	require.NoError(t, err)

	lines, _ := ReadAll(&buf)
	for _, l := range lines {
		assert.Equal(t, StatusCompleted, l.Status, l.Error)
	}
}

func TestRunRejectsBatchSize(t *testing.T) {
	exec := NewExecutor(io.Discard, nil)
	noop := func(context.Context, int) (Item, error) { return Item{}, nil }
	for _, n := range []int{0, -1, MaxBatch + 1} {
		_, err := exec.Run(context.Background(), n, noop)
		assert.ErrorIs(t, err, ErrBatchSize, "n=%d", n)
	}
	sum, err := exec.Run(context.Background(), MaxBatch, noop)
	require.NoError(t, err)
	assert.Equal(t, MaxBatch, sum.Written)
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	sum, err := NewExecutor(&buf, nil).Run(ctx, 5, func(ctx context.Context, i int) (Item, error) {
		if i == 1 {
			cancel()
		}
		return Item{ID: fmt.Sprint(i)}, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, sum.Written)

	lines, err := ReadAll(&buf)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestRunStopsOnWriteFailure(t *testing.T) {
	calls := 0
	_, err := NewExecutor(brokenWriter{}, nil).Run(context.Background(), 3, func(context.Context, int) (Item, error) {
		calls++
		return Item{}, nil
	})
	require.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 1, calls)
}

func TestDefaultLineID(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewExecutor(&buf, nil).Run(context.Background(), 1, func(context.Context, int) (Item, error) {
		return Item{}, errors.New("invalid prompt")
	})
	require.NoError(t, err)
	lines, _ := ReadAll(&buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "item-0", lines[0].ID)
}
