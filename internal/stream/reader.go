package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated reports a stream that ended in the middle of a record.
var ErrTruncated = errors.New("stream truncated mid-line")

// Reader decodes a stream line by line. Partial reads are buffered until the
// terminating newline arrives.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next line, io.EOF at a clean end, or ErrTruncated when
// the stream stopped inside a record.
func (r *Reader) Next() (Line, error) {
	for {
		raw, err := r.r.ReadBytes('\n')
		raw = bytes.TrimSpace(raw)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return Line{}, err
			}
			if len(raw) == 0 {
				return Line{}, io.EOF
			}
			var line Line
			if json.Unmarshal(raw, &line) != nil {
				return Line{}, ErrTruncated
			}
			return line, nil
		}
		if len(raw) == 0 {
			continue
		}
		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			return Line{}, fmt.Errorf("decode line: %w", err)
		}
		return line, nil
	}
}

// ReadAll drains r.
func ReadAll(r io.Reader) ([]Line, error) {
	reader := NewReader(r)
	var out []Line
	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, line)
	}
}
