// Package reader splits raw delimited files into records and fields.
// Row and column separators may be multi-character and may share characters
// (a "|" column separator inside a "|\n" row separator works): rows are
// delimited first, greedily and non-overlapping left to right, then fields
// within each row the same way.
package reader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTruncated reports input that ends mid-row when the reader is
// configured to reject unterminated final rows.
var ErrTruncated = errors.New("input ends without a final row separator")

// Field is one raw field value. A field whose raw value equals the null
// indicator is tagged Null and its Value is empty; it is never type-coerced
// downstream.
type Field struct {
	Value string
	Null  bool
}

// Record is one physical row. Index is the 0-based position in the file.
type Record struct {
	Index  int64
	Fields []Field
}

// Options configures a Reader.
type Options struct {
	ColumnSeparator string
	RowSeparator    string
	NullIndicator   string

	// RejectTruncated turns trailing data after the last row separator
	// into ErrTruncated instead of a final unterminated row.
	RejectTruncated bool
}

// Reader produces records lazily from an input stream. Each successful
// split consumes input, so iteration always terminates.
type Reader struct {
	scanner   *bufio.Scanner
	opts      Options
	index     int64
	truncated bool
}

const maxRowSize = 64 * 1024 * 1024

// New validates the separator configuration and returns a Reader.
func New(r io.Reader, opts Options) (*Reader, error) {
	if opts.ColumnSeparator == "" {
		return nil, fmt.Errorf("column separator must not be empty")
	}
	if opts.RowSeparator == "" {
		return nil, fmt.Errorf("row separator must not be empty")
	}

	rd := &Reader{opts: opts}
	sep := []byte(opts.RowSeparator)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRowSize)
	sc.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.Index(data, sep); i >= 0 {
			return i + len(sep), data[:i], nil
		}
		if atEOF && len(data) > 0 {
			if opts.RejectTruncated {
				return 0, nil, ErrTruncated
			}
			rd.truncated = true
			return len(data), data, nil
		}
		if atEOF {
			return 0, nil, nil
		}
		return 0, nil, nil
	})
	rd.scanner = sc
	return rd, nil
}

// Next returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Next() (*Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	raw := r.scanner.Text()
	parts := strings.Split(raw, r.opts.ColumnSeparator)

	fields := make([]Field, len(parts))
	for i, p := range parts {
		if r.opts.NullIndicator != "" && p == r.opts.NullIndicator {
			fields[i] = Field{Null: true}
		} else {
			fields[i] = Field{Value: p}
		}
	}

	rec := &Record{Index: r.index, Fields: fields}
	r.index++
	return rec, nil
}

// Truncated reports whether the final record was unterminated. Only
// meaningful after Next has returned io.EOF.
func (r *Reader) Truncated() bool {
	return r.truncated
}
