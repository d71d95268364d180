// Package ingest turns uploaded CSV text into ordered rows.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/reportbrief/reportbrief/internal/model"
)

// ErrNoUsableRows is wrapped by Error when the input holds a header but no
// non-empty data rows (or nothing at all).
var ErrNoUsableRows = errors.New("no usable rows")

// Error is returned when an upload cannot be turned into a row set.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Reason == "" {
		return "ingest: " + e.Err.Error()
	}
	return "ingest: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the parsed form of a CSV upload.
type Result struct {
	// Columns is the header field list in declaration order.
	Columns []string
	// Rows holds one entry per non-empty data line.
	Rows []*model.Row
}

// Parse reads CSV text whose first line is the header. Header fields become
// row keys; a duplicated header name is disambiguated in row keys with a
// numeric suffix ("Amount", "Amount_1") while Columns keeps the raw names.
// Lines whose fields are all blank are dropped. Parse fails with an *Error
// wrapping ErrNoUsableRows when no data rows remain.
func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &Error{Reason: "file is empty", Err: ErrNoUsableRows}
	}
	if err != nil {
		return nil, &Error{Reason: fmt.Sprintf("reading header: %v", err), Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	columns := make([]string, len(header))
	copy(columns, header)
	keys := rowKeys(header)

	var rows []*model.Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &Error{Reason: fmt.Sprintf("reading row %d: %v", len(rows)+1, err), Err: err}
		}
		if blank(record) {
			continue
		}

		row := model.NewRow(len(keys))
		for i, key := range keys {
			if i < len(record) {
				row.Set(key, record[i])
			} else {
				row.Set(key, nil)
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, &Error{Reason: "no usable rows", Err: ErrNoUsableRows}
	}

	return &Result{Columns: columns, Rows: rows}, nil
}

// Sample returns at most n rows from the front of rows.
func Sample(rows []*model.Row, n int) []*model.Row {
	if n < 0 || len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// rowKeys derives unique map keys from the header.
func rowKeys(header []string) []string {
	seen := make(map[string]int, len(header))
	keys := make([]string, len(header))
	for i, name := range header {
		key := name
		if n, ok := seen[name]; ok {
			for {
				n++
				key = name + "_" + strconv.Itoa(n)
				if _, taken := seen[key]; !taken {
					break
				}
			}
			seen[name] = n
		}
		if _, ok := seen[key]; !ok {
			seen[key] = 0
		}
		keys[i] = key
	}
	return keys
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
