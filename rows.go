package couchhelper

import (
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/biyonik/go-couch-helper/driver"
)

// Rows is a lazy cursor over query results. Rows are decoded on demand and
// the cursor cannot be rewound; run a new query to read them again.
type Rows struct {
	rows   driver.Rows
	ready  bool
	closed bool
}

func newRows(rows driver.Rows) *Rows {
	return &Rows{rows: rows}
}

// Next advances to the next row. It returns false at the end of the results
// or on error; check Err afterwards.
func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.ready = r.rows.Next()
	return r.ready
}

// Map decodes the current row into a map.
func (r *Rows) Map() (map[string]any, error) {
	var m map[string]any
	if err := r.Scan(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Scan decodes the current row into dest, which must be a pointer.
func (r *Rows) Scan(dest any) error {
	if dest == nil {
		return errors.New("couchhelper: nil scan destination")
	}
	if !r.ready {
		return errors.New("couchhelper: Scan called without a successful Next")
	}
	return r.rows.Row(dest)
}

// Err returns the error, if any, that ended iteration.
func (r *Rows) Err() error {
	return r.rows.Err()
}

// Close releases the underlying result stream. It is safe to call twice.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.ready = false
	return r.rows.Close()
}

// All yields every remaining row as a map. A decode or stream error is yielded
// once with a nil map and ends the sequence. The cursor is closed when the
// sequence ends.
func (r *Rows) All() iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		defer r.Close()

		for r.Next() {
			m, err := r.Map()
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(nil, err)
		}
	}
}
