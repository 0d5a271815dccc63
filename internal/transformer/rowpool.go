// Package transformer turns dataset observations into the star tables and
// prepares table rows for loading. Rows travel between stages as pooled
// *Row values so that large files do not churn the heap.
package transformer

import "sync"

// Row holds one positional record. V is []any so it can be handed to the
// database drivers as is. Line is the 1-based line of the record in its
// source file.
//
// The stage that receives a Row owns it until it sends it on or calls Free.
// Nothing may keep a reference to r or r.V after that.
type Row struct {
	V    []any
	Line int
}

// Values returns r.V. It makes *Row usable by storage.LoadBatches.
func (r *Row) Values() []any { return r.V }

var rowPool = sync.Pool{New: func() any { return new(Row) }}

// GetRow returns a Row with n nil values and Line zero.
func GetRow(n int) *Row {
	r := rowPool.Get().(*Row)
	if cap(r.V) < n {
		r.V = make([]any, n)
	} else {
		r.V = r.V[:n]
		clear(r.V)
	}
	r.Line = 0
	return r
}

// Free puts r back in the pool.
func (r *Row) Free() { rowPool.Put(r) }
