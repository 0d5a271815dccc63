package transformer

import "context"

// ValidateLoopRows forwards rows whose required columns are all non-nil and
// drops the others, reporting each drop with its source line. Required names
// that are not in columns are ignored. Malformed rows (nil, or of the wrong
// width) are dropped silently.
//
// The stage never returns before in is closed, even after ctx is canceled:
// it keeps freeing rows so upstream stages cannot block on a full channel.
// Closing out is left to the caller.
func ValidateLoopRows(
	_ context.Context,
	columns []string,
	required []string,
	in <-chan *Row,
	out chan<- *Row,
	onReject func(line int, reason string),
) {
	reqIx := make([]int, 0, len(required))
	for _, name := range required {
		for i, c := range columns {
			if c == name {
				reqIx = append(reqIx, i)
				break
			}
		}
	}

	for r := range in {
		if r == nil {
			continue
		}
		if len(r.V) != len(columns) {
			r.Free()
			continue
		}
		if ix := firstNil(r.V, reqIx); ix >= 0 {
			if onReject != nil {
				onReject(r.Line, "missing required field "+columns[ix])
			}
			r.Free()
			continue
		}
		// The loader owns early exit; forward even under cancellation.
		out <- r
	}
}

// firstNil returns the first index of ix whose value is nil, or -1.
func firstNil(v []any, ix []int) int {
	for _, i := range ix {
		if v[i] == nil {
			return i
		}
	}
	return -1
}
