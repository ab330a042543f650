package news

import "strings"

// Rotator hands out bounded batches of country codes round-robin. Fully
// deterministic: the cursor advances by the batch size and wraps around.
type Rotator struct {
	codes  []string
	cursor int
}

// NewRotator starts the rotation at the given cursor, so a caller that
// saved Cursor() can resume where it left off.
func NewRotator(codes []string, start int) *Rotator {
	r := &Rotator{codes: codes}
	if len(codes) > 0 && start > 0 {
		r.cursor = start % len(codes)
	}
	return r
}

// NextBatch returns up to size comma-joined codes and advances the cursor.
func (r *Rotator) NextBatch(size int) string {
	if len(r.codes) == 0 {
		return ""
	}
	if size > 5 {
		size = 5
	}
	if size < 1 {
		size = 1
	}

	batch := make([]string, 0, size)
	for i := 0; i < size; i++ {
		batch = append(batch, r.codes[(r.cursor+i)%len(r.codes)])
	}
	r.cursor = (r.cursor + size) % len(r.codes)
	return strings.Join(batch, ",")
}

// Cursor exposes the current index so a rotator can be resumed.
func (r *Rotator) Cursor() int {
	return r.cursor
}
