// Package memzero wipes key material that has served its purpose.
package memzero

// Zero overwrites b in place. The backing array is shared with every slice
// of it, so callers must not hold other views they still need.
func Zero(b []byte) { clear(b) }

// ZeroAll wipes each buffer; nil entries are skipped.
func ZeroAll(bs ...[]byte) {
	for _, b := range bs {
		clear(b)
	}
}
