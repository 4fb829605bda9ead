package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Assertions guard invariants of the engine itself (a row descriptor that disagrees with its row, a value read with
// the wrong accessor). Conditions caused by queries or data, such as a malformed date string or an unknown column,
// are returned as errors instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// Hash computes the FNV-1a 64-bit hash of the provided byte slice without allocation.
func Hash(data []byte) uint64 {
	var h uint64 = offset64
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}
