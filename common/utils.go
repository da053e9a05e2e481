package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Use it for internal invariants only (a negative fix count, a frame index outside the pool). Conditions a
// caller can trigger, such as unpinning a page twice or reading past the end of a table, return a
// GoDBError instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// ZeroBytes clears buf in place.
func ZeroBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
