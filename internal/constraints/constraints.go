// Package constraints mirrors the numeric type sets samber/ro pulled in
// from golang.org/x/exp/constraints before the standard library grew
// cmp.Ordered. Kept as an internal package, the way samber/ro itself
// keeps its own internal/constraints rather than importing the external
// module for two type sets.
package constraints

// Integer is the set of integer types usable in demand/count arithmetic.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Float is the set of floating point types.
type Float interface {
	~float32 | ~float64
}

// Numeric is the set of types supporting +, -, *, /.
type Numeric interface {
	Integer | Float
}

// Clamp restricts v to the closed range [lo, hi].
func Clamp[T Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
