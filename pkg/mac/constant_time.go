package mac

// ConstantTimeCompare reports whether a and b hold the same bytes. It
// returns false immediately on length mismatch — lengths are not secret
// for fixed-size MAC tags — but for equal-length inputs it ORs every XOR
// difference into an accumulator and only branches once, at the very end,
// so the comparison itself leaks nothing about where two tags differ.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var acc byte
	for i := range a {
		acc |= a[i] ^ b[i]
	}
	return acc == 0
}
