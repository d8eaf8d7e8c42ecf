package sample

// clamp keeps v inside [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// count returns how many values in xs equal want.
func count(xs []int, want int) int {
	n := 0
	for _, v := range xs {
		if v == want {
			n++
		}
	}
	return n
}
