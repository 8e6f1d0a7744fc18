package frame

// Within reports whether every channel of two RGB triples differs by at most tol.
func Within(r1, g1, b1, r2, g2, b2 uint8, tol int) bool {
	return absDiff(r1, r2) <= tol && absDiff(g1, g2) <= tol && absDiff(b1, b2) <= tol
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
