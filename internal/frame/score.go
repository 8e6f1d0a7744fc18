package frame

// Score summarizes a sparse luminance sample of a frame.
type Score struct {
	Samples  int
	Mean     float64 // average luminance, 0-255
	Variance float64
}

// ContentScore samples a grid×grid lattice of pixels and returns luminance statistics.
// It is cheap enough to run on every capture attempt.
func ContentScore(f *Frame, grid int) Score {
	if f.Empty() {
		return Score{}
	}
	if grid < 2 {
		grid = 2
	}
	w, h := f.Width(), f.Height()

	var sum, sumSq float64
	n := 0
	for gy := 0; gy < grid; gy++ {
		y := (h - 1) * gy / (grid - 1)
		for gx := 0; gx < grid; gx++ {
			x := (w - 1) * gx / (grid - 1)
			r, g, b := f.RGB(x, y)
			l := Luma(r, g, b)
			sum += l
			sumSq += l * l
			n++
		}
	}
	mean := sum / float64(n)
	return Score{Samples: n, Mean: mean, Variance: sumSq/float64(n) - mean*mean}
}

// Luma is the Rec. 601 luminance of an RGB triple.
func Luma(r, g, b uint8) float64 {
	return (float64(r)*299 + float64(g)*587 + float64(b)*114) / 1000
}
