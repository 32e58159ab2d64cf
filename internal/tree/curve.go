package tree

import (
	"math"
	"sort"
)

// Marker is one user-placed curve point: x in sensor units, y in control
// units.
type Marker struct {
	X float64
	Y float64
}

// Resample interpolates markers with a parametric natural cubic spline over
// cumulative chord length and returns n evenly spaced samples. Sample x is
// rounded to an integer and y to two decimals. Markers are ordered by x
// first; a single marker yields a constant curve.
func Resample(markers []Marker, n int) []Marker {
	if len(markers) == 0 || n < 1 {
		return nil
	}

	sorted := make([]Marker, len(markers))
	copy(sorted, markers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	// Repeated markers would give zero-length spline segments.
	pts := sorted[:1]
	for _, m := range sorted[1:] {
		if m != pts[len(pts)-1] {
			pts = append(pts, m)
		}
	}

	t := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		t[i] = t[i-1] + math.Hypot(pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y)
	}
	total := t[len(t)-1]

	out := make([]Marker, n)
	if len(pts) == 1 {
		for i := range out {
			out[i] = Marker{X: math.RoundToEven(pts[0].X), Y: round2(pts[0].Y)}
		}
		return out
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	sx := newSpline(t, xs)
	sy := newSpline(t, ys)

	for i := range out {
		var at float64
		if n > 1 {
			at = total * float64(i) / float64(n-1)
		}
		out[i] = Marker{X: math.RoundToEven(sx.at(at)), Y: round2(sy.at(at))}
	}

	return out
}

// Nearest returns the sample whose x is closest to x. Ties go to the later
// sample.
func Nearest(samples []Marker, x float64) (Marker, bool) {
	if len(samples) == 0 {
		return Marker{}, false
	}

	best := 0
	for i := 1; i < len(samples); i++ {
		if math.Abs(samples[i].X-x) <= math.Abs(samples[best].X-x) {
			best = i
		}
	}

	return samples[best], true
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// spline is a natural cubic spline through (t[i], v[i]) with strictly
// increasing t.
type spline struct {
	t, v, m []float64
}

func newSpline(t, v []float64) spline {
	n := len(t)
	m := make([]float64, n)
	if n < 3 {
		return spline{t: t, v: v, m: m}
	}

	// Tridiagonal system for the interior second derivatives, solved with
	// the Thomas algorithm. End conditions are m[0] = m[n-1] = 0.
	c := make([]float64, n)
	d := make([]float64, n)
	for i := 1; i < n-1; i++ {
		h0 := t[i] - t[i-1]
		h1 := t[i+1] - t[i]
		a := h0
		b := 2 * (h0 + h1)
		r := 6 * ((v[i+1]-v[i])/h1 - (v[i]-v[i-1])/h0)
		if i > 1 {
			b -= a * c[i-1]
			r -= a * d[i-1]
		}
		c[i] = h1 / b
		d[i] = r / b
	}
	for i := n - 2; i >= 1; i-- {
		m[i] = d[i] - c[i]*m[i+1]
	}

	return spline{t: t, v: v, m: m}
}

func (s spline) at(x float64) float64 {
	n := len(s.t)
	i := sort.SearchFloat64s(s.t, x) - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	h := s.t[i+1] - s.t[i]
	a := (s.t[i+1] - x) / h
	b := (x - s.t[i]) / h

	return a*s.v[i] + b*s.v[i+1] + ((a*a*a-a)*s.m[i]+(b*b*b-b)*s.m[i+1])*h*h/6
}
