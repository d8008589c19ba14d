package layer

import "sort"

// crossEps bounds how close to a segment end a crossing snaps to the vertex.
const crossEps = 1e-12

type cut struct {
	t, x, y float64
}

// simple reports whether no two non-adjacent segments of a closed ring meet.
func simple(ring []float64) bool {
	n := len(ring)/2 - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if _, _, _, _, ok := crossing(ring, i, j); ok {
				return false
			}
		}
	}
	return true
}

// node inserts every meeting point of non-adjacent segments of a closed ring
// as a vertex, so that each self-intersection becomes a repeated vertex.
func node(ring []float64) []float64 {
	n := len(ring)/2 - 1
	cuts := make([][]cut, n)
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			t, u, x, y, ok := crossing(ring, i, j)
			if !ok {
				continue
			}
			if t > crossEps && t < 1-crossEps {
				cuts[i] = append(cuts[i], cut{t, x, y})
			}
			if u > crossEps && u < 1-crossEps {
				cuts[j] = append(cuts[j], cut{u, x, y})
			}
		}
	}

	out := make([]float64, 0, len(ring))
	for i := 0; i < n; i++ {
		out = append(out, ring[2*i], ring[2*i+1])
		sort.Slice(cuts[i], func(a, b int) bool { return cuts[i][a].t < cuts[i][b].t })
		for _, c := range cuts[i] {
			out = append(out, c.x, c.y)
		}
	}
	return dedupe(append(out, ring[0], ring[1]))
}

// loops splits a noded closed ring at its repeated vertices. Each returned
// loop is closed.
func loops(ring []float64) [][]float64 {
	var out [][]float64
	var stack []float64
	seen := make(map[[2]float64]int)
	for i := 0; i+3 < len(ring); i += 2 {
		p := [2]float64{ring[i], ring[i+1]}
		if k, ok := seen[p]; ok {
			loop := append([]float64(nil), stack[2*k:]...)
			out = append(out, append(loop, p[0], p[1]))
			for j := k + 1; j < len(stack)/2; j++ {
				delete(seen, [2]float64{stack[2*j], stack[2*j+1]})
			}
			stack = stack[:2*(k+1)]
			continue
		}
		seen[p] = len(stack) / 2
		stack = append(stack, p[0], p[1])
	}
	if len(stack) >= 2 {
		out = append(out, append(stack, stack[0], stack[1]))
	}
	return out
}

// crossing intersects segments i and j of ring. t and u are the positions
// of the meeting point along each segment; the point snaps to a segment end
// when it lies within crossEps of it. Parallel segments never meet.
func crossing(ring []float64, i, j int) (t, u, x, y float64, ok bool) {
	ax, ay, bx, by := ring[2*i], ring[2*i+1], ring[2*i+2], ring[2*i+3]
	cx, cy, dx, dy := ring[2*j], ring[2*j+1], ring[2*j+2], ring[2*j+3]
	if max(ax, bx) < min(cx, dx) || max(cx, dx) < min(ax, bx) ||
		max(ay, by) < min(cy, dy) || max(cy, dy) < min(ay, by) {
		return 0, 0, 0, 0, false
	}

	rx, ry := bx-ax, by-ay
	sx, sy := dx-cx, dy-cy
	denom := rx*sy - ry*sx
	if denom == 0 {
		return 0, 0, 0, 0, false
	}
	qx, qy := cx-ax, cy-ay
	t = (qx*sy - qy*sx) / denom
	u = (qx*ry - qy*rx) / denom
	if t < -crossEps || t > 1+crossEps || u < -crossEps || u > 1+crossEps {
		return 0, 0, 0, 0, false
	}

	switch {
	case u <= crossEps:
		x, y = cx, cy
	case u >= 1-crossEps:
		x, y = dx, dy
	case t <= crossEps:
		x, y = ax, ay
	case t >= 1-crossEps:
		x, y = bx, by
	default:
		x, y = ax+t*rx, ay+t*ry
	}
	return t, u, x, y, true
}
