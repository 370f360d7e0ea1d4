package trajectory

import "strconv"

// Line returns a trajectory of points evenly spaced from "from" to "to"
// inclusive. points must be at least 2.
func Line(id string, from, to []float64, points int) Trajectory {
	t := Trajectory{ID: id, Points: make([][]float64, points)}
	for j := range t.Points {
		f := float64(j) / float64(points-1)
		p := make([]float64, len(from))
		for k := range p {
			p[k] = from[k] + f*(to[k]-from[k])
		}
		t.Points[j] = p
	}
	return t
}

// Grid returns n parallel trajectories of the given length in a
// four-component space: trajectory i, step j is (j/10, i/10, i/100, j/100).
func Grid(n, points int) []Trajectory {
	ts := make([]Trajectory, n)
	for i := range ts {
		t := Trajectory{ID: "grid-" + strconv.Itoa(i), Points: make([][]float64, points)}
		for j := range t.Points {
			t.Points[j] = []float64{
				float64(j) / 10,
				float64(i) / 10,
				float64(i) / 100,
				float64(j) / 100,
			}
		}
		ts[i] = t
	}
	return ts
}
