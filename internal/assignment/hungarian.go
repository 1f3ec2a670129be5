// Copyright 2025 James Ross
package assignment

import "math"

// hungarian solves a (possibly rectangular) minimum-cost assignment via the
// O(n^3) Kuhn-Munkres shortest-augmenting-path method, after padding to a
// square matrix with bigM filler so every row and column has a counterpart.
// Returns parallel row/col index slices over the ORIGINAL (unpadded)
// dimensions; ok is false only if cost is degenerate (empty).
func hungarian(cost [][]float64, bigM float64) (rows, cols []int, ok bool) {
	m := len(cost)
	if m == 0 {
		return nil, nil, false
	}
	n := len(cost[0])
	if n == 0 {
		return nil, nil, false
	}

	size := m
	if n > size {
		size = n
	}

	a := make([][]float64, size)
	for i := 0; i < size; i++ {
		a[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			if i < m && j < n {
				a[i][j] = cost[i][j]
			} else {
				a[i][j] = bigM
			}
		}
	}

	const inf = math.MaxFloat64 / 4

	u := make([]float64, size+1)
	v := make([]float64, size+1)
	p := make([]int, size+1)
	way := make([]int, size+1)

	for i := 1; i <= size; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, size+1)
		used := make([]bool, size+1)
		for j := 0; j <= size; j++ {
			minv[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= size; j++ {
				if used[j] {
					continue
				}
				cur := a[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= size; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	colOfRow := make([]int, size)
	for j := 1; j <= size; j++ {
		if p[j] > 0 {
			colOfRow[p[j]-1] = j - 1
		}
	}

	for i := 0; i < m; i++ {
		j := colOfRow[i]
		if j < n {
			rows = append(rows, i)
			cols = append(cols, j)
		}
	}
	return rows, cols, true
}
