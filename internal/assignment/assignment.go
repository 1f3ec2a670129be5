// Copyright 2025 James Ross
// Package assignment solves the per-tick linear assignment problem: given an
// m-vehicle by n-pending-request cost matrix (BigM where no feasible
// insertion exists), find a minimum-cost one-to-one matching and discard any
// pair whose cost is at or above 0.1*BigM.
package assignment

import "sort"

// Pair is one vehicle-row/request-column match from a solved cost matrix.
type Pair struct {
	Row int
	Col int
}

// Solve finds a minimum-cost assignment over cost (an m x n matrix, m rows
// may differ from n columns) using the Hungarian algorithm on a BigM-padded
// square matrix, falling back to a deterministic greedy ascending-cost match
// if the Hungarian solve cannot produce a result (defensive; the Hungarian
// solver below is total for any finite, rectangular, non-empty matrix).
// Pairs with cost >= 0.1*bigM are excluded from the result, matching the
// source's fixed 1e11 finite-and-feasible filter on scipy's assignment
// output (1e11 being a tenth of the source's default 1e12 BigM).
func Solve(cost [][]float64, bigM float64) []Pair {
	m := len(cost)
	if m == 0 {
		return nil
	}
	n := len(cost[0])
	if n == 0 {
		return nil
	}
	threshold := 0.1 * bigM

	rows, cols, ok := hungarian(cost, bigM)
	if !ok {
		return greedy(cost, threshold)
	}

	pairs := make([]Pair, 0, len(rows))
	for k := range rows {
		i, j := rows[k], cols[k]
		if i >= m || j >= n {
			continue
		}
		if cost[i][j] < threshold {
			pairs = append(pairs, Pair{Row: i, Col: j})
		}
	}
	return pairs
}

// greedy is the deterministic fallback: sort all finite, below-threshold
// entries ascending by cost, then row-major by (i,j) to break ties, and take
// them one at a time skipping any row or column already used. Solve's m==0/
// n==0 guard means hungarian never actually returns ok=false, so this path
// is unreachable in production; it stays directly tested as a safety net in
// case that invariant ever changes.
func greedy(cost [][]float64, threshold float64) []Pair {
	type item struct {
		val      float64
		i, j     int
	}
	var items []item
	for i, row := range cost {
		for j, v := range row {
			if v < threshold {
				items = append(items, item{val: v, i: i, j: j})
			}
		}
	}
	sort.Slice(items, func(a, b int) bool {
		if items[a].val != items[b].val {
			return items[a].val < items[b].val
		}
		if items[a].i != items[b].i {
			return items[a].i < items[b].i
		}
		return items[a].j < items[b].j
	})

	usedI := map[int]bool{}
	usedJ := map[int]bool{}
	var pairs []Pair
	for _, it := range items {
		if usedI[it.i] || usedJ[it.j] {
			continue
		}
		usedI[it.i] = true
		usedJ[it.j] = true
		pairs = append(pairs, Pair{Row: it.i, Col: it.j})
	}
	return pairs
}
