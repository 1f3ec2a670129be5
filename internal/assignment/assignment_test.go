// Copyright 2025 James Ross
package assignment

import "testing"

const testBigM = 1e12

func sumCost(cost [][]float64, pairs []Pair) float64 {
	total := 0.0
	for _, p := range pairs {
		total += cost[p.Row][p.Col]
	}
	return total
}

func TestSolveSquareOptimal(t *testing.T) {
	cost := [][]float64{
		{4, 1, 3},
		{2, 0, 5},
		{3, 2, 2},
	}
	pairs := Solve(cost, testBigM)
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d: %+v", len(pairs), pairs)
	}
	if got := sumCost(cost, pairs); got != 5 {
		t.Fatalf("expected optimal total cost 5, got %v (%+v)", got, pairs)
	}
}

func TestSolveRectangularMoreVehiclesThanRequests(t *testing.T) {
	cost := [][]float64{
		{1, 9},
		{9, 1},
		{5, 5},
	}
	pairs := Solve(cost, testBigM)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs (requests < vehicles), got %d: %+v", len(pairs), pairs)
	}
	if got := sumCost(cost, pairs); got != 2 {
		t.Fatalf("expected optimal total cost 2, got %v", got)
	}
}

func TestSolveExcludesBigMPairs(t *testing.T) {
	cost := [][]float64{
		{testBigM, testBigM},
		{testBigM, testBigM},
	}
	pairs := Solve(cost, testBigM)
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs when every cost is infeasible, got %+v", pairs)
	}
}

func TestSolveEmptyMatrix(t *testing.T) {
	if pairs := Solve(nil, testBigM); pairs != nil {
		t.Fatalf("expected nil pairs for empty matrix, got %+v", pairs)
	}
}

// TestSolvePermutationEquivalentResult exercises the real hungarian() path
// (not the greedy fallback directly): relabeling a cost matrix's rows and
// columns must yield the same optimal matching under the same relabeling,
// since the diagonal-dominant matrix below has a unique optimum.
func TestSolvePermutationEquivalentResult(t *testing.T) {
	cost := [][]float64{
		{1, 50, 51, 52},
		{53, 2, 54, 55},
		{56, 57, 3, 58},
		{59, 60, 61, 4},
	}
	rowPerm := []int{2, 0, 3, 1}
	colPerm := []int{3, 1, 0, 2}

	permCost := make([][]float64, len(cost))
	for i := range permCost {
		permCost[i] = make([]float64, len(cost[0]))
	}
	for i, row := range cost {
		for j, v := range row {
			permCost[rowPerm[i]][colPerm[j]] = v
		}
	}

	basePairs := Solve(cost, testBigM)
	permPairs := Solve(permCost, testBigM)

	if len(basePairs) != len(permPairs) {
		t.Fatalf("expected same pair count, got %d vs %d", len(basePairs), len(permPairs))
	}
	if got, want := sumCost(permCost, permPairs), sumCost(cost, basePairs); got != want {
		t.Fatalf("expected equal optimal cost under relabeling, got %v vs %v", got, want)
	}

	permSet := make(map[Pair]bool, len(permPairs))
	for _, p := range permPairs {
		permSet[p] = true
	}
	for _, p := range basePairs {
		want := Pair{Row: rowPerm[p.Row], Col: colPerm[p.Col]}
		if !permSet[want] {
			t.Fatalf("expected relabeled solve to contain %+v (from base pair %+v), got %+v", want, p, permPairs)
		}
	}
}

func TestGreedyFallbackDeterministicTieBreak(t *testing.T) {
	cost := [][]float64{
		{1, 1},
		{1, 1},
	}
	pairs := greedy(cost, testBigM)
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %+v", pairs)
	}
	if pairs[0].Row != 0 || pairs[0].Col != 0 {
		t.Fatalf("expected row-major tie break starting at (0,0), got %+v", pairs[0])
	}
}
