package exchange

import "testing"

// fixedShuffler rearranges the slice into the given order of original indexes.
func fixedShuffler(order []int) Shuffler {
	return func(n int, swap func(i, j int)) {
		// Selection-style placement: walk the target order and swap each
		// wanted element into position.
		pos := make([]int, n)
		for i := range pos {
			pos[i] = i
		}
		find := func(want int) int {
			for i, p := range pos {
				if p == want {
					return i
				}
			}
			return -1
		}
		for i, want := range order {
			j := find(want)
			if i != j {
				swap(i, j)
				pos[i], pos[j] = pos[j], pos[i]
			}
		}
	}
}

func TestGeneratePairsFixedPermutation(t *testing.T) {
	t.Parallel()

	// Members A=1, B=2, C=3 shuffled into [B, C, A].
	pairs := GeneratePairs([]int64{1, 2, 3}, fixedShuffler([]int{1, 2, 0}))

	want := []Pair{
		{GiverID: 2, ReceiverID: 3},
		{GiverID: 3, ReceiverID: 1},
		{GiverID: 1, ReceiverID: 2},
	}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d", len(want), len(pairs))
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pair %d = %+v, want %+v", i, pairs[i], want[i])
		}
	}
}

func TestGeneratePairsTooFewMembers(t *testing.T) {
	t.Parallel()

	if got := GeneratePairs(nil, nil); got != nil {
		t.Errorf("expected nil for no members, got %+v", got)
	}
	if got := GeneratePairs([]int64{7}, nil); got != nil {
		t.Errorf("expected nil for a single member, got %+v", got)
	}
}

func TestGeneratePairsIsSingleCycle(t *testing.T) {
	t.Parallel()

	ids := []int64{10, 20, 30, 40, 50, 60, 70}

	for run := 0; run < 50; run++ {
		pairs := GeneratePairs(ids, nil)
		if len(pairs) != len(ids) {
			t.Fatalf("expected %d pairs, got %d", len(ids), len(pairs))
		}

		next := make(map[int64]int64, len(pairs))
		receivers := make(map[int64]bool, len(pairs))
		for _, p := range pairs {
			if p.GiverID == p.ReceiverID {
				t.Fatalf("self-assignment: %+v", p)
			}
			if _, dup := next[p.GiverID]; dup {
				t.Fatalf("giver %d assigned twice", p.GiverID)
			}
			next[p.GiverID] = p.ReceiverID
			if receivers[p.ReceiverID] {
				t.Fatalf("receiver %d assigned twice", p.ReceiverID)
			}
			receivers[p.ReceiverID] = true
		}

		// Following the chain from any member must visit everyone before
		// returning to the start.
		cur := ids[0]
		for step := 0; step < len(ids); step++ {
			cur = next[cur]
		}
		if cur != ids[0] {
			t.Fatalf("chain does not close after %d steps", len(ids))
		}
		seen := map[int64]bool{ids[0]: true}
		cur = next[ids[0]]
		for cur != ids[0] {
			if seen[cur] {
				t.Fatalf("short cycle detected at %d", cur)
			}
			seen[cur] = true
			cur = next[cur]
		}
		if len(seen) != len(ids) {
			t.Fatalf("cycle covers %d of %d members", len(seen), len(ids))
		}
	}
}

func TestGeneratePairsDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	ids := []int64{1, 2, 3, 4}
	GeneratePairs(ids, nil)
	for i, v := range []int64{1, 2, 3, 4} {
		if ids[i] != v {
			t.Fatalf("input mutated: %v", ids)
		}
	}
}
