// Package exchange draws and persists the gift assignment for a room: who
// gives to whom, exactly once per room, with notification tracking per giver.
package exchange

import "math/rand/v2"

// Pair assigns a receiver to a giver.
type Pair struct {
	GiverID    int64
	ReceiverID int64
}

// Shuffler reorders n elements in place via swap. rand.Shuffle satisfies it;
// tests inject a fixed permutation.
type Shuffler func(n int, swap func(i, j int))

// GeneratePairs derives the assignment over the given member ids: a uniformly
// random permutation closed into a single cycle. Every member gives exactly
// once, receives exactly once, and never draws themselves. Fewer than two
// members yields no assignment.
func GeneratePairs(memberIDs []int64, shuffle Shuffler) []Pair {
	if len(memberIDs) < 2 {
		return nil
	}
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	perm := append([]int64(nil), memberIDs...)
	shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	pairs := make([]Pair, len(perm))
	for i, giver := range perm {
		pairs[i] = Pair{GiverID: giver, ReceiverID: perm[(i+1)%len(perm)]}
	}
	return pairs
}
