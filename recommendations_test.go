package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Pool profiles carrying only destination (25), style (10) and a
// single interest tag (25), keeping expected scores easy to read.
func poolProfile(id, name, destination, style string, interests []string) UserProfile {
	return UserProfile{
		UserID:       id,
		Name:         name,
		Destination:  destination,
		TravelStyle:  style,
		Interests:    interests,
		Discoverable: true,
	}
}

func rankerRequester() UserProfile {
	return UserProfile{
		UserID:      "req",
		Name:        "Requester",
		Destination: "Lisbon",
		TravelStyle: "slow",
		Interests:   []string{"surfing"},
	}
}

func TestRankCandidatesFilterSortTruncate(t *testing.T) {
	requester := rankerRequester()
	pool := []UserProfile{
		poolProfile("c1", "One", "Lisbon", "fast", []string{"museums"}),   // 25
		poolProfile("c2", "Two", "Lisbon", "slow", []string{"museums"}),   // 35
		poolProfile("c3", "Three", "Porto", "fast", []string{"museums"}),  // 0
		poolProfile("c4", "Four", "Porto", "slow", []string{"surfing"}),   // 10 + 25 = 35
		poolProfile("c5", "Five", "Lisbon", "slow", []string{"surfing"}),  // 60
	}

	ranked := rankCandidates(defaultWeights(), requester, pool, 5, 20.0)

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.UserID)
	}
	// c3 (0) and c4/c2 ties sort by pool order; everything below 20 is gone
	assert.Equal(t, []string{"c5", "c2", "c4", "c1"}, ids)
	assert.Equal(t, 60.0, ranked[0].CompatibilityScore)
	assert.Equal(t, "Five", ranked[0].Name)
}

func TestRankCandidatesStableTieBreak(t *testing.T) {
	requester := rankerRequester()
	pool := []UserProfile{
		poolProfile("tie_b", "B", "Lisbon", "fast", nil),
		poolProfile("tie_a", "A", "Lisbon", "fast", nil),
	}

	ranked := rankCandidates(defaultWeights(), requester, pool, 5, 20.0)

	// Equal scores keep the pool's enumeration order
	assert.Len(t, ranked, 2)
	assert.Equal(t, "tie_b", ranked[0].UserID)
	assert.Equal(t, "tie_a", ranked[1].UserID)
	assert.Equal(t, ranked[0].CompatibilityScore, ranked[1].CompatibilityScore)
}

func TestRankCandidatesTruncatesToTopN(t *testing.T) {
	requester := rankerRequester()
	var pool []UserProfile
	for i := 0; i < 8; i++ {
		pool = append(pool, poolProfile("c", "C", "Lisbon", "slow", nil))
	}

	ranked := rankCandidates(defaultWeights(), requester, pool, 3, 20.0)
	assert.Len(t, ranked, 3)
}

func TestRankCandidatesExcludesRequester(t *testing.T) {
	requester := rankerRequester()
	self := requester
	pool := []UserProfile{
		self, // must never be recommended, even if the pool leaks it
		poolProfile("other", "Other", "Lisbon", "slow", []string{"surfing"}),
	}

	ranked := rankCandidates(defaultWeights(), requester, pool, 5, 20.0)
	assert.Len(t, ranked, 1)
	assert.Equal(t, "other", ranked[0].UserID)
}

func TestRankCandidatesEmptyResult(t *testing.T) {
	requester := rankerRequester()
	pool := []UserProfile{
		poolProfile("far", "Far", "Reykjavik", "fast", []string{"skiing"}),
	}

	// Nobody clears min_score: an empty list, not an error
	ranked := rankCandidates(defaultWeights(), requester, pool, 5, 20.0)
	assert.Empty(t, ranked)

	ranked = rankCandidates(defaultWeights(), requester, nil, 5, 20.0)
	assert.Empty(t, ranked)
}
