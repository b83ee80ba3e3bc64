package main

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// The compatibility scorer. Pure functions over two profiles; every
// parsing or comparison problem degrades to a zero sub-score instead
// of an error, so a half-filled profile just scores lower.

// normTag lower-cases and trims a free-text tag for comparison.
func normTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normBudget converts a budget value (numeric text or a tier word) to
// a float. Unparsable or missing values normalize to 0.
func normBudget(v string) float64 {
	cleaned := normTag(v)
	if cleaned == "" {
		return 0
	}
	if amount, ok := budgetTier(cleaned); ok {
		return amount
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return amount
}

// budgetSimilarity is 1 - |b1-b2|/max(b1,b2), clamped at 0. A zero on
// either side means no similarity can be inferred, not a perfect match.
func budgetSimilarity(v1, v2 string) float64 {
	b1, b2 := normBudget(v1), normBudget(v2)
	if b1 == 0 || b2 == 0 {
		return 0
	}
	sim := 1 - math.Abs(b1-b2)/math.Max(b1, b2)
	return math.Max(sim, 0)
}

// jaccard computes the Jaccard index over two tag lists. Tags are
// normalized and empty strings discarded; an empty set on either side
// yields 0 (undefined overlap is not a match, even for two empty sets).
func jaccard(tags1, tags2 []string) float64 {
	set1 := tagSet(tags1)
	set2 := tagSet(tags2)
	if len(set1) == 0 || len(set2) == 0 {
		return 0
	}
	intersection := 0
	for tag := range set1 {
		if set2[tag] {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}

func tagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if t := normTag(tag); t != "" {
			set[t] = true
		}
	}
	return set
}

// dateOverlapRatio returns the ratio of overlapping days to the FIRST
// trip's length, clamped to [0,1]. Both boundary days count, so a
// one-day trip overlapping itself is 1 day, not 0. Missing dates or a
// non-positive first-trip length contribute 0.
func dateOverlapRatio(start1, end1, start2, end2 *time.Time) float64 {
	if start1 == nil || end1 == nil || start2 == nil || end2 == nil {
		return 0
	}
	if start1.After(*end2) || start2.After(*end1) {
		return 0
	}
	overlapStart := maxTime(*start1, *start2)
	overlapEnd := minTime(*end1, *end2)
	overlapDays := daysBetween(overlapStart, overlapEnd) + 1
	totalDays := daysBetween(*start1, *end1) + 1
	if totalDays <= 0 {
		return 0
	}
	ratio := float64(overlapDays) / float64(totalDays)
	return math.Min(math.Max(ratio, 0), 1)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// compatibilityScore returns the weighted 0-100 compatibility score of
// other, seen from user's perspective. Destination, interests and
// style terms are symmetric; the date term is not (the overlap is
// measured against user's trip length), so score(a,b) and score(b,a)
// can differ when the trips have different lengths.
func (w ScoreWeights) compatibilityScore(user, other UserProfile) float64 {
	score := 0.0

	if normTag(user.Destination) == normTag(other.Destination) {
		score += w.Destination
	}

	score += w.Dates * dateOverlapRatio(user.StartDate, user.EndDate, other.StartDate, other.EndDate)

	score += w.Budget * budgetSimilarity(user.Budget, other.Budget)

	score += w.Interests * jaccard(user.Interests, other.Interests)

	if normTag(user.TravelStyle) == normTag(other.TravelStyle) {
		score += w.TravelStyle
	}

	// Two decimal places on the 0-100 scale
	return math.Round(score*100*100) / 100
}
