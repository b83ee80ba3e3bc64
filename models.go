package main

import "time"

// UserProfile is the travel profile the matching core scores. The
// core only reads it; account management owns the rows.
type UserProfile struct {
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Destination  string     `json:"destination,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Budget       string     `json:"budget,omitempty"` // numeric text or low/medium/high
	Interests    []string   `json:"interests,omitempty"`
	TravelStyle  string     `json:"travel_style,omitempty"`
	Discoverable bool       `json:"discoverable"`
}

// Match statuses. Compared case-sensitively; any other string is
// rejected with ErrInvalidStatus. None of the states is terminal:
// transitions between all four are allowed on purpose, so a rejected
// or cancelled match can be re-opened. Keeping them final is a data
// convention, not a state machine rule.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// MatchRecord is the single canonical record of a relationship between
// two users. The pair is stored canonicalized (UserAID < UserBID) so
// the one-record-per-pair invariant is enforced by a unique constraint.
// Score and created_at are set once at creation and never change.
type MatchRecord struct {
	MatchID            string    `json:"match_id"`
	UserAID            string    `json:"user_a_id"`
	UserBID            string    `json:"user_b_id"`
	CompatibilityScore float64   `json:"compatibility_score"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// ScoreWeights are the relative weights of the five compatibility
// sub-scores. They sum to 1.0; the final score is the weighted sum on
// a 0-100 scale. A value is constructed alongside the scorer rather
// than read from mutable package state.
type ScoreWeights struct {
	Destination float64
	Dates       float64
	Budget      float64
	Interests   float64
	TravelStyle float64
}

func defaultWeights() ScoreWeights {
	return ScoreWeights{
		Destination: 0.25,
		Dates:       0.20,
		Budget:      0.20,
		Interests:   0.25,
		TravelStyle: 0.10,
	}
}

// budgetTier maps the enumerated budget tiers to the representative
// numeric values used for similarity.
func budgetTier(tier string) (float64, bool) {
	switch tier {
	case "low":
		return 5000, true
	case "medium":
		return 8000, true
	case "high":
		return 10000, true
	}
	return 0, false
}
