package main

import (
	"database/sql"
	"net/http"
	"sort"
	"strconv"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	defaultTopN     = 5
	defaultMinScore = 20.0
)

// RankedCandidate is one scored entry in a recommendation listing.
type RankedCandidate struct {
	UserID             string  `json:"user_id"`
	Name               string  `json:"name"`
	CompatibilityScore float64 `json:"compatibility_score"`
}

// rankCandidates scores every candidate in the pool against the
// requester, drops everything below minScore, sorts descending and
// truncates to topN. Ties keep the pool's enumeration order (stable
// sort). An empty result is a normal outcome, not an error.
//
// This is a full O(candidates) scan with no caching or index; fine at
// the current pool sizes, but revisit before the pool grows large.
func rankCandidates(weights ScoreWeights, requester UserProfile, pool []UserProfile, topN int, minScore float64) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(pool))
	for _, candidate := range pool {
		if candidate.UserID == requester.UserID {
			// The pool should already exclude the requester; re-assert it here.
			continue
		}
		score := weights.compatibilityScore(requester, candidate)
		if score < minScore {
			continue
		}
		ranked = append(ranked, RankedCandidate{
			UserID:             candidate.UserID,
			Name:               candidate.Name,
			CompatibilityScore: score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CompatibilityScore > ranked[j].CompatibilityScore
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

// loadProfile fetches a single user's travel profile.
func loadProfile(db *sql.DB, userID string) (UserProfile, error) {
	var p UserProfile
	var destination, budget, travelStyle sql.NullString
	var startDate, endDate sql.NullTime

	err := db.QueryRow(`
		SELECT user_id, name, destination, start_date, end_date, budget, interests, travel_style, discoverable
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Name, &destination, &startDate, &endDate,
		&budget, pq.Array(&p.Interests), &travelStyle, &p.Discoverable)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}

	p.Destination = destination.String
	p.Budget = budget.String
	p.TravelStyle = travelStyle.String
	if startDate.Valid {
		t := startDate.Time
		p.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		p.EndDate = &t
	}
	return p, nil
}

// loadDiscoverableCandidates fetches the candidate pool for a
// requester: every discoverable user except the requester, in stable
// creation order so score ties break deterministically.
func loadDiscoverableCandidates(db *sql.DB, excludeUserID string) ([]UserProfile, error) {
	rows, err := db.Query(`
		SELECT user_id, name, destination, start_date, end_date, budget, interests, travel_style, discoverable
		FROM users
		WHERE discoverable = TRUE AND user_id <> $1
		ORDER BY created_at ASC, user_id ASC
	`, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []UserProfile
	for rows.Next() {
		var p UserProfile
		var destination, budget, travelStyle sql.NullString
		var startDate, endDate sql.NullTime
		if err := rows.Scan(&p.UserID, &p.Name, &destination, &startDate, &endDate,
			&budget, pq.Array(&p.Interests), &travelStyle, &p.Discoverable); err != nil {
			return nil, err
		}
		p.Destination = destination.String
		p.Budget = budget.String
		p.TravelStyle = travelStyle.String
		if startDate.Valid {
			t := startDate.Time
			p.StartDate = &t
		}
		if endDate.Valid {
			t := endDate.Time
			p.EndDate = &t
		}
		pool = append(pool, p)
	}
	return pool, rows.Err()
}

// GET /recommendations?limit=5&min_score=20
// Returns the top compatible travel companions for the logged in user.
func recommendationsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(string)

		topN := defaultTopN
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
				topN = n
			}
		}
		minScore := defaultMinScore
		if v := r.URL.Query().Get("min_score"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 100 {
				minScore = f
			}
		}

		requester, err := loadProfile(db, userID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		pool, err := loadDiscoverableCandidates(db, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logrus.Error("loadDiscoverableCandidates error: ", err)
			return
		}

		matches := rankCandidates(defaultWeights(), requester, pool, topN, minScore)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_matches": len(matches),
			"matches":       matches,
		})
	})
}
