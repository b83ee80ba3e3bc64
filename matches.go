package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// The match store. One canonical record per unordered user pair; the
// pair is sorted before storage so the invariant is backed by a single
// UNIQUE constraint instead of an OR-query scan.

// canonicalPair orders two user ids so (A,B) and (B,A) denote the same
// stored pair. The compare is bytewise; the matches CHECK constraint
// uses COLLATE "C" so the database agrees on mixed-case ids.
func canonicalPair(x, y string) (string, string) {
	if x < y {
		return x, y
	}
	return y, x
}

// createOrGetMatch returns the match between two users, creating it
// with status pending when none exists yet. The check and the insert
// run in one transaction with the existing row locked, so concurrent
// calls for the same pair cannot create duplicates.
//
// When a match already exists it is returned unchanged and the
// supplied score is discarded: the score recorded at creation stays
// the record of truth. The second return value reports whether a new
// record was created.
func createOrGetMatch(ctx context.Context, db *sql.DB, userA, userB string, score float64) (*MatchRecord, bool, error) {
	if userA == userB {
		return nil, false, ErrInvalidPair
	}
	a, b := canonicalPair(userA, userB)

	var match MatchRecord
	created := false

	err := withTx(ctx, db, func(tx *sql.Tx) error {
		err := tx.QueryRow(`
			SELECT match_id, user_a_id, user_b_id, compatibility_score, status, created_at
			FROM matches
			WHERE user_a_id = $1 AND user_b_id = $2
			FOR UPDATE
		`, a, b).Scan(&match.MatchID, &match.UserAID, &match.UserBID,
			&match.CompatibilityScore, &match.Status, &match.CreatedAt)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		match = MatchRecord{
			MatchID:            uuid.NewString(),
			UserAID:            a,
			UserBID:            b,
			CompatibilityScore: score,
			Status:             StatusPending,
		}
		if err := tx.QueryRow(`
			INSERT INTO matches (match_id, user_a_id, user_b_id, compatibility_score, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, match.MatchID, a, b, score, StatusPending).Scan(&match.CreatedAt); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &match, created, nil
}

// MatchUserInfo is the counterpart's basic info embedded in listings.
type MatchUserInfo struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// MatchSummary is one entry of a per-user match listing.
type MatchSummary struct {
	MatchID            string        `json:"match_id"`
	CompatibilityScore float64       `json:"compatibility_score"`
	Status             string        `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	OtherUser          MatchUserInfo `json:"other_user"`
}

// getMatchesForUser lists a user's matches filtered by status, newest
// first, with the counterpart resolved no matter which side of the
// stored pair the user occupies. The default filter is pending and
// accepted.
func getMatchesForUser(db *sql.DB, userID string, statuses []string) ([]MatchSummary, error) {
	if len(statuses) == 0 {
		statuses = []string{StatusPending, StatusAccepted}
	}
	for _, s := range statuses {
		if !validStatus(s) {
			return nil, ErrInvalidStatus
		}
	}

	rows, err := db.Query(`
		SELECT m.match_id, m.compatibility_score, m.status, m.created_at, u.user_id, u.name
		FROM matches m
		JOIN users u
		  ON u.user_id = CASE WHEN m.user_a_id = $1 THEN m.user_b_id ELSE m.user_a_id END
		WHERE (m.user_a_id = $1 OR m.user_b_id = $1)
		  AND m.status = ANY($2)
		ORDER BY m.created_at DESC
	`, userID, pq.Array(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]MatchSummary, 0)
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(&m.MatchID, &m.CompatibilityScore, &m.Status, &m.CreatedAt,
			&m.OtherUser.UserID, &m.OtherUser.Name); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// transitionStatus moves a match to newStatus on behalf of a user.
// The status string is validated before anything else, so an unknown
// status fails the same way whether or not the match exists. Any
// defined status may follow any other, including re-opening a
// rejected or cancelled match.
func transitionStatus(ctx context.Context, db *sql.DB, matchID, newStatus, requestingUserID string) (*MatchRecord, error) {
	if !validStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	var match MatchRecord
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		err := tx.QueryRow(`
			SELECT match_id, user_a_id, user_b_id, compatibility_score, status, created_at
			FROM matches
			WHERE match_id = $1
			FOR UPDATE
		`, matchID).Scan(&match.MatchID, &match.UserAID, &match.UserBID,
			&match.CompatibilityScore, &match.Status, &match.CreatedAt)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if requestingUserID != match.UserAID && requestingUserID != match.UserBID {
			return ErrNotAuthorized
		}

		if _, err := tx.Exec(`UPDATE matches SET status = $2 WHERE match_id = $1`, matchID, newStatus); err != nil {
			return err
		}
		match.Status = newStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// GET  /matches?status=pending,accepted — list my matches
// POST /matches — create a pending match with another user
func matchesHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(userIDKey).(string)

		switch r.Method {
		case http.MethodGet:
			var statuses []string
			if v := r.URL.Query().Get("status"); v != "" {
				statuses = strings.Split(v, ",")
			}
			matches, err := getMatchesForUser(db, userID, statuses)
			if err != nil {
				writeStoreError(w, err)
				logrus.Debug("getMatchesForUser error: ", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"total":   len(matches),
				"matches": matches,
			})

		case http.MethodPost:
			type createMatchRequest struct {
				MatchedUserID      string  `json:"matched_user_id"`
				CompatibilityScore float64 `json:"compatibility_score"`
			}
			var req createMatchRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
			if req.MatchedUserID == "" {
				writeError(w, http.StatusBadRequest, "missing_fields")
				return
			}

			exists, err := userExists(db, req.MatchedUserID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "db_error")
				logrus.Error("userExists error: ", err)
				return
			}
			if !exists {
				writeError(w, http.StatusNotFound, "not_found")
				return
			}

			match, created, err := createOrGetMatch(r.Context(), db, userID, req.MatchedUserID, req.CompatibilityScore)
			if err != nil {
				writeStoreError(w, err)
				logrus.Debug("createOrGetMatch error: ", err)
				return
			}
			status := http.StatusOK
			if created {
				status = http.StatusCreated
			}
			writeJSON(w, status, match)

		default:
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
		}
	})
}

// A dispatcher for /matches/{id}/... requests
func matchesActionsRouter(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(r.URL.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) == 3 && parts[0] == "matches" && parts[2] == "status" {
			updateMatchStatusHandler(db).ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	}
}

// PATCH /matches/{id}/status
// Moves a match to a new status. Only a user who is part of the match
// may change it; the four defined statuses are all legal targets.
func updateMatchStatusHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "matches" || parts[2] != "status" {
			http.NotFound(w, r)
			return
		}
		matchID := parts[1]
		userID := r.Context().Value(userIDKey).(string)

		type updateStatusRequest struct {
			Status string `json:"status"`
		}
		var req updateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		match, err := transitionStatus(r.Context(), db, matchID, req.Status, userID)
		if err != nil {
			writeStoreError(w, err)
			logrus.Debug("transitionStatus error: ", err)
			return
		}
		writeJSON(w, http.StatusOK, match)
	})
}
