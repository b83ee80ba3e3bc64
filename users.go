package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// GET /me
// Returns the logged in user's own travel profile.
func meHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(string)

		profile, err := loadProfile(db, userID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	})
}

// PATCH /me/profile
// Updates the travel fields of the logged in user. Only fields present
// in the body change; discoverable toggles whether the user appears in
// other people's recommendations.
func meProfileHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(string)

		type profileUpdate struct {
			Name         *string   `json:"name"`
			Destination  *string   `json:"destination"`
			StartDate    *string   `json:"start_date"`
			EndDate      *string   `json:"end_date"`
			Budget       *string   `json:"budget"`
			Interests    *[]string `json:"interests"`
			TravelStyle  *string   `json:"travel_style"`
			Discoverable *bool     `json:"discoverable"`
		}
		var req profileUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		current, err := loadProfile(db, userID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
			current.Name = strings.TrimSpace(*req.Name)
		}
		if req.Destination != nil {
			current.Destination = *req.Destination
		}
		if req.StartDate != nil {
			t, ok := parseOptionalDate(*req.StartDate)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_date")
				return
			}
			current.StartDate = t
		}
		if req.EndDate != nil {
			t, ok := parseOptionalDate(*req.EndDate)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_date")
				return
			}
			current.EndDate = t
		}
		if req.Budget != nil {
			current.Budget = *req.Budget
		}
		if req.Interests != nil {
			current.Interests = *req.Interests
		}
		if req.TravelStyle != nil {
			current.TravelStyle = *req.TravelStyle
		}
		if req.Discoverable != nil {
			current.Discoverable = *req.Discoverable
		}
		if current.Interests == nil {
			current.Interests = []string{}
		}

		_, err = db.Exec(`
			UPDATE users
			SET name = $2,
				destination = NULLIF($3, ''),
				start_date = $4,
				end_date = $5,
				budget = NULLIF($6, ''),
				interests = $7,
				travel_style = NULLIF($8, ''),
				discoverable = $9
			WHERE user_id = $1
		`, userID, current.Name, current.Destination, current.StartDate, current.EndDate,
			current.Budget, pq.Array(current.Interests), current.TravelStyle, current.Discoverable)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logrus.Error("profile update error: ", err)
			return
		}

		writeJSON(w, http.StatusOK, current)
	})
}

// GET /users/{id}
// Basic public info about another user, for match listings and chat.
func userHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "users" {
			http.NotFound(w, r)
			return
		}
		targetID := parts[1]

		var name string
		err := db.QueryRow(`SELECT name FROM users WHERE user_id = $1`, targetID).Scan(&name)
		if err == sql.ErrNoRows {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}

		writeJSON(w, http.StatusOK, MatchUserInfo{UserID: targetID, Name: name})
	})
}
