package main

import (
	"database/sql"
	"net/http"
	"time"
)

// ConversationSummary is one chat peer with recent activity.
type ConversationSummary struct {
	UserID         string     `json:"user_id"`
	Name           string     `json:"name"`
	LastMessage    *string    `json:"last_message,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	UnreadMessages int        `json:"unread_messages"`
}

// GET /chat/conversations
// Returns every accepted-match peer of the logged in user with the
// peer's name, latest message and unread count, most recent first.
// Peers without any messages yet still appear (the match is accepted,
// so the conversation is open).
func conversationsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromBearer(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}

		// CTEs for clarity.
		// 1) accepted = all peer ids from accepted matches
		// 2) chat_pairs = possible chats row for this peer (NULL if no messages)
		// 3) lasts = latest message per chat
		// 4) unreads = unread messages sent to me by this peer
		const q = `
WITH accepted AS (
  SELECT CASE WHEN m.user_a_id = $1 THEN m.user_b_id ELSE m.user_a_id END AS peer_id
  FROM matches m
  WHERE m.status = 'accepted' AND (m.user_a_id = $1 OR m.user_b_id = $1)
),
chat_pairs AS (
  SELECT a.peer_id,
         ch.id AS chat_id,
         ch.last_message_at
  FROM accepted a
  LEFT JOIN chats ch
    ON ch.user1_id = LEAST($1::text, a.peer_id)
   AND ch.user2_id = GREATEST($1::text, a.peer_id)
),
lasts AS (
  SELECT cp.peer_id,
         (SELECT msg.content FROM messages msg
          WHERE msg.chat_id = cp.chat_id
          ORDER BY msg.created_at DESC, msg.id DESC
          LIMIT 1) AS last_message
  FROM chat_pairs cp
),
unreads AS (
  SELECT cp.peer_id,
         COALESCE(SUM(CASE WHEN msg.is_read = FALSE AND msg.sender_id = cp.peer_id THEN 1 ELSE 0 END), 0) AS unread_count
  FROM chat_pairs cp
  LEFT JOIN messages msg ON msg.chat_id = cp.chat_id
  GROUP BY cp.peer_id
)
SELECT
  u.user_id,
  u.name,
  l.last_message,
  cp.last_message_at,
  un.unread_count
FROM chat_pairs cp
JOIN users u ON u.user_id = cp.peer_id
LEFT JOIN lasts l ON l.peer_id = cp.peer_id
LEFT JOIN unreads un ON un.peer_id = cp.peer_id
ORDER BY cp.last_message_at DESC NULLS LAST, u.user_id ASC`

		rows, err := db.Query(q, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		defer rows.Close()

		summaries := make([]ConversationSummary, 0)
		for rows.Next() {
			var s ConversationSummary
			var lastMessage sql.NullString
			var lastMessageAt sql.NullTime
			if err := rows.Scan(&s.UserID, &s.Name, &lastMessage, &lastMessageAt, &s.UnreadMessages); err != nil {
				writeError(w, http.StatusInternalServerError, "db_error")
				return
			}
			if lastMessage.Valid {
				s.LastMessage = &lastMessage.String
			}
			if lastMessageAt.Valid {
				t := lastMessageAt.Time
				s.LastMessageAt = &t
			}
			summaries = append(summaries, s)
		}

		writeJSON(w, http.StatusOK, summaries)
	}
}
