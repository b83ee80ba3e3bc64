package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Messaging between matched travellers. Persisting a message requires
// an accepted match between sender and receiver; canMessage is the
// single place that rule lives.

// canMessage reports whether two users may exchange messages: true iff
// a match exists between the pair with status exactly accepted. A user
// can never message themselves, regardless of match state.
func canMessage(db *sql.DB, userX, userY string) (bool, error) {
	if userX == userY {
		return false, nil
	}
	a, b := canonicalPair(userX, userY)
	var one int
	err := db.QueryRow(`
		SELECT 1
		FROM matches
		WHERE user_a_id = $1 AND user_b_id = $2 AND status = $3
		LIMIT 1
	`, a, b, StatusAccepted).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ChatMessage represents a chat message with metadata
type ChatMessage struct {
	ID     int64     `json:"id"`   // DB message id
	Type   string    `json:"type"` // "message"
	ChatID int       `json:"chat_id"`
	From   string    `json:"from"`
	To     string    `json:"to,omitempty"`
	Body   string    `json:"body,omitempty"`
	Ts     time.Time `json:"ts"` // created_at
}

// ServerEvent represents a server-sent event
type ServerEvent struct {
	Type string `json:"type"` // "message" | "typing" | "info" | "error"
	From string `json:"from,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan ServerEvent
	db     *sql.DB
}

// Hub manages WebSocket client connections
type Hub struct {
	clientsByUser map[string]map[*Client]bool
	mu            sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

func (h *Hub) sendToUser(userID string, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if peers, ok := h.clientsByUser[userID]; ok {
		for c := range peers {
			select {
			case c.send <- evt:
			default:
				// Drop message if user's buffer is full
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For development: allow the frontend dev origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// global hub
var chatHub = newHub()

func wsChatHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromRequest(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.Errorf("WS upgrade error for user %s: %v", userID, err)
			return
		}

		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
			db:     db,
		}
		chatHub.register(client)

		// Announce connection to this client
		client.send <- ServerEvent{Type: "info", Data: "connected"}

		// Start writer
		go clientWriter(client)
		// Start reader (blocks)
		clientReader(client)
	}
}

// Extract user ID from Authorization header using the existing jwtSecret.
// Mirrors authenticate(), but returns (id, ok) instead of wrapping a handler.
func getUserIDFromBearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 8 || auth[:7] != "Bearer " {
		return "", false
	}
	return parseUserIDFromJWT(auth[7:])
}

func getUserIDFromRequest(r *http.Request) (string, bool) {
	// Try Authorization header first
	if id, ok := getUserIDFromBearer(r); ok {
		return id, true
	}
	// Fallback: token query param for WS (browsers can't set headers)
	if q := r.URL.Query().Get("token"); q != "" {
		return parseUserIDFromJWT(q)
	}
	return "", false
}

func parseUserIDFromJWT(tokenStr string) (string, bool) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func clientReader(c *Client) {
	defer func() {
		chatHub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.send <- ServerEvent{Type: "error", Data: "invalid message format"}
			continue
		}

		switch msg.Type {
		case "message":
			// Save to database; this enforces the accepted-match gate.
			id, chatID, ts, err := saveChatMsg(c.db, c.userID, msg.To, msg.Body)
			if err != nil {
				c.send <- ServerEvent{Type: "error", Data: "cannot send message"}
				continue
			}

			outMsg := ChatMessage{
				ID:     id,
				Type:   "message",
				ChatID: chatID,
				From:   c.userID,
				To:     msg.To,
				Body:   msg.Body,
				Ts:     ts,
			}
			// minimal relay: send to recipient and echo back to sender
			out := ServerEvent{
				Type: "message",
				From: c.userID,
				Data: outMsg,
			}

			chatHub.sendToUser(msg.To, out)
			chatHub.sendToUser(c.userID, out) // echo (so sender UI updates instantly)

		case "typing":
			// notify recipient that sender is typing
			chatHub.sendToUser(msg.To, ServerEvent{Type: "typing", From: c.userID})

		default:
			c.send <- ServerEvent{Type: "error", Data: "unknown message type"}
		}
	}
}

func clientWriter(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// saveChatMsg persists a message after re-checking the accepted-match
// gate inside the transaction, so the permission and the insert are
// one atomic step.
func saveChatMsg(db *sql.DB, fromUserID, toUserID string, content string) (int64, int, time.Time, error) {
	if fromUserID == toUserID {
		return 0, 0, time.Time{}, ErrInvalidPair
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			_ = tx.Commit()
		}
	}()

	// 1) Make sure an accepted match exists between the two users
	a, b := canonicalPair(fromUserID, toUserID)
	var ok int
	err = tx.QueryRow(`
		SELECT 1
		FROM matches
		WHERE user_a_id = $1 AND user_b_id = $2 AND status = $3
		LIMIT 1
	`, a, b, StatusAccepted).Scan(&ok)
	if err != nil {
		if err == sql.ErrNoRows {
			err = ErrNotAuthorized
		}
		return 0, 0, time.Time{}, err
	}

	// 2) Fetch or create a chat id
	var chatID int
	err = tx.QueryRow(`
		SELECT id
		FROM chats
		WHERE user1_id = LEAST($1::text, $2::text) AND user2_id = GREATEST($1::text, $2::text)
		LIMIT 1
	`, fromUserID, toUserID).Scan(&chatID)
	if err == sql.ErrNoRows {
		// Create
		err = tx.QueryRow(`
			INSERT INTO chats (user1_id, user2_id)
			VALUES (LEAST($1::text, $2::text), GREATEST($1::text, $2::text))
			ON CONFLICT (user1_id, user2_id) DO NOTHING
			RETURNING id
		`, fromUserID, toUserID).Scan(&chatID)
		if err == sql.ErrNoRows {
			// Race: someone else created first -> refetch
			err = tx.QueryRow(`
				SELECT id
				FROM chats
				WHERE user1_id = LEAST($1::text, $2::text) AND user2_id = GREATEST($1::text, $2::text)
				LIMIT 1
			`, fromUserID, toUserID).Scan(&chatID)
		}
	}
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	// 3) Add message
	var msgID int64
	var createdAt time.Time
	err = tx.QueryRow(`
		INSERT INTO messages (chat_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, chatID, fromUserID, content).Scan(&msgID, &createdAt)
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	// 4) Update last_message_at and unread for the peer
	_, err = tx.Exec(`
		UPDATE chats c
		SET last_message_at = $3,
			unread_for_user1 = CASE WHEN $2 = c.user2_id THEN TRUE ELSE unread_for_user1 END,
			unread_for_user2 = CASE WHEN $2 = c.user1_id THEN TRUE ELSE unread_for_user2 END
		WHERE c.id = $1
	`, chatID, fromUserID, createdAt)
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	return msgID, chatID, createdAt, nil
}

// POST /chat/send
// REST fallback for sending a message. Requires an accepted match with
// the receiver; attempts without one get a 403, not a silent drop.
func sendMessageHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "invalid_method")
			return
		}
		userID := r.Context().Value(userIDKey).(string)

		type sendRequest struct {
			ReceiverID  string `json:"receiver_id"`
			MessageText string `json:"message_text"`
		}
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.ReceiverID == "" || strings.TrimSpace(req.MessageText) == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		if req.ReceiverID == userID {
			writeError(w, http.StatusBadRequest, "invalid_pair")
			return
		}

		exists, err := userExists(db, req.ReceiverID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logrus.Error("userExists error: ", err)
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		allowed, err := canMessage(db, userID, req.ReceiverID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			logrus.Error("canMessage error: ", err)
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "no_accepted_match")
			return
		}

		msgID, chatID, ts, err := saveChatMsg(db, userID, req.ReceiverID, req.MessageText)
		if err != nil {
			writeStoreError(w, err)
			logrus.Debug("saveChatMsg error: ", err)
			return
		}

		msg := ChatMessage{
			ID:     msgID,
			Type:   "message",
			ChatID: chatID,
			From:   userID,
			To:     req.ReceiverID,
			Body:   req.MessageText,
			Ts:     ts,
		}
		// Push to any live websocket sessions of either side
		out := ServerEvent{Type: "message", From: userID, Data: msg}
		chatHub.sendToUser(req.ReceiverID, out)
		chatHub.sendToUser(userID, out)

		writeJSON(w, http.StatusCreated, msg)
	})
}

func getChatMessages(db *sql.DB, userID, otherUserID string, limit int, before *time.Time) ([]ChatMessage, error) {
	// 1) Resolve chat id
	var chatID int
	err := db.QueryRow(`
		SELECT id
		FROM chats
		WHERE user1_id = LEAST($1::text, $2::text) AND user2_id = GREATEST($1::text, $2::text)
		LIMIT 1
	`, userID, otherUserID).Scan(&chatID)
	if err != nil {
		if err == sql.ErrNoRows {
			return []ChatMessage{}, nil
		}
		return nil, err
	}

	// 2) Fetch messages
	q := `
		SELECT id, sender_id, content, created_at
		FROM messages
		WHERE chat_id = $1
			AND ($2::timestamptz IS NULL OR created_at < $2)
			ORDER BY created_at DESC
		LIMIT $3`

	var rows *sql.Rows
	if before != nil {
		rows, err = db.Query(q, chatID, *before, limit)
	} else {
		rows, err = db.Query(q, chatID, nil, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]ChatMessage, 0, limit)
	for rows.Next() {
		var msgID int64
		var senderID string
		var body string
		var createdAt time.Time
		if err := rows.Scan(&msgID, &senderID, &body, &createdAt); err != nil {
			return nil, err
		}

		msgs = append(msgs, ChatMessage{
			ID:     msgID,
			Type:   "message",
			ChatID: chatID,
			From:   senderID,
			Body:   body,
			Ts:     createdAt,
		})
	}

	if err := rows.Err(); err != nil {
		// Don't mark as read if the query failed
		return nil, err
	}

	// 3) Mark messages from the other user as read and clear the unread flag
	_, _ = db.Exec(`
		UPDATE messages
		SET is_read = TRUE
		WHERE chat_id = $1 AND sender_id <> $2 AND is_read IS FALSE
	`, chatID, userID)

	_, _ = db.Exec(`
		UPDATE chats c
		SET unread_for_user1 = CASE WHEN $2 = c.user1_id THEN FALSE ELSE unread_for_user1 END,
			unread_for_user2 = CASE WHEN $2 = c.user2_id THEN FALSE ELSE unread_for_user2 END
		WHERE c.id = $1
	`, chatID, userID)

	return msgs, nil
}

// GET /chats/{otherUserID}/messages?limit=50&before=2025-09-16T08:00:00Z
func getChatHistoryHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromBearer(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "chats" || parts[2] != "messages" {
			http.NotFound(w, r)
			return
		}
		otherID := parts[1]

		// query params
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		var beforePtr *time.Time
		if s := r.URL.Query().Get("before"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				beforePtr = &t
			}
		}

		msgs, err := getChatMessages(db, userID, otherID, limit, beforePtr)
		if err != nil {
			http.Error(w, "failed to fetch messages", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msgs)
	}
}
