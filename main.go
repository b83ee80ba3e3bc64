package main

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

var jwtSecret []byte

func main() {
	cfg := loadConfig()
	initLogger(cfg)
	jwtSecret = []byte(cfg.JWTSecret)

	initDB(cfg.DatabaseURL)

	mux := http.NewServeMux()

	// Core auth & user endpoints
	mux.Handle("/register", registerHandler(db))
	mux.Handle("/login", loginHandler(db))
	mux.Handle("/me", meHandler(db))
	mux.Handle("/me/profile", meProfileHandler(db))

	// Recommendations & matches. The actions router picks up
	// PATCH /matches/{id}/status.
	mux.Handle("/recommendations", recommendationsHandler(db))
	mux.Handle("/matches", matchesHandler(db))
	mux.Handle("/matches/", matchesActionsRouter(db))

	// Other users' basic info
	mux.Handle("/users/", userHandler(db))

	// Chat: REST send, conversation summaries, history, websocket
	mux.Handle("/chat/send", sendMessageHandler(db))
	mux.Handle("/chat/conversations", conversationsHandler(db))
	mux.Handle("/chats/", getChatHistoryHandler(db)) // /chats/{id}/messages
	mux.Handle("/ws/chat", wsChatHandler(db))

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logrus.Infof("Starting WanderMatch backend on %s...", addr)
	if err := http.ListenAndServe(addr, withCORS(mux)); err != nil {
		logrus.Fatal("Server error: ", err)
	}
}
