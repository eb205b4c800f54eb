// echo-agent is a minimal conversational agent for local development. It
// implements the dispatch contract the server expects: POST a message, get a
// reply. It echoes the transcript back with a prefix.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type Message struct {
	DeviceID    string    `json:"device_id"`
	UtteranceID string    `json:"utterance_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

type Reply struct {
	Text    string `json:"text"`
	AgentID string `json:"agent_id,omitempty"`
}

func main() {
	addr := os.Getenv("AGENT_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	token := os.Getenv("AGENT_TOKEN")

	http.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if msg.Text == "" {
			http.Error(w, "empty text", http.StatusUnprocessableEntity)
			return
		}

		log.Printf("[ECHO] %s (%s): %q", msg.DeviceID, msg.UtteranceID, msg.Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Reply{
			Text:    fmt.Sprintf("You said: %s", msg.Text),
			AgentID: "echo",
		})
	})

	log.Printf("[ECHO] Listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
