package agent

import (
	"errors"
	"time"
)

// Message is one finalized utterance handed to the conversational agent.
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

var (
	// ErrInvalidRequest marks a request the agent will never accept; it is
	// surfaced immediately, never retried.
	ErrInvalidRequest = errors.New("agent rejected request shape")

	// ErrGatewayTimeout marks the agent's dedicated upstream-timeout
	// response; it gets the long escalating delays.
	ErrGatewayTimeout = errors.New("agent gateway timeout")
)

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

const DefaultTimeout = 90 * time.Second
