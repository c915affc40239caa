// Package websocket defines the live attempt stream protocol.
package websocket

import "github.com/stemsi/mockexam-backend/internal/assessment"

// ─── Actions (Client → Server) ──────────────────────────────────────

// ActionPing is answered with a pong. Every other action is an attempt
// command (select, clear, goto, next, previous, flag, next_flagged, submit,
// snapshot).
const ActionPing = "ping"

// Request is one client message.
type Request struct {
	Action   string `json:"action"`
	Question int    `json:"question"`
	Option   int    `json:"option"`
	Index    int    `json:"index"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventTick   Event = "tick"
	EventGraded Event = "graded"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// Message is one server push. Snapshot is absent on pong and error.
type Message struct {
	Event    Event                `json:"event"`
	Snapshot *assessment.Snapshot `json:"snapshot,omitempty"`
	Result   *assessment.Result   `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}
