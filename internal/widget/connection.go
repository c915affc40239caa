// Package widget holds the server-side model of the floating voice
// assistant: its connection state machine, drag/dock/dismiss geometry and
// the learner's persisted widget preferences.
package widget

// State is the voice connection state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// Event is an SDK callback or user intent fed into the machine.
type Event string

const (
	EventConnect      Event = "connect"
	EventConnected    Event = "connected"
	EventFailed       Event = "failed"
	EventDisconnected Event = "disconnected"
	EventReset        Event = "reset"
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventConnect: StateConnecting,
	},
	StateConnecting: {
		EventConnected:    StateConnected,
		EventFailed:       StateError,
		EventDisconnected: StateDisconnected,
	},
	StateConnected: {
		EventFailed:       StateError,
		EventDisconnected: StateDisconnected,
	},
	StateDisconnected: {
		EventConnect: StateConnecting,
		EventReset:   StateIdle,
	},
	StateError: {
		EventConnect: StateConnecting,
		EventReset:   StateIdle,
	},
}

// Connection tracks one voice session. Not safe for concurrent use.
type Connection struct {
	state    State
	lastErr  string
	attempts int
}

// NewConnection returns an idle connection.
func NewConnection() *Connection {
	return &Connection{state: StateIdle}
}

func (c *Connection) State() State { return c.state }
func (c *Connection) LastError() string { return c.lastErr }

// Attempts counts connect attempts since the last successful connection.
func (c *Connection) Attempts() int { return c.attempts }

// Fire applies ev. It returns false and leaves the state unchanged when ev
// is not valid in the current state.
func (c *Connection) Fire(ev Event) bool {
	next, ok := transitions[c.state][ev]
	if !ok {
		return false
	}
	switch ev {
	case EventConnect:
		c.attempts++
	case EventConnected:
		c.attempts = 0
		c.lastErr = ""
	case EventReset:
		c.attempts = 0
		c.lastErr = ""
	}
	c.state = next
	return true
}

// Fail records reason and moves to the error state.
func (c *Connection) Fail(reason string) bool {
	if !c.Fire(EventFailed) {
		return false
	}
	c.lastErr = reason
	return true
}

// Active reports whether a session is being set up or is live.
func (c *Connection) Active() bool {
	return c.state == StateConnecting || c.state == StateConnected
}
