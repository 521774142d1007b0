package domain

import "time"

// SessionState is where a kiosk session is in its lifecycle.
type SessionState string

const (
	SessionStateCollecting SessionState = "collecting"
	SessionStateRunning    SessionState = "running"
	SessionStateFinished   SessionState = "finished"
	SessionStateFailed     SessionState = "failed"
	SessionStateCancelled  SessionState = "cancelled"
)

// Event kinds published on a session channel.
const (
	EventSessionStarted = "session.started"
	EventDetailsUpdated = "session.details_updated"
	EventRunStarted     = "run.started"
	EventRunFinished    = "run.finished"
	EventRunFailed      = "run.failed"
	EventRunCancelled   = "run.cancelled"
	EventPINConfirmed   = "pin.confirmed"
	EventPINRejected    = "pin.rejected"
	EventSessionEnded   = "session.ended"
)

// SessionEvent is the payload pushed to observers of a kiosk session.
type SessionEvent struct {
	SessionID string       `json:"session_id"`
	Kind      string       `json:"kind"`
	State     SessionState `json:"state"`
	Outcome   string       `json:"outcome,omitempty"`
	Step      string       `json:"step,omitempty"`
	Message   string       `json:"message,omitempty"`
	At        time.Time    `json:"at"`
}

// SessionChannel is the pub/sub channel for one session's events.
func SessionChannel(id string) string {
	return "kiosk:session:" + id
}

// SessionStream is the stream holding one session's event history.
func SessionStream(id string) string {
	return "kiosk:events:" + id
}

// AllSessionsPattern matches every session channel.
const AllSessionsPattern = "kiosk:session:*"
