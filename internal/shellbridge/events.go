package shellbridge

import "time"

// EventType identifies what an Event carries.
type EventType string

const (
	// EventStatus carries a lifecycle Status and message.
	EventStatus EventType = "status"
	// EventData carries bytes received from the remote shell.
	EventData EventType = "data"
	// EventEcho carries bytes the caller sent while no shell was streaming.
	EventEcho EventType = "echo"
)

// Status is the lifecycle status reported to the display.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Event is one item of the bridge's output stream.
type Event struct {
	Type      EventType `json:"type"`
	Attempt   uint64    `json:"attempt"`
	Status    Status    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

func statusEvent(attempt uint64, status Status, message string) Event {
	return Event{
		Type:      EventStatus,
		Attempt:   attempt,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func dataEvent(attempt uint64, typ EventType, data []byte) Event {
	return Event{
		Type:      typ,
		Attempt:   attempt,
		Data:      data,
		Timestamp: time.Now(),
	}
}
