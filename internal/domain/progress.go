package domain

import "encoding/json"

// EventKind classifies a progress event.
type EventKind string

const (
	EventInfo      EventKind = "info"
	EventWarning   EventKind = "warning"
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventSummary   EventKind = "summary"
)

// ProgressEvent is one entry of the human-readable status stream emitted
// during a sync. Succeeded and Failed are terminal for a course.
type ProgressEvent struct {
	Kind    EventKind `json:"kind"`
	Course  string    `json:"course,omitempty"`
	Team    string    `json:"team,omitempty"`
	Message string    `json:"message"`
	// Count carries the number the message cites: members added for
	// Succeeded, failed users for Warning, failed courses for Summary.
	Count int   `json:"count,omitempty"`
	Err   error `json:"-"`
}

// Terminal reports whether the event ends a course.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventSucceeded || e.Kind == EventFailed
}

// String returns the message.
func (e ProgressEvent) String() string {
	return e.Message
}

// MarshalJSON adds the error detail to the wire form.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	type plain ProgressEvent
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(e)}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return json.Marshal(out)
}

// Info builds an informational event.
func Info(msg string) ProgressEvent {
	return ProgressEvent{Kind: EventInfo, Message: msg}
}

// Failed builds a failure event carrying err.
func Failed(msg string, err error) ProgressEvent {
	return ProgressEvent{Kind: EventFailed, Message: msg, Err: err}
}
