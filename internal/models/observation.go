package models

import "time"

// ObservationCategory classifies a captured browser event.
type ObservationCategory string

const (
	CategoryConsole       ObservationCategory = "console"
	CategoryPageError     ObservationCategory = "pageerror"
	CategoryRequestFailed ObservationCategory = "requestfailed"
	CategoryWebSocket     ObservationCategory = "websocket"
)

// AllCategories lists every category in capture order.
func AllCategories() []ObservationCategory {
	return []ObservationCategory{CategoryConsole, CategoryPageError, CategoryRequestFailed, CategoryWebSocket}
}

// Direction is the WebSocket frame direction relative to the page.
type Direction string

const (
	DirectionNone     Direction = ""
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Observation is one timestamped event captured from a session.
// Observations are append-only and belong to exactly one session.
type Observation struct {
	Seq          uint64              `json:"seq"` // Monotonic per session, browser emission order
	SessionID    string              `json:"session_id"`
	Time         time.Time           `json:"time"`
	Category     ObservationCategory `json:"category"`
	Level        string              `json:"level,omitempty"` // console level: log, warning, error...
	Direction    Direction           `json:"direction,omitempty"`
	ConnectionID string              `json:"connection_id,omitempty"` // WebSocket connection (CDP request id)
	FrameSeq     uint64              `json:"frame_seq,omitempty"`     // Monotonic per connection, starts at 1
	URL          string              `json:"url,omitempty"`
	Text         string              `json:"text"`
	Type         string              `json:"type,omitempty"`    // value of a JSON payload's "type" field
	Payload      interface{}         `json:"payload,omitempty"` // parsed JSON when Text is valid JSON
}

// ObservationFilter narrows what a capture buffers.
// Zero value accepts everything.
type ObservationFilter struct {
	Categories []ObservationCategory `toml:"categories" yaml:"categories" json:"categories,omitempty"`
	Contains   string                `toml:"contains" yaml:"contains" json:"contains,omitempty"`
	Pattern    string                `toml:"pattern" yaml:"pattern" json:"pattern,omitempty"` // regular expression on Text
}
