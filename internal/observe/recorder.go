package observe

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// Recorder turns raw browser events into numbered observations and buffers the ones
// that pass the active capture filter. Nothing is buffered until Start is called.
type Recorder struct {
	sessionID string
	buffer    *Buffer

	mu          sync.Mutex
	capturing   bool
	filter      *Filter
	seq         uint64
	frameSeq    map[string]uint64 // connection id -> last frame number
	connections map[string]string // connection id -> url
}

// NewRecorder creates a recorder for one session
func NewRecorder(sessionID string) *Recorder {
	return &Recorder{
		sessionID:   sessionID,
		buffer:      NewBuffer(),
		frameSeq:    make(map[string]uint64),
		connections: make(map[string]string),
	}
}

// Start enables buffering with the given filter, replacing any previous filter
func (r *Recorder) Start(f models.ObservationFilter) error {
	compiled, err := CompileFilter(f)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.filter = compiled
	r.capturing = true
	r.mu.Unlock()
	return nil
}

// Capturing reports whether Start has been called
func (r *Recorder) Capturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

// Console records a console API call
func (r *Recorder) Console(level, text string, at time.Time) {
	r.Record(models.Observation{
		Category: models.CategoryConsole,
		Level:    level,
		Text:     text,
		Time:     at,
	})
}

// PageError records an uncaught exception
func (r *Recorder) PageError(text string, at time.Time) {
	r.Record(models.Observation{
		Category: models.CategoryPageError,
		Level:    "error",
		Text:     text,
		Time:     at,
	})
}

// RequestFailed records a network request that did not complete
func (r *Recorder) RequestFailed(url, reason string, at time.Time) {
	r.Record(models.Observation{
		Category: models.CategoryRequestFailed,
		URL:      url,
		Text:     strings.TrimSpace(reason + " " + url),
		Time:     at,
	})
}

// WebSocketCreated registers a connection so later frames carry its URL
func (r *Recorder) WebSocketCreated(connectionID, url string) {
	r.mu.Lock()
	r.connections[connectionID] = url
	r.mu.Unlock()
}

// WebSocketFrame records one frame on a connection
func (r *Recorder) WebSocketFrame(connectionID string, dir models.Direction, payload string, at time.Time) {
	r.Record(models.Observation{
		Category:     models.CategoryWebSocket,
		Direction:    dir,
		ConnectionID: connectionID,
		Text:         payload,
		Time:         at,
	})
}

// Record numbers obs, enriches it and buffers it when it passes the filter.
// Sequence numbers are assigned to every event seen so gaps show filtered events.
func (r *Recorder) Record(obs models.Observation) {
	if obs.Time.IsZero() {
		obs.Time = time.Now()
	}
	obs.SessionID = r.sessionID
	if obs.Payload == nil {
		obs.Payload, obs.Type = ParsePayload(obs.Text)
	}

	r.mu.Lock()
	r.seq++
	obs.Seq = r.seq
	if obs.Category == models.CategoryWebSocket && obs.ConnectionID != "" {
		r.frameSeq[obs.ConnectionID]++
		obs.FrameSeq = r.frameSeq[obs.ConnectionID]
		if obs.URL == "" {
			obs.URL = r.connections[obs.ConnectionID]
		}
	}
	// Append under the lock so buffer order always follows Seq
	if r.capturing && r.filter.Match(obs) {
		r.buffer.Append(obs)
	}
	r.mu.Unlock()
}

// Drain returns and clears the buffered observations
func (r *Recorder) Drain() []models.Observation {
	return r.buffer.Drain()
}

// ParsePayload decodes text as JSON. When it is an object with a string "type"
// field, that discriminator is returned as well.
func ParsePayload(text string) (interface{}, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, ""
	}
	var payload interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, ""
	}
	if obj, ok := payload.(map[string]interface{}); ok {
		if t, ok := obj["type"].(string); ok {
			return payload, t
		}
	}
	return payload, ""
}
