package models

import "time"

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionConfig configures one browser process and page.
type SessionConfig struct {
	Headless     bool          `json:"headless"`
	ChromePath   string        `json:"chrome_path,omitempty"` // Empty = let chromedp locate Chrome
	Args         []string      `json:"args,omitempty"`        // Extra launch flags, "name" or "name=value"
	Permissions  []string      `json:"permissions,omitempty"` // e.g. "microphone", "camera", "notifications"
	Viewport     Viewport      `json:"viewport"`
	NoSandbox    bool          `json:"no_sandbox"`
	StartTimeout time.Duration `json:"start_timeout"` // Launch + target reachability budget
	TargetURL    string        `json:"target_url,omitempty"`
}

// SessionInfo describes a live or closed session.
type SessionInfo struct {
	ID          string       `json:"id"`
	Viewport    Viewport     `json:"viewport"`
	Permissions []string     `json:"permissions,omitempty"`
	State       SessionState `json:"state"`
	StartedAt   time.Time    `json:"started_at"`
}

// Rect is an element bounding box relative to the viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementState is the snapshot a probe takes of the first element matching a selector.
type ElementState struct {
	Count   int     `json:"count"`
	Visible bool    `json:"visible"`
	Enabled bool    `json:"enabled"`
	Text    *string `json:"text,omitempty"`
	Value   *string `json:"value,omitempty"`
	Rect    *Rect   `json:"rect,omitempty"`
}

// Exists reports whether at least one element matched.
func (e ElementState) Exists() bool {
	return e.Count > 0
}

// Interactable reports whether an action may target the element.
func (e ElementState) Interactable() bool {
	return e.Count > 0 && e.Visible && e.Enabled
}
