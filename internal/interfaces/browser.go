// -----------------------------------------------------------------------
// Browser interfaces - session factory, session and page contracts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// PageProbe runs read-only queries against the live page. Probes never mutate state.
// Exists, IsVisible and Count report absence as false/0; BoundingBox and TextContent
// return *models.ElementNotFoundError when nothing matches.
type PageProbe interface {
	// Inspect returns the full state of the first element matching selector (Count covers all matches)
	Inspect(ctx context.Context, selector string) (models.ElementState, error)

	Exists(ctx context.Context, selector string) (bool, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	BoundingBox(ctx context.Context, selector string) (*models.Rect, error)
	TextContent(ctx context.Context, selector string) (*string, error)
	Count(ctx context.Context, selector string) (int, error)

	// Evaluate runs a caller-supplied expression in page context and returns its JSON value.
	// With args, script must evaluate to a function which is called with them.
	Evaluate(ctx context.Context, script string, args ...interface{}) (interface{}, error)
}

// ActionDriver performs user-intent actions. Every element action requires the target
// to be visible and enabled, otherwise *models.ElementNotInteractableError.
// Outcomes are verified by the caller through PageProbe.
type ActionDriver interface {
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error // overwrites, never appends
	SelectOption(ctx context.Context, selector, value string) error
	PressKey(ctx context.Context, selector, key string) error
	Navigate(ctx context.Context, url string) error
}

// EventObserver buffers console, page error, failed request and WebSocket events for one session.
type EventObserver interface {
	// StartCapture begins buffering events that match filter. Calling it again replaces the filter.
	StartCapture(ctx context.Context, filter models.ObservationFilter) error

	// Record appends an observation produced outside the browser (e.g. a harness WebSocket client)
	Record(obs models.Observation)

	// Drain returns the buffered observations in emission order and clears the buffer
	Drain() []models.Observation
}

// Session is one browser process plus one page, owned by a single runner at a time.
type Session interface {
	ID() string
	Info() models.SessionInfo
	Probe() PageProbe
	Driver() ActionDriver
	Observer() EventObserver

	// Screenshot writes a PNG of the current viewport to path
	Screenshot(ctx context.Context, path string) error

	// Close releases the browser process and temporary profile. Safe to call more than once.
	Close() error
}

// SessionFactory opens sessions.
type SessionFactory interface {
	Open(ctx context.Context, config models.SessionConfig) (Session, error)
}
