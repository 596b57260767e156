// -----------------------------------------------------------------------
// Scenario - immutable test case definition loaded from TOML/YAML files
// -----------------------------------------------------------------------

package models

// StepKind identifies what a step does.
type StepKind string

const (
	// Probes (read-only)
	StepExists   StepKind = "exists"
	StepVisible  StepKind = "visible"
	StepHidden   StepKind = "hidden"
	StepCount    StepKind = "count"
	StepText     StepKind = "text"
	StepBBox     StepKind = "bbox"
	StepEvaluate StepKind = "evaluate"

	// Actions (state-mutating)
	StepNavigate StepKind = "navigate"
	StepClick    StepKind = "click"
	StepFill     StepKind = "fill"
	StepSelect   StepKind = "select"
	StepPress    StepKind = "press"

	// Harness steps
	StepWaitFor    StepKind = "wait_for"
	StepObserve    StepKind = "observe"
	StepDrain      StepKind = "drain"
	StepScreenshot StepKind = "screenshot"
	StepHTTP       StepKind = "http"
	StepWS         StepKind = "ws"
)

// IsAction reports whether the step mutates page state.
func (k StepKind) IsAction() bool {
	switch k {
	case StepNavigate, StepClick, StepFill, StepSelect, StepPress:
		return true
	}
	return false
}

// NeedsSelector reports whether the step targets a DOM element.
func (k StepKind) NeedsSelector() bool {
	switch k {
	case StepExists, StepVisible, StepHidden, StepCount, StepText, StepBBox,
		StepClick, StepFill, StepSelect, StepPress, StepWaitFor:
		return true
	}
	return false
}

// Scenario is a named, ordered list of steps plus scenario-wide observation assertions.
// Treat as immutable once loaded.
type Scenario struct {
	Name        string             `toml:"name" yaml:"name" json:"name" validate:"required"`
	Description string             `toml:"description" yaml:"description" json:"description,omitempty"`
	Tags        []string           `toml:"tags" yaml:"tags" json:"tags,omitempty"`
	Policy      FailurePolicy      `toml:"failure_policy" yaml:"failure_policy" json:"failure_policy,omitempty" validate:"omitempty,oneof=continue abort"`
	Timeout     Duration           `toml:"timeout" yaml:"timeout" json:"timeout,omitempty"` // Whole-scenario budget
	Capture     *ObservationFilter `toml:"capture" yaml:"capture" json:"capture,omitempty"`
	Steps       []Step             `toml:"steps" yaml:"steps" json:"steps" validate:"required,min=1,dive"`
	Assertions  []ObservationQuery `toml:"assertions" yaml:"assertions" json:"assertions,omitempty" validate:"dive"`

	SourceFile string `toml:"-" yaml:"-" json:"source_file,omitempty"`
}

// Step is one probe, action or harness operation with its declared expected outcome.
type Step struct {
	Name     string        `toml:"name" yaml:"name" json:"name,omitempty"`
	Kind     StepKind      `toml:"kind" yaml:"kind" json:"kind" validate:"required,oneof=exists visible hidden count text bbox evaluate navigate click fill select press wait_for observe drain screenshot http ws"`
	Selector string        `toml:"selector" yaml:"selector" json:"selector,omitempty"`
	Text     string        `toml:"text" yaml:"text" json:"text,omitempty"`   // fill
	Value    string        `toml:"value" yaml:"value" json:"value,omitempty"` // select
	Key      string        `toml:"key" yaml:"key" json:"key,omitempty"`       // press
	URL      string        `toml:"url" yaml:"url" json:"url,omitempty"`       // navigate; relative to base_url
	Script   string        `toml:"script" yaml:"script" json:"script,omitempty"`
	Args     []interface{} `toml:"args" yaml:"args" json:"args,omitempty"`
	Timeout  Duration      `toml:"timeout" yaml:"timeout" json:"timeout,omitempty"`
	Critical bool          `toml:"critical" yaml:"critical" json:"critical,omitempty"` // abort scenario on failure

	Retry   *Retry            `toml:"retry" yaml:"retry" json:"retry,omitempty"`
	Expect  *Expect           `toml:"expect" yaml:"expect" json:"expect,omitempty"`
	HTTP    *HTTPRequest      `toml:"http" yaml:"http" json:"http,omitempty"`
	WS      *WSRequest        `toml:"ws" yaml:"ws" json:"ws,omitempty"`
	Observe *ObservationQuery `toml:"observe" yaml:"observe" json:"observe,omitempty"`
}

// Label returns the step name, or its kind and selector.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Selector != "" {
		return string(s.Kind) + " " + s.Selector
	}
	if s.URL != "" {
		return string(s.Kind) + " " + s.URL
	}
	return string(s.Kind)
}

// ExpectsAbsence reports whether the step asserts the selector must not match.
func (s Step) ExpectsAbsence() bool {
	if s.Kind == StepHidden {
		return true
	}
	if s.Expect == nil {
		return false
	}
	if s.Expect.Exists != nil && !*s.Expect.Exists {
		return true
	}
	return s.Expect.Count != nil && *s.Expect.Count == 0
}

// Retry turns a step into condition polling (retryUntil).
type Retry struct {
	Timeout      Duration `toml:"timeout" yaml:"timeout" json:"timeout" validate:"required"`
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval" json:"poll_interval,omitempty"`
}

// Expect declares the expected outcome of a probe step.
// Nil fields are not checked.
type Expect struct {
	Exists       *bool       `toml:"exists" yaml:"exists" json:"exists,omitempty"`
	Visible      *bool       `toml:"visible" yaml:"visible" json:"visible,omitempty"`
	Enabled      *bool       `toml:"enabled" yaml:"enabled" json:"enabled,omitempty"`
	Count        *int        `toml:"count" yaml:"count" json:"count,omitempty"`
	Text         *string     `toml:"text" yaml:"text" json:"text,omitempty"`
	TextContains string      `toml:"text_contains" yaml:"text_contains" json:"text_contains,omitempty"`
	Value        *string     `toml:"value" yaml:"value" json:"value,omitempty"`
	Equals       interface{} `toml:"equals" yaml:"equals" json:"equals,omitempty"` // evaluate result, compared as JSON
	MinWidth     float64     `toml:"min_width" yaml:"min_width" json:"min_width,omitempty"`
	MinHeight    float64     `toml:"min_height" yaml:"min_height" json:"min_height,omitempty"`
}

// HTTPRequest is a direct call to the application's HTTP API.
type HTTPRequest struct {
	Method  string            `toml:"method" yaml:"method" json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Path    string            `toml:"path" yaml:"path" json:"path" validate:"required"` // absolute URL or relative to api_url
	Headers map[string]string `toml:"headers" yaml:"headers" json:"headers,omitempty"`
	Body    interface{}       `toml:"body" yaml:"body" json:"body,omitempty"` // sent as JSON
	Status  int               `toml:"status" yaml:"status" json:"status,omitempty"`
	JSON    []JSONExpect      `toml:"json" yaml:"json" json:"json,omitempty" validate:"dive"`
	HTML    []HTMLExpect      `toml:"html" yaml:"html" json:"html,omitempty" validate:"dive"`
}

// JSONExpect checks one gjson path of a JSON response body.
type JSONExpect struct {
	Path        string      `toml:"path" yaml:"path" json:"path" validate:"required"`
	Exists      *bool       `toml:"exists" yaml:"exists" json:"exists,omitempty"`
	Equals      interface{} `toml:"equals" yaml:"equals" json:"equals,omitempty"`
	Contains    interface{} `toml:"contains" yaml:"contains" json:"contains,omitempty"`       // array element or substring
	Occurrences *int        `toml:"occurrences" yaml:"occurrences" json:"occurrences,omitempty"` // exact count of Contains in an array
	Length      *int        `toml:"length" yaml:"length" json:"length,omitempty"`
}

// HTMLExpect checks a CSS selector against an HTML response body.
type HTMLExpect struct {
	Selector     string `toml:"selector" yaml:"selector" json:"selector" validate:"required"`
	Count        *int   `toml:"count" yaml:"count" json:"count,omitempty"`
	TextContains string `toml:"text_contains" yaml:"text_contains" json:"text_contains,omitempty"`
}

// WSRequest opens a client connection to a realtime endpoint, sends one frame
// and optionally waits for a reply frame of a given type.
type WSRequest struct {
	URL        string      `toml:"url" yaml:"url" json:"url" validate:"required"` // ws(s):// or relative to base_url
	Send       interface{} `toml:"send" yaml:"send" json:"send,omitempty"`         // marshalled as JSON
	SendText   string      `toml:"send_text" yaml:"send_text" json:"send_text,omitempty"`
	ExpectType string      `toml:"expect_type" yaml:"expect_type" json:"expect_type,omitempty"`
}

// ObservationQuery selects observations and constrains how many there are.
// Used by observe steps (current window) and scenario assertions (whole run).
type ObservationQuery struct {
	Name      string              `toml:"name" yaml:"name" json:"name,omitempty"`
	Category  ObservationCategory `toml:"category" yaml:"category" json:"category,omitempty" validate:"omitempty,oneof=console pageerror requestfailed websocket"`
	Direction Direction           `toml:"direction" yaml:"direction" json:"direction,omitempty" validate:"omitempty,oneof=sent received"`
	Type      string              `toml:"type" yaml:"type" json:"type,omitempty"`
	Contains  string              `toml:"contains" yaml:"contains" json:"contains,omitempty"`
	Pattern   string              `toml:"pattern" yaml:"pattern" json:"pattern,omitempty"`
	Count     *int                `toml:"count" yaml:"count" json:"count,omitempty"`
	Min       *int                `toml:"min" yaml:"min" json:"min,omitempty"`
	Max       *int                `toml:"max" yaml:"max" json:"max,omitempty"`
}
