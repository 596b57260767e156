package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"

	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/observe"
)

// Observer implements interfaces.EventObserver on top of CDP target events.
// Events arrive on chromedp's event goroutine and are numbered by the recorder
// in the order the browser emits them.
type Observer struct {
	recorder *observe.Recorder

	mu       sync.Mutex
	requests map[network.RequestID]string // in-flight request id -> url
}

func newObserver(sessionID string) *Observer {
	return &Observer{
		recorder: observe.NewRecorder(sessionID),
		requests: make(map[network.RequestID]string),
	}
}

// StartCapture begins buffering events matching filter
func (o *Observer) StartCapture(ctx context.Context, filter models.ObservationFilter) error {
	return o.recorder.Start(filter)
}

// Record appends an observation produced outside the page
func (o *Observer) Record(obs models.Observation) {
	o.recorder.Record(obs)
}

// Drain returns and clears buffered observations
func (o *Observer) Drain() []models.Observation {
	return o.recorder.Drain()
}

// handleEvent is registered with chromedp.ListenTarget
func (o *Observer) handleEvent(ev interface{}) {
	now := time.Now()
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		at := now
		if e.Timestamp != nil {
			at = e.Timestamp.Time()
		}
		o.recorder.Console(string(e.Type), consoleText(e.Args), at)

	case *runtime.EventExceptionThrown:
		o.recorder.PageError(exceptionText(e.ExceptionDetails), now)

	case *network.EventRequestWillBeSent:
		if e.Request != nil {
			o.mu.Lock()
			o.requests[e.RequestID] = e.Request.URL
			o.mu.Unlock()
		}

	case *network.EventLoadingFinished:
		o.mu.Lock()
		delete(o.requests, e.RequestID)
		o.mu.Unlock()

	case *network.EventLoadingFailed:
		o.mu.Lock()
		url := o.requests[e.RequestID]
		delete(o.requests, e.RequestID)
		o.mu.Unlock()
		reason := e.ErrorText
		if e.Canceled {
			reason = strings.TrimSpace(reason + " (canceled)")
		}
		o.recorder.RequestFailed(url, reason, now)

	case *network.EventWebSocketCreated:
		o.recorder.WebSocketCreated(string(e.RequestID), e.URL)

	case *network.EventWebSocketFrameSent:
		if e.Response != nil {
			o.recorder.WebSocketFrame(string(e.RequestID), models.DirectionSent, e.Response.PayloadData, now)
		}

	case *network.EventWebSocketFrameReceived:
		if e.Response != nil {
			o.recorder.WebSocketFrame(string(e.RequestID), models.DirectionReceived, e.Response.PayloadData, now)
		}
	}
}

// consoleText joins console arguments the way DevTools prints them
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		parts = append(parts, remoteObjectText(arg))
	}
	return strings.Join(parts, " ")
}

func remoteObjectText(obj *runtime.RemoteObject) string {
	if len(obj.Value) > 0 {
		raw := []byte(obj.Value)
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return string(raw)
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

func exceptionText(details *runtime.ExceptionDetails) string {
	if details == nil {
		return ""
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	return details.Text
}
