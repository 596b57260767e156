package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ternarybob/vigil/internal/httpclient"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/observe"
)

var wsConnectionSeq atomic.Uint64

// wsURL resolves target against base and maps http(s) to ws(s)
func wsURL(base, target string) string {
	resolved := httpclient.ResolveURL(base, target)
	switch {
	case strings.HasPrefix(resolved, "https://"):
		return "wss://" + strings.TrimPrefix(resolved, "https://")
	case strings.HasPrefix(resolved, "http://"):
		return "ws://" + strings.TrimPrefix(resolved, "http://")
	}
	return resolved
}

// runWS connects to a realtime endpoint as a client, sends one frame and, when
// ExpectType is set, reads until a frame with that type discriminator arrives.
// Every frame is recorded on the session observer so observe steps and
// assertions see harness traffic next to page traffic.
func runWS(ctx context.Context, dialer *websocket.Dialer, observer interfaces.EventObserver, base string, req *models.WSRequest) (string, error) {
	target := wsURL(base, req.URL)
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("failed to connect to %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return "", fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	defer conn.Close()

	connectionID := fmt.Sprintf("vigil-ws-%d", wsConnectionSeq.Add(1))
	record := func(dir models.Direction, text string) {
		observer.Record(models.Observation{
			Category:     models.CategoryWebSocket,
			Direction:    dir,
			ConnectionID: connectionID,
			URL:          target,
			Text:         text,
		})
	}

	payload := req.SendText
	if req.Send != nil {
		raw, err := json.Marshal(normalizeJSON(req.Send))
		if err != nil {
			return "", fmt.Errorf("failed to encode ws frame: %w", err)
		}
		payload = string(raw)
	}
	if payload != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return "", fmt.Errorf("failed to send ws frame: %w", err)
		}
		record(models.DirectionSent, payload)
	}

	if req.ExpectType == "" {
		return fmt.Sprintf("connected to %s", target), nil
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var seen []string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			state := fmt.Sprintf("received types %v", seen)
			var netErr net.Error
			if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
				return state, mismatch("ws "+target+" reply", "type="+req.ExpectType, state)
			}
			return state, fmt.Errorf("failed to read ws frame: %w", err)
		}
		text := string(data)
		record(models.DirectionReceived, text)
		_, frameType := observe.ParsePayload(text)
		if frameType == req.ExpectType {
			return fmt.Sprintf("received %s", frameType), nil
		}
		seen = append(seen, frameType)
	}
}
