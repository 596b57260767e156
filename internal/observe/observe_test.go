package observe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/models"
)

func intPtr(i int) *int { return &i }

func TestBuffer_DrainIsConsuming(t *testing.T) {
	b := NewBuffer()
	b.Append(models.Observation{Text: "one"})
	b.Append(models.Observation{Text: "two"})

	first := b.Drain()
	require.Len(t, first, 2)
	assert.Equal(t, "one", first[0].Text)
	assert.Equal(t, "two", first[1].Text)

	second := b.Drain()
	assert.Empty(t, second, "second drain must return nothing")
}

func TestBuffer_ConcurrentAppendAndDrain(t *testing.T) {
	b := NewBuffer()
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Append(models.Observation{Seq: uint64(i + 1)})
		}
	}()

	seen := make(map[uint64]bool, total)
	deadline := time.Now().Add(10 * time.Second)
	for len(seen) < total && time.Now().Before(deadline) {
		for _, obs := range b.Drain() {
			require.False(t, seen[obs.Seq], "observation %d drained twice", obs.Seq)
			seen[obs.Seq] = true
		}
	}
	wg.Wait()
	for _, obs := range b.Drain() {
		require.False(t, seen[obs.Seq], "observation %d drained twice", obs.Seq)
		seen[obs.Seq] = true
	}

	assert.Len(t, seen, total, "no observation may be lost")
}

func TestRecorder_NothingBufferedBeforeStart(t *testing.T) {
	r := NewRecorder("s1")
	r.Console("log", "early", time.Now())
	assert.Empty(t, r.Drain())

	require.NoError(t, r.Start(models.ObservationFilter{}))
	r.Console("log", "late", time.Now())

	got := r.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].Text)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, uint64(2), got[0].Seq, "sequence counts every event seen")
}

func TestRecorder_FilterByCategoryAndText(t *testing.T) {
	r := NewRecorder("s1")
	require.NoError(t, r.Start(models.ObservationFilter{
		Categories: []models.ObservationCategory{models.CategoryConsole, models.CategoryPageError},
		Pattern:    `(?i)error|fail`,
	}))

	now := time.Now()
	r.Console("log", "all good", now)
	r.Console("error", "Request failed: 500", now)
	r.PageError("TypeError: x is undefined", now)
	r.RequestFailed("http://localhost/api", "net::ERR_FAILED", now)
	r.WebSocketFrame("c1", models.DirectionSent, `{"type":"error"}`, now)

	got := r.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, models.CategoryConsole, got[0].Category)
	assert.Equal(t, models.CategoryPageError, got[1].Category)
}

func TestRecorder_InvalidFilter(t *testing.T) {
	r := NewRecorder("s1")
	assert.Error(t, r.Start(models.ObservationFilter{Pattern: "("}))
	assert.Error(t, r.Start(models.ObservationFilter{Categories: []models.ObservationCategory{"dom"}}))
	assert.False(t, r.Capturing())
}

func TestRecorder_WebSocketFramesNumberedPerConnection(t *testing.T) {
	r := NewRecorder("s1")
	require.NoError(t, r.Start(models.ObservationFilter{}))
	r.WebSocketCreated("a", "ws://localhost:5175/ws")
	r.WebSocketCreated("b", "ws://localhost:5175/voice")

	now := time.Now()
	r.WebSocketFrame("a", models.DirectionSent, `{"type":"session.update"}`, now)
	r.WebSocketFrame("b", models.DirectionSent, `{"type":"input_audio_buffer.append"}`, now)
	r.WebSocketFrame("a", models.DirectionReceived, `{"type":"session.updated"}`, now)
	r.WebSocketFrame("a", models.DirectionSent, `not json`, now)

	got := r.Drain()
	require.Len(t, got, 4)

	assert.Equal(t, uint64(1), got[0].FrameSeq)
	assert.Equal(t, "ws://localhost:5175/ws", got[0].URL)
	assert.Equal(t, "session.update", got[0].Type)

	assert.Equal(t, uint64(1), got[1].FrameSeq)
	assert.Equal(t, "ws://localhost:5175/voice", got[1].URL)

	assert.Equal(t, uint64(2), got[2].FrameSeq)
	assert.Equal(t, models.DirectionReceived, got[2].Direction)

	assert.Equal(t, uint64(3), got[3].FrameSeq)
	assert.Nil(t, got[3].Payload)
	assert.Empty(t, got[3].Type)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Seq, got[i-1].Seq, "emission order must be preserved")
	}
}

func TestParsePayload(t *testing.T) {
	payload, typ := ParsePayload(`{"type":"response.create","response":{"modalities":["text"]}}`)
	assert.Equal(t, "response.create", typ)
	require.IsType(t, map[string]interface{}{}, payload)

	payload, typ = ParsePayload(`[1,2,3]`)
	assert.Empty(t, typ)
	assert.Len(t, payload, 3)

	payload, typ = ParsePayload(`{"type": 7}`)
	assert.NotNil(t, payload)
	assert.Empty(t, typ)

	payload, typ = ParsePayload(`ping`)
	assert.Nil(t, payload)
	assert.Empty(t, typ)
}

func TestSelect_DuplicateResponseCreateDetected(t *testing.T) {
	r := NewRecorder("s1")
	require.NoError(t, r.Start(models.ObservationFilter{Categories: []models.ObservationCategory{models.CategoryWebSocket}}))
	now := time.Now()

	// one user send: a conversation item followed by exactly one response request
	r.WebSocketFrame("c1", models.DirectionSent, `{"type":"conversation.item.create","item":{"text":"ping"}}`, now)
	r.WebSocketFrame("c1", models.DirectionSent, `{"type":"response.create"}`, now)
	r.WebSocketFrame("c1", models.DirectionReceived, `{"type":"response.created"}`, now)

	query := models.ObservationQuery{
		Category:  models.CategoryWebSocket,
		Direction: models.DirectionSent,
		Type:      "response.create",
		Count:     intPtr(1),
	}

	window := r.Drain()
	matched, err := Select(window, query)
	require.NoError(t, err)
	assert.NoError(t, CheckCount(query, len(matched)))
	assert.Equal(t, 1, CountByType(window, models.DirectionSent)["response.create"])

	// a provider that asks for the response twice breaks the invariant
	r.WebSocketFrame("c1", models.DirectionSent, `{"type":"response.create"}`, now)
	r.WebSocketFrame("c1", models.DirectionSent, `{"type":"response.create"}`, now)
	matched, err = Select(r.Drain(), query)
	require.NoError(t, err)

	err = CheckCount(query, len(matched))
	var mismatch *models.AssertionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "count=1", mismatch.Expected)
	assert.Equal(t, "count=2", mismatch.Actual)
}

func TestCountSatisfied(t *testing.T) {
	tests := []struct {
		query models.ObservationQuery
		n     int
		want  bool
	}{
		{models.ObservationQuery{}, 0, false},
		{models.ObservationQuery{}, 3, true},
		{models.ObservationQuery{Count: intPtr(0)}, 0, true},
		{models.ObservationQuery{Min: intPtr(2)}, 1, false},
		{models.ObservationQuery{Min: intPtr(1), Max: intPtr(2)}, 2, true},
		{models.ObservationQuery{Max: intPtr(2)}, 3, false},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			assert.Equal(t, tt.want, CountSatisfied(tt.query, tt.n))
		})
	}
}
