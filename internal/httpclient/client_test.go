package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DoSendsJSONAndKeepsCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			w.WriteHeader(http.StatusNoContent)
		case "/api/echo":
			cookie, err := r.Cookie("sid")
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"cookie":       cookie.Value,
				"content_type": r.Header.Get("Content-Type"),
				"body":         string(body),
			})
		}
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL + "/"))
	require.NoError(t, err)

	ctx := context.Background()
	resp, err := client.Do(ctx, http.MethodPost, "/api/login", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = client.Do(ctx, http.MethodPost, "api/echo", nil, map[string]string{"message": "hi"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsJSON())
	assert.False(t, resp.IsHTML())

	var got map[string]string
	require.NoError(t, json.Unmarshal(resp.Body, &got))
	assert.Equal(t, "abc", got["cookie"])
	assert.Equal(t, "application/json", got["content_type"])
	assert.JSONEq(t, `{"message":"hi"}`, got["body"])
}

func TestClient_NonSuccessIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), "", "/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "boom")
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "http://localhost:5175/api/orchestrate", ResolveURL("http://localhost:5175/", "/api/orchestrate"))
	assert.Equal(t, "http://other/x", ResolveURL("http://localhost:5175", "http://other/x"))
	assert.Equal(t, "/relative", ResolveURL("", "/relative"))
}

func TestWaitReachable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := WaitReachable(context.Background(), server.URL, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestWaitReachable_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	start := time.Now()
	err := WaitReachable(context.Background(), target, 200*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL), WithRateLimit(0.5))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Do(ctx, http.MethodGet, "/", nil, nil)
	assert.Error(t, err, "second request must wait beyond the deadline")
}
