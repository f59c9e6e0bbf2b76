package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsbot/internal/models"
	"github.com/xhad/newsbot/pkg/pipeline"
)

type stubRunner struct {
	mu   sync.Mutex
	urls []string
}

func (r *stubRunner) lastURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urls
}

func (r *stubRunner) Process(ctx context.Context, urls []string) (pipeline.ProcessReport, error) {
	r.mu.Lock()
	r.urls = urls
	r.mu.Unlock()
	if len(pipeline.CleanURLs(urls)) == 0 {
		return pipeline.ProcessReport{}, pipeline.ErrNoURLs
	}
	return pipeline.ProcessReport{Documents: 1, Chunks: 2, Sources: []string{"http://example.com/a"}}, nil
}

func (r *stubRunner) Ask(ctx context.Context, question string) (models.QueryResult, error) {
	switch question {
	case "":
		return models.QueryResult{}, pipeline.ErrEmptyQuestion
	case "busy?":
		return models.QueryResult{}, pipeline.ErrBusy
	}
	return models.QueryResult{Answer: "Paragraph one.", Sources: []string{"http://example.com/a"}}, nil
}

type received struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data"`
}

func startServer(t *testing.T) (*httptest.Server, *Hub, *stubRunner) {
	t.Helper()
	runner := &stubRunner{}
	hub := NewHub()
	srv := httptest.NewServer(NewWSServer(Config{}, runner, hub).Handler())
	t.Cleanup(srv.Close)
	return srv, hub, runner
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg interface{}) received {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got received
	require.NoError(t, conn.ReadJSON(&got))
	return got
}

func TestHealthAndIndex(t *testing.T) {
	srv, _, _ := startServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "News Article URLs")

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProcessMessage(t *testing.T) {
	srv, _, runner := startServer(t)
	conn := dial(t, srv)

	got := roundTrip(t, conn, map[string]interface{}{
		"type": "process",
		"data": map[string]interface{}{"urls": []string{"http://example.com/a", "", ""}},
	})
	assert.Equal(t, "processed", got.Type)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []string{"http://example.com/a", "", ""}, runner.lastURLs())

	var data processedData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, 2, data.Chunks)

	got = roundTrip(t, conn, map[string]interface{}{"type": "process", "data": map[string]interface{}{"urls": []string{}}})
	assert.Equal(t, "warning", got.Type)
	assert.Equal(t, pipeline.ErrNoURLs.Error(), got.Content)
}

func TestQueryMessage(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	got := roundTrip(t, conn, Message{Type: "query", Content: "What happened?"})
	assert.Equal(t, "answer", got.Type)
	assert.Equal(t, "Paragraph one.", got.Content)

	var data answerData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, []string{"http://example.com/a"}, data.Sources)
	assert.Equal(t, "Sources:\nhttp://example.com/a", data.Formatted)

	got = roundTrip(t, conn, Message{Type: "query"})
	assert.Equal(t, "warning", got.Type)

	got = roundTrip(t, conn, Message{Type: "query", Content: "busy?"})
	assert.Equal(t, "busy", got.Type)

	got = roundTrip(t, conn, Message{Type: "dance"})
	assert.Equal(t, "error", got.Type)
}

func TestHubPublish(t *testing.T) {
	srv, hub, _ := startServer(t)
	conn := dial(t, srv)

	// the first reply guarantees the connection is registered
	roundTrip(t, conn, Message{Type: "query", Content: "hello"})

	hub.Publish(pipeline.State{Busy: false, Status: "ignored"})
	hub.Publish(pipeline.State{Busy: true, Stage: pipeline.StageFetching, Status: pipeline.StageFetching.Status()})

	got := read(t, conn)
	assert.Equal(t, "status", got.Type)
	assert.Equal(t, "Data Loading...Started...", got.Content)

	var data statusData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "fetching", data.Stage)
}
