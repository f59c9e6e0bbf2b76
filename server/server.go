package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/newsbot/internal/models"
	"github.com/xhad/newsbot/pkg/llm"
	"github.com/xhad/newsbot/pkg/pipeline"
)

//go:embed static/index.html
var static embed.FS

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single local user
	},
}

// Runner is the part of pipeline.App the server drives.
type Runner interface {
	Process(ctx context.Context, urls []string) (pipeline.ProcessReport, error)
	Ask(ctx context.Context, question string) (models.QueryResult, error)
}

// Message is the JSON frame exchanged over /ws.
type Message struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Content string      `json:"content,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type inbound struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data"`
}

type processRequest struct {
	URLs []string `json:"urls"`
}

type processedData struct {
	Documents int      `json:"documents"`
	Chunks    int      `json:"chunks"`
	Sources   []string `json:"sources"`
	Path      string   `json:"path,omitempty"`
}

type answerData struct {
	Sources   []string `json:"sources"`
	Formatted string   `json:"formatted"`
}

type statusData struct {
	Stage string `json:"stage"`
}

type Config struct {
	Addr string
}

// WSServer serves the web form and runs tasks requested over websockets.
type WSServer struct {
	config Config
	runner Runner
	hub    *Hub
}

func NewWSServer(config Config, runner Runner, hub *Hub) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if hub == nil {
		hub = NewHub()
	}
	return &WSServer{
		config: config,
		runner: runner,
		hub:    hub,
	}
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page, err := static.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	})
	return mux
}

// ListenAndServe runs until ctx is cancelled.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting web server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn}
	s.hub.add(c)
	defer func() {
		s.hub.remove(c)
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.send(Message{Type: "error", Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		go s.handleMessage(ctx, c, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *client, msg inbound) {
	id := uuid.NewString()

	switch msg.Type {
	case "process":
		var req processRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.send(Message{Type: "error", ID: id, Content: fmt.Sprintf("invalid process request: %v", err)})
				return
			}
		}

		report, err := s.runner.Process(ctx, req.URLs)
		if err != nil {
			c.send(errorMessage(id, err))
			return
		}
		c.send(Message{
			Type:    "processed",
			ID:      id,
			Content: pipeline.StagePersisted.Status(),
			Data: processedData{
				Documents: report.Documents,
				Chunks:    report.Chunks,
				Sources:   report.Sources,
				Path:      report.Path,
			},
		})

	case "query":
		result, err := s.runner.Ask(ctx, msg.Content)
		if err != nil {
			c.send(errorMessage(id, err))
			return
		}
		c.send(Message{
			Type:    "answer",
			ID:      id,
			Content: result.Answer,
			Data: answerData{
				Sources:   result.Sources,
				Formatted: llm.FormatSources(result.Sources),
			},
		})

	default:
		c.send(Message{Type: "error", ID: id, Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// errorMessage maps input problems to warnings and everything else to errors.
func errorMessage(id string, err error) Message {
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		return Message{Type: "busy", ID: id, Content: err.Error()}
	case pipeline.IsInputError(err):
		return Message{Type: "warning", ID: id, Content: err.Error()}
	default:
		return Message{Type: "error", ID: id, Content: err.Error()}
	}
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// Hub fans pipeline state changes out to every connected client.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Publish sends a status frame for a running task. It matches the
// onChange signature of pipeline.NewApp.
func (h *Hub) Publish(state pipeline.State) {
	if !state.Busy || state.Status == "" {
		return
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	msg := Message{Type: "status", Content: state.Status, Data: statusData{Stage: state.Stage.String()}}
	for _, c := range clients {
		c.send(msg)
	}
}
