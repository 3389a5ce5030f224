package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"treasury/internal/core"
	"treasury/internal/stream"
	"treasury/internal/types"
)

const (
	defaultWSWriteTimeout = 10 * time.Second
	wsReadLimit           = 4096
)

// StreamGateway is the subset of *stream.Gateway the stream handler uses.
type StreamGateway interface {
	Subscribe(filter string) (*stream.Subscription, error)
	Serve(ctx context.Context, sub *stream.Subscription, sink stream.Sink) error
}

type streamQuery struct {
	Account string `validate:"omitempty,address"`
}

// StreamConfig configures a StreamHandler.
type StreamConfig struct {
	Gateway   StreamGateway
	Validator *core.Validator
	Logger    *slog.Logger

	// AllowedOrigins gates WebSocket upgrades. Empty or "*" allows any origin.
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

// StreamHandler exposes the gateway over Server-Sent Events and WebSocket.
type StreamHandler struct {
	gateway      StreamGateway
	validator    *core.Validator
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(cfg StreamConfig) *StreamHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWSWriteTimeout
	}
	origins := cfg.AllowedOrigins
	return &StreamHandler{
		gateway:      cfg.Gateway,
		validator:    cfg.Validator,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 || slices.Contains(origins, "*") {
					return true
				}
				return slices.Contains(origins, origin)
			},
		},
	}
}

// RegisterRoutes mounts the long-lived stream endpoints. The caller must not
// wrap these in a request timeout or response compression.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.HandleSSE)
	r.Get("/ws", h.HandleWebSocket)
}

func (h *StreamHandler) parseQuery(w http.ResponseWriter, r *http.Request) (streamQuery, bool) {
	q := streamQuery{Account: r.URL.Query().Get("account")}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return q, false
	}
	return q, true
}

// subscribe attaches to the gateway before any response is written so a
// closed gateway can still be reported as 503.
func (h *StreamHandler) subscribe(w http.ResponseWriter, r *http.Request, account string) (*stream.Subscription, bool) {
	sub, err := h.gateway.Subscribe(account)
	if errors.Is(err, stream.ErrClosed) {
		core.Error(w, r, types.NewAppError(types.ErrCodeUnavailableShuttingDown, "server is shutting down", err))
		return nil, false
	}
	if err != nil {
		core.Error(w, r, err)
		return nil, false
	}
	return sub, true
}

// HandleSSE handles GET /v1/stream?account=. Each frame is written as an SSE
// event named after its topic.
func (h *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	sub, ok := h.subscribe(w, r, q.Account)
	if !ok {
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server-wide write timeout would cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(r.Context(), "sse flush unsupported", "error", err)
		return
	}

	h.logger.InfoContext(r.Context(), "sse subscriber connected", "subscription_id", sub.ID, "account", sub.Filter)

	err := h.gateway.Serve(r.Context(), sub, &sseSink{w: w, rc: rc})
	h.logger.InfoContext(r.Context(), "sse subscriber disconnected",
		"subscription_id", sub.ID,
		"dropped", sub.Dropped(),
		"error", err,
	)
}

// HandleWebSocket handles GET /v1/ws?account=. Frames are JSON messages; the
// client's messages are read and discarded so control frames are processed.
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseQuery(w, r)
	if !ok {
		return
	}

	sub, ok := h.subscribe(w, r, q.Account)
	if !ok {
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	h.logger.InfoContext(ctx, "websocket subscriber connected", "subscription_id", sub.ID, "account", sub.Filter)

	serveErr := h.gateway.Serve(ctx, sub, &wsSink{conn: conn, timeout: h.writeTimeout})

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.writeTimeout),
	)
	h.logger.InfoContext(r.Context(), "websocket subscriber disconnected",
		"subscription_id", sub.ID,
		"dropped", sub.Dropped(),
		"error", serveErr,
	)
}

type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (s *sseSink) WriteFrame(f stream.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", f.Topic, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) WriteKeepalive() error {
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// wsMessage is the WebSocket envelope. Type carries the topic.
type wsMessage struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	Payload any    `json:"payload"`
	Replay  bool   `json:"replay"`
}

type wsSink struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *wsSink) WriteFrame(f stream.Frame) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(wsMessage{
		Type:    string(f.Topic),
		Key:     f.Key,
		Payload: f.Payload,
		Replay:  f.Replay,
	})
}

func (s *wsSink) WriteKeepalive() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.timeout))
}
