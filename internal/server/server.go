// Package server provides the HTTP API and the WebSocket readings feed.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"

	"github.com/GriffinCanCode/resource-overlay/internal/config"
	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
)

// Backend is what the server needs from the orchestrator.
type Backend interface {
	Trigger(ctx context.Context) orchestrator.Snapshot
	Latest() (orchestrator.Snapshot, bool)
	History(n int) []orchestrator.Snapshot
	Events() <-chan orchestrator.Snapshot
	ResolveEngine(ctx context.Context) (ocr.Executable, error)
	SelfTest(ctx context.Context) (string, error)
	EngineStatus() orchestrator.EngineStatus
	SetPaused(paused bool)
}

type client struct {
	conn    *websocket.Conn
	send    chan any
	limiter *rate.Limiter
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	backend     Backend
	origins     []string
	wsRateLimit rate.Limit

	mu      sync.RWMutex
	clients map[*client]struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates a server and starts fanning snapshots out to WebSocket clients.
func New(backend Backend, cfg *config.Config) *Server {
	s := &Server{
		backend:     backend,
		origins:     cfg.CORSOrigins,
		wsRateLimit: rate.Limit(cfg.WSRateLimit),
		clients:     make(map[*client]struct{}),
		done:        make(chan struct{}),
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	go s.broadcastReadings()
	return s
}

// Close stops the broadcaster and disconnects every WebSocket client.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		for c := range s.clients {
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.mu.Unlock()
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{trace.TraceIDKey},
	}))
	r.Use(trace.Middleware)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/readings", s.handleLatest)
		r.Get("/readings/history", s.handleHistory)
		r.Post("/capture", s.handleCapture)
		r.Get("/engine", s.handleEngine)
		r.Post("/engine/resolve", s.handleResolve)
		r.Post("/engine/selftest", s.handleSelfTest)
		r.Post("/pause", s.handlePause(true))
		r.Post("/resume", s.handlePause(false))
	})
	return r
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.backend.Latest()
	if !ok {
		writeError(w, apperrors.New(apperrors.NotFound, "no readings captured yet"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperrors.Newf(apperrors.InvalidArgument, "limit %q: want a non-negative integer", v))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": s.backend.History(limit)})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	snap := s.backend.Trigger(r.Context())
	status := http.StatusOK
	if snap.Error != "" {
		status = httpStatus(apperrors.New(apperrors.ParseCode(snap.ErrorCode), snap.Error).GRPCCode())
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleEngine(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.EngineStatus())
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	exe, err := s.backend.ResolveEngine(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executable": exe, "status": s.backend.EngineStatus()})
}

func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	msg, err := s.backend.SelfTest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.backend.SetPaused(paused)
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(s.origins)})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(MaxReadSize)

	c := &client{
		conn:    conn,
		send:    make(chan any, SendBuffer),
		limiter: rate.NewLimiter(s.wsRateLimit, max(1, int(s.wsRateLimit))),
	}
	if snap, ok := s.backend.Latest(); ok {
		c.send <- readingsMessage(snap)
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.writeLoop(ctx, c)

	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.Allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.reply(c, ErrorMessage{Type: "error", Code: apperrors.Unavailable.String(), Message: "rate limit exceeded"})
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.reply(c, ErrorMessage{Type: "error", Code: apperrors.InvalidArgument.String(), Message: "invalid message"})
			continue
		}
		msgCtx := ctx
		if tc, ok := trace.FromMessage(raw); ok {
			msgCtx = trace.WithContext(ctx, tc)
		}
		s.dispatch(msgCtx, c, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, msg Message) {
	ctx, span := trace.StartSpan(ctx, "ws_"+msg.Type)
	defer span.End()

	switch msg.Type {
	case MsgCapture:
		// The snapshot reaches this client through the broadcast.
		snap := s.backend.Trigger(ctx)
		if snap.Error != "" && snap.ErrorCode == apperrors.Cancelled.String() {
			return
		}
		span.SetAttr("snapshot", snap.ID.String())
	case MsgResolve:
		exe, err := s.backend.ResolveEngine(ctx)
		reply := EngineMessage{Type: "engine", EngineStatus: s.backend.EngineStatus()}
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Executable = &exe
		}
		s.reply(c, reply)
	default:
		s.reply(c, ErrorMessage{Type: "error", Code: apperrors.InvalidArgument.String(), Message: "unknown message type " + strconv.Quote(msg.Type)})
	}
	trace.Logger(ctx).Debug("websocket message handled", "span", span)
}

// reply queues msg for one client, dropping it when the client is not keeping up.
func (s *Server) reply(c *client, msg any) {
	select {
	case c.send <- msg:
	default:
		slog.Warn("websocket client too slow, message dropped")
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				slog.Debug("websocket write error", "error", err)
				_ = c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (s *Server) broadcastReadings() {
	events := s.backend.Events()
	for {
		select {
		case <-s.done:
			return
		case snap := <-events:
			msg := readingsMessage(snap)
			s.mu.RLock()
			for c := range s.clients {
				s.reply(c, msg)
			}
			s.mu.RUnlock()
		}
	}
}

// originPatterns converts CORS origins into the host patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

type errorBody struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.Unknown, err.Error())
	}
	writeJSON(w, httpStatus(appErr.GRPCCode()), errorBody{
		Error:    appErr.Message,
		Code:     appErr.Code.String(),
		Metadata: appErr.Metadata,
	})
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition, codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Internal:
		// engine-side failures
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
