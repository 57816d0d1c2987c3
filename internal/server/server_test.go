package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/resource-overlay/internal/analyzer"
	"github.com/GriffinCanCode/resource-overlay/internal/config"
	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
)

type mockBackend struct {
	mu        sync.Mutex
	snaps     []orchestrator.Snapshot
	events    chan orchestrator.Snapshot
	paused    bool
	resolveFn func() (ocr.Executable, error)
	triggerFn func() orchestrator.Snapshot
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		events: make(chan orchestrator.Snapshot, 10),
		resolveFn: func() (ocr.Executable, error) {
			return ocr.Executable{Path: "/opt/ocr_service"}, nil
		},
	}
}

func okSnapshot() orchestrator.Snapshot {
	return orchestrator.Snapshot{
		ID:         uuid.New(),
		CapturedAt: time.Now(),
		Result:     &analyzer.AnalysisResult{ResourceCount: 1},
		Summary:    "Found 1 resources with 0 numeric values",
		Display:    []string{"🍖 FOOD: 1000 (👤5)"},
	}
}

func (m *mockBackend) Trigger(context.Context) orchestrator.Snapshot {
	snap := okSnapshot()
	if m.triggerFn != nil {
		snap = m.triggerFn()
	}
	m.mu.Lock()
	m.snaps = append(m.snaps, snap)
	m.mu.Unlock()
	m.events <- snap
	return snap
}

func (m *mockBackend) Latest() (orchestrator.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return orchestrator.Snapshot{}, false
	}
	return m.snaps[len(m.snaps)-1], true
}

func (m *mockBackend) History(n int) []orchestrator.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 && n < len(m.snaps) {
		return m.snaps[len(m.snaps)-n:]
	}
	return m.snaps
}

func (m *mockBackend) Events() <-chan orchestrator.Snapshot { return m.events }

func (m *mockBackend) ResolveEngine(context.Context) (ocr.Executable, error) { return m.resolveFn() }

func (m *mockBackend) SelfTest(context.Context) (string, error) { return "Standalone test passed", nil }

func (m *mockBackend) EngineStatus() orchestrator.EngineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return orchestrator.EngineStatus{Status: ocr.Status{Resolved: true}, Paused: m.paused, Healthy: true}
}

func (m *mockBackend) SetPaused(p bool) {
	m.mu.Lock()
	m.paused = p
	m.mu.Unlock()
}

func newTestServer(t *testing.T, b *mockBackend) *Server {
	t.Helper()
	s := New(b, &config.Config{CORSOrigins: []string{"*"}, WSRateLimit: 2})
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestLatestReadings(t *testing.T) {
	b := newMockBackend()
	h := newTestServer(t, b).Handler()

	rec := do(t, h, http.MethodGet, "/api/readings")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty store status = %d, want 404", rec.Code)
	}
	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != "NOT_FOUND" {
		t.Errorf("error code = %q, want NOT_FOUND", body.Code)
	}

	snap := b.Trigger(context.Background())
	rec = do(t, h, http.MethodGet, "/api/readings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got orchestrator.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != snap.ID || got.Summary != snap.Summary {
		t.Errorf("got %+v, want %+v", got, snap)
	}
	if rec.Header().Get(trace.TraceIDKey) == "" {
		t.Error("response should carry a trace id")
	}
}

func TestHistoryLimit(t *testing.T) {
	b := newMockBackend()
	h := newTestServer(t, b).Handler()
	for i := 0; i < 3; i++ {
		b.Trigger(context.Background())
	}

	rec := do(t, h, http.MethodGet, "/api/readings/history?limit=2")
	var body struct {
		Readings []orchestrator.Snapshot `json:"readings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Readings) != 2 {
		t.Errorf("readings = %d, want 2", len(body.Readings))
	}

	if rec := do(t, h, http.MethodGet, "/api/readings/history?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestCaptureStatusFollowsSnapshot(t *testing.T) {
	b := newMockBackend()
	h := newTestServer(t, b).Handler()

	if rec := do(t, h, http.MethodPost, "/api/capture"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	b.triggerFn = func() orchestrator.Snapshot {
		return orchestrator.Snapshot{ID: uuid.New(), Error: "engine paused", ErrorCode: apperrors.OCREnginePaused.String()}
	}
	if rec := do(t, h, http.MethodPost, "/api/capture"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("paused engine status = %d, want 503", rec.Code)
	}

	b.triggerFn = func() orchestrator.Snapshot {
		return orchestrator.Snapshot{ID: uuid.New(), Error: "timeout", ErrorCode: apperrors.OCRTimeout.String()}
	}
	if rec := do(t, h, http.MethodPost, "/api/capture"); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("timeout status = %d, want 504", rec.Code)
	}

	if rec := do(t, h, http.MethodGet, "/api/capture"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/capture status = %d, want 405", rec.Code)
	}
}

func TestEngineEndpoints(t *testing.T) {
	b := newMockBackend()
	h := newTestServer(t, b).Handler()

	if rec := do(t, h, http.MethodGet, "/api/engine"); rec.Code != http.StatusOK {
		t.Errorf("engine status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/engine/selftest"); !strings.Contains(rec.Body.String(), "Standalone test passed") {
		t.Errorf("selftest body = %s", rec.Body.String())
	}

	b.resolveFn = func() (ocr.Executable, error) {
		return ocr.Executable{}, apperrors.New(apperrors.OCRResolutionFailed, "no python interpreter found")
	}
	rec := do(t, h, http.MethodPost, "/api/engine/resolve")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("resolve failure status = %d, want 503", rec.Code)
	}
	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != "OCR_RESOLUTION_FAILED" || body.Error != "no python interpreter found" {
		t.Errorf("body = %+v", body)
	}
}

func TestPauseResume(t *testing.T) {
	b := newMockBackend()
	h := newTestServer(t, b).Handler()

	do(t, h, http.MethodPost, "/api/pause")
	if !b.EngineStatus().Paused {
		t.Error("pause not applied")
	}
	do(t, h, http.MethodPost, "/api/resume")
	if b.EngineStatus().Paused {
		t.Error("resume not applied")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, newMockBackend()).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/capture", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"*", "http://localhost:3000", "app.example.com"})
	want := []string{"*", "localhost:3000", "app.example.com"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("originPatterns()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func dialWS(t *testing.T, h http.Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readType(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocketCaptureBroadcast(t *testing.T) {
	b := newMockBackend()
	conn, ctx := dialWS(t, newTestServer(t, b).Handler())

	if err := wsjson.Write(ctx, conn, Message{Type: MsgCapture}); err != nil {
		t.Fatal(err)
	}
	msg := readType(t, ctx, conn)
	if msg["type"] != "readings" {
		t.Fatalf("type = %v, want readings", msg["type"])
	}
	if msg["summary"] != "Found 1 resources with 0 numeric values" {
		t.Errorf("summary = %v", msg["summary"])
	}
}

func TestWebSocketResolveAndUnknown(t *testing.T) {
	conn, ctx := dialWS(t, newTestServer(t, newMockBackend()).Handler())

	_ = wsjson.Write(ctx, conn, Message{Type: MsgResolve})
	msg := readType(t, ctx, conn)
	if msg["type"] != "engine" || msg["resolved"] != true {
		t.Errorf("resolve reply = %v", msg)
	}

	_ = wsjson.Write(ctx, conn, Message{Type: "chat"})
	msg = readType(t, ctx, conn)
	if msg["type"] != "error" || msg["code"] != "INVALID_ARGUMENT" {
		t.Errorf("unknown type reply = %v", msg)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	conn, ctx := dialWS(t, newTestServer(t, newMockBackend()).Handler())

	for i := 0; i < 5; i++ {
		_ = wsjson.Write(ctx, conn, Message{Type: "noop"})
	}
	limited := false
	for i := 0; i < 5; i++ {
		msg := readType(t, ctx, conn)
		if msg["message"] == "rate limit exceeded" {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst beyond the limit should be rejected")
	}
}
