// Package trace carries W3C-style trace and span IDs through context and into slog.
package trace

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Header and metadata keys used for propagation.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context holds trace identifiers for a single span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New creates a root context with fresh IDs.
func New() Context {
	return Context{TraceID: generateTraceID(), SpanID: generateSpanID()}
}

// NewChild creates a child context from parent.
func NewChild(parent Context) Context {
	return Context{
		TraceID:      parent.TraceID,
		SpanID:       generateSpanID(),
		ParentSpanID: parent.SpanID,
	}
}

// Continue starts a local span under a remote trace. Empty traceID starts a new trace.
func Continue(traceID, parentSpanID string) Context {
	if !validID(traceID, 32) {
		return New()
	}
	tc := Context{TraceID: traceID, SpanID: generateSpanID()}
	if validID(parentSpanID, 16) {
		tc.ParentSpanID = parentSpanID
	}
	return tc
}

// FromContext extracts trace context from context.Context.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext injects trace context into context.Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns existing trace context or creates a new one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// 128-bit trace ID as 32 lowercase hex chars.
func generateTraceID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// 64-bit span ID as 16 lowercase hex chars.
func generateSpanID() string {
	return generateTraceID()[:16]
}

func validID(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	Ctx       Context
	StartTime time.Time

	mu      sync.Mutex
	endTime time.Time
	attrs   map[string]any
}

// StartSpan begins a span, as a child when ctx already carries a trace.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok {
		tc = NewChild(parent)
	}
	s := &Span{Name: name, Ctx: tc, StartTime: time.Now(), attrs: make(map[string]any)}
	return WithContext(ctx, tc), s
}

// End marks the span as complete. Later calls keep the first end time.
func (s *Span) End() {
	s.mu.Lock()
	if s.endTime.IsZero() {
		s.endTime = time.Now()
	}
	s.mu.Unlock()
}

// SetAttr sets a span attribute.
func (s *Span) SetAttr(key string, val any) {
	s.mu.Lock()
	s.attrs[key] = val
	s.mu.Unlock()
}

// Attrs returns a copy of the span attributes.
func (s *Span) Attrs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.attrs)
}

// Duration returns the span duration, or the elapsed time if the span is still open.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	end := s.endTime
	s.mu.Unlock()
	if end.IsZero() {
		return time.Since(s.StartTime)
	}
	return end.Sub(s.StartTime)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", s.Name),
		slog.Duration("duration", s.Duration()),
	}
	for k, v := range s.Attrs() {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

// LogAttrs returns slog attributes for the IDs.
func (c Context) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("trace_id", c.TraceID),
		slog.String("span_id", c.SpanID),
	}
	if c.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", c.ParentSpanID))
	}
	return attrs
}

// Logger returns the default logger annotated with the trace in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := make([]any, 0, 3)
	for _, a := range tc.LogAttrs() {
		args = append(args, a)
	}
	return slog.Default().With(args...)
}
