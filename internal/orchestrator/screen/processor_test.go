package screen

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/resource-overlay/internal/analyzer"
	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator/readings"
	"github.com/GriffinCanCode/resource-overlay/internal/resilience"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

type mockCapturer struct {
	mu       sync.Mutex
	frames   []detection.ImagePayload
	changed  bool
	failures int // leading calls that fail with CaptureFailed
	calls    int
}

func (m *mockCapturer) next() (detection.ImagePayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return detection.ImagePayload{}, apperrors.New(apperrors.CaptureFailed, "display busy")
	}
	img := m.frames[0]
	if len(m.frames) > 1 {
		m.frames = m.frames[1:]
	}
	return img, nil
}

func (m *mockCapturer) Capture(context.Context) (detection.ImagePayload, bool, error) {
	img, err := m.next()
	return img, m.changed, err
}

func (m *mockCapturer) CaptureAlways(context.Context) (detection.ImagePayload, error) {
	return m.next()
}

func (m *mockCapturer) Close() {}

type mockOCR struct {
	calls atomic.Int32
	err   error
}

func (m *mockOCR) Recognize(_ context.Context, img detection.ImagePayload) (*ocr.Result, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &ocr.Result{
		Text: "FOOD 1000 5",
		Detections: []detection.Detection{
			{Text: "FOOD", Confidence: 0.98, BoundingBox: detection.Polygon{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 22}, {X: 10, Y: 22}}},
			{Text: "1000", Confidence: 0.95, BoundingBox: detection.Polygon{{X: 60, Y: 5}, {X: 90, Y: 5}, {X: 90, Y: 15}, {X: 60, Y: 15}}},
			{Text: "5", Confidence: 0.9, BoundingBox: detection.Polygon{{X: 60, Y: 25}, {X: 70, Y: 25}, {X: 70, Y: 35}, {X: 60, Y: 35}}},
		},
	}, nil
}

// makePatternPNG creates frames with distinct perceptual hashes.
func makePatternPNG(pattern int) detection.ImagePayload {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var c color.RGBA
			switch pattern {
			case 0: // solid gray
				c = color.RGBA{R: 128, G: 128, B: 128, A: 255}
			case 1: // checkerboard
				if (x/8+y/8)%2 == 0 {
					c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
				} else {
					c = color.RGBA{A: 255}
				}
			case 2: // horizontal gradient
				c = color.RGBA{R: uint8(x * 4), B: uint8(255 - x*4), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return detection.ImagePayload{Data: buf.Bytes(), Format: "png"}
}

func newTestProcessor(cap *mockCapturer, rec Recognizer, skipSimilar bool) *Processor {
	return NewProcessor(cap, rec, analyzer.New(analyzer.PolicyShared),
		resilience.New(resilience.Config{Threshold: 2, ResetTimeout: time.Hour}),
		readings.NewStore(10, 10),
		Options{SkipSimilar: skipSimilar, Retry: resilience.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}})
}

func TestCyclePublishesReadings(t *testing.T) {
	rec := &mockOCR{}
	p := newTestProcessor(&mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}, changed: true}, rec, true)

	snap := p.Cycle(context.Background(), false)

	if !snap.OK() {
		t.Fatalf("snapshot failed: %s %s", snap.ErrorCode, snap.Error)
	}
	if snap.Result.ResourceCount != 1 || snap.Result.Resources[0].Resource != analyzer.Food {
		t.Errorf("resources = %+v, want one FOOD reading", snap.Result.Resources)
	}
	if snap.Summary == "" || len(snap.Display) != 1 {
		t.Errorf("summary %q display %v", snap.Summary, snap.Display)
	}
	if latest, ok := p.store.Latest(); !ok || latest.ID != snap.ID {
		t.Error("snapshot not published")
	}
}

func TestCycleSkipsUnchangedFrame(t *testing.T) {
	rec := &mockOCR{}
	cap := &mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}, changed: true}
	p := newTestProcessor(cap, rec, false)

	first := p.Cycle(context.Background(), false)
	cap.changed = false
	second := p.Cycle(context.Background(), false)

	if !second.Skipped || second.ID != first.ID {
		t.Errorf("unchanged frame should repeat the last snapshot as skipped, got %+v", second)
	}
	if rec.calls.Load() != 1 {
		t.Errorf("engine calls = %d, want 1", rec.calls.Load())
	}
	if len(p.store.Recent(0)) != 1 {
		t.Error("skipped cycle must not be stored")
	}
}

func TestCycleSkipsSimilarFrame(t *testing.T) {
	rec := &mockOCR{}
	p := newTestProcessor(&mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1), makePatternPNG(1), makePatternPNG(2)}, changed: true}, rec, true)

	p.Cycle(context.Background(), false)
	if snap := p.Cycle(context.Background(), false); !snap.Skipped {
		t.Error("identical frame should be skipped")
	}
	if snap := p.Cycle(context.Background(), false); snap.Skipped {
		t.Error("distinct frame should be recognized")
	}
	if rec.calls.Load() != 2 {
		t.Errorf("engine calls = %d, want 2", rec.calls.Load())
	}
}

func TestForcedCycleBypassesSkip(t *testing.T) {
	rec := &mockOCR{}
	p := newTestProcessor(&mockCapturer{frames: []detection.ImagePayload{makePatternPNG(0)}}, rec, true)

	p.Cycle(context.Background(), true)
	snap := p.Cycle(context.Background(), true)

	if snap.Skipped || !snap.Forced {
		t.Errorf("forced cycle = %+v", snap)
	}
	if rec.calls.Load() != 2 {
		t.Errorf("engine calls = %d, want 2", rec.calls.Load())
	}
}

func TestSimilarFirstFrame(t *testing.T) {
	p := &Processor{}
	if p.similar(makePatternPNG(0)) {
		t.Error("first frame should not be similar")
	}
	if p.lastHash == nil {
		t.Error("lastHash should be set after first frame")
	}
	if p.similar(detection.ImagePayload{Data: []byte("not an image")}) {
		t.Error("undecodable frame should not be similar")
	}
}

func TestCaptureRetried(t *testing.T) {
	cap := &mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}, changed: true, failures: 2}
	p := newTestProcessor(cap, &mockOCR{}, false)

	if snap := p.Cycle(context.Background(), false); !snap.OK() {
		t.Fatalf("cycle = %s %s", snap.ErrorCode, snap.Error)
	}
	if cap.calls != 3 {
		t.Errorf("capture calls = %d, want 3", cap.calls)
	}
}

func TestCaptureFailurePublished(t *testing.T) {
	cap := &mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}, changed: true, failures: 10}
	p := newTestProcessor(cap, &mockOCR{}, false)

	snap := p.Cycle(context.Background(), false)
	if snap.ErrorCode != apperrors.CaptureFailed.String() {
		t.Errorf("ErrorCode = %q, want %q", snap.ErrorCode, apperrors.CaptureFailed)
	}
	if latest, ok := p.store.Latest(); !ok || latest.ID != snap.ID {
		t.Error("failed cycle should be published")
	}
}

func TestBreakerPausesEngine(t *testing.T) {
	rec := &mockOCR{err: apperrors.New(apperrors.OCREngineExit, "engine exited with code 2")}
	p := newTestProcessor(&mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}}, rec, false)

	for i := 0; i < 2; i++ {
		if snap := p.Cycle(context.Background(), true); snap.ErrorCode != apperrors.OCREngineExit.String() {
			t.Fatalf("cycle %d ErrorCode = %q", i, snap.ErrorCode)
		}
	}
	snap := p.Cycle(context.Background(), true)
	if snap.ErrorCode != apperrors.OCREnginePaused.String() {
		t.Errorf("ErrorCode = %q, want %q", snap.ErrorCode, apperrors.OCREnginePaused)
	}
	if rec.calls.Load() != 2 {
		t.Errorf("engine calls = %d, want 2", rec.calls.Load())
	}
}

func TestCancellationDoesNotTripBreaker(t *testing.T) {
	rec := &mockOCR{err: apperrors.New(apperrors.Cancelled, "engine run cancelled")}
	p := newTestProcessor(&mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}}, rec, false)

	for i := 0; i < 3; i++ {
		p.Cycle(context.Background(), true)
	}
	if p.breaker.State() != resilience.Closed {
		t.Errorf("breaker = %v, want closed", p.breaker.State())
	}
	if len(p.store.Recent(0)) != 0 {
		t.Error("cancelled cycles should not be published")
	}
}

func TestRunStopsAndHonoursPause(t *testing.T) {
	rec := &mockOCR{}
	p := newTestProcessor(&mockCapturer{frames: []detection.ImagePayload{makePatternPNG(1)}, changed: true}, rec, false)
	p.SetPaused(true)
	if !p.Paused() {
		t.Fatal("Paused() = false")
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), 20, stop)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	if rec.calls.Load() != 0 {
		t.Errorf("paused processor ran %d cycles", rec.calls.Load())
	}
	p.SetPaused(false)
	time.Sleep(150 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if rec.calls.Load() == 0 {
		t.Error("resumed processor ran no cycles")
	}
}
