// Package screen runs the capture, recognize and analyze cycle.
package screen

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/resource-overlay/internal/analyzer"
	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator/readings"
	"github.com/GriffinCanCode/resource-overlay/internal/resilience"
	screencap "github.com/GriffinCanCode/resource-overlay/internal/screen"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// Recognizer extracts detections from a captured frame.
type Recognizer interface {
	Recognize(ctx context.Context, img detection.ImagePayload) (*ocr.Result, error)
}

// Options tunes a Processor.
type Options struct {
	SkipSimilar bool
	Retry       resilience.RetryConfig
}

// Processor runs capture cycles. Cycles never overlap.
type Processor struct {
	capturer screencap.Capturer
	ocr      Recognizer
	analyzer *analyzer.Analyzer
	breaker  *resilience.Breaker
	store    *readings.Store
	opts     Options

	cycleMu  sync.Mutex
	hashMu   sync.Mutex
	lastHash *goimagehash.ImageHash
	paused   atomic.Bool
}

// NewProcessor creates a processor publishing into store.
func NewProcessor(capturer screencap.Capturer, rec Recognizer, an *analyzer.Analyzer, breaker *resilience.Breaker, store *readings.Store, opts Options) *Processor {
	return &Processor{
		capturer: capturer,
		ocr:      rec,
		analyzer: an,
		breaker:  breaker,
		store:    store,
		opts:     opts,
	}
}

// Run cycles at captureRate per second until ctx ends or stopCh closes.
func (p *Processor) Run(ctx context.Context, captureRate float64, stopCh <-chan struct{}) {
	if captureRate <= 0 {
		captureRate = DefaultCaptureRate
	}
	interval := max(time.Duration(float64(time.Second)/captureRate), minInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			p.Cycle(ctx, false)
		}
	}
}

// Cycle captures, recognizes and analyzes one frame. A forced cycle bypasses change
// detection and always runs the engine (unless the breaker is open).
func (p *Processor) Cycle(ctx context.Context, force bool) readings.Snapshot {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	ctx, span := trace.StartSpan(ctx, "capture_cycle")
	defer span.End()
	span.SetAttr("forced", force)

	snap := readings.Snapshot{ID: uuid.New(), CapturedAt: time.Now(), Forced: force}

	img, changed, err := p.capture(ctx, force)
	if err != nil {
		return p.fail(ctx, snap, err)
	}
	if !force && !changed {
		return p.skip(snap)
	}
	if similar := p.opts.SkipSimilar && p.similar(img); similar && !force {
		trace.Logger(ctx).Debug("skipping OCR due to similar frame")
		return p.skip(snap)
	}

	res, err := p.recognize(ctx, img)
	if err != nil {
		return p.fail(ctx, snap, err)
	}

	result := p.analyzer.Analyze(res.Detections)
	snap.OCRText = res.Text
	snap.Result = result
	snap.Summary = analyzer.Summary(result)
	snap.Display = analyzer.FormatForUI(result)
	snap.Duration = time.Since(snap.CapturedAt)
	p.store.Publish(snap)

	span.SetAttr("resources", result.ResourceCount)
	trace.Logger(ctx).Debug("cycle complete", "span", span, "summary", snap.Summary)
	return snap
}

// SetPaused stops or resumes ticker-driven cycles. Forced cycles still run.
func (p *Processor) SetPaused(paused bool) { p.paused.Store(paused) }

// Paused reports whether ticker-driven cycles are suspended.
func (p *Processor) Paused() bool { return p.paused.Load() }

func (p *Processor) capture(ctx context.Context, force bool) (detection.ImagePayload, bool, error) {
	var (
		img     detection.ImagePayload
		changed bool
	)
	err := resilience.Retry(ctx, p.opts.Retry, func() error {
		var err error
		if force {
			img, err = p.capturer.CaptureAlways(ctx)
			changed = true
			return err
		}
		img, changed, err = p.capturer.Capture(ctx)
		return err
	})
	switch {
	case err == nil:
		return img, changed, nil
	case ctx.Err() != nil:
		return img, false, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "capture cancelled")
	case apperrors.CodeOf(err) == apperrors.Unknown:
		return img, false, apperrors.Wrap(err, apperrors.CaptureFailed, "capture")
	}
	return img, false, err
}

// recognize runs the engine behind the breaker. Cancellations and bad input do not
// count against the engine.
func (p *Processor) recognize(ctx context.Context, img detection.ImagePayload) (*ocr.Result, error) {
	if err := p.breaker.Allow(); err != nil {
		st := p.breaker.Stats()
		return nil, apperrors.Wrapf(err, apperrors.OCREnginePaused, "engine paused after %d consecutive failures", st.Failures).
			WithMetadata("retry_at", st.RetryAt.Format(time.RFC3339))
	}

	res, err := p.ocr.Recognize(ctx, img)
	switch {
	case err == nil:
		p.breaker.Success()
	case apperrors.IsCode(err, apperrors.Cancelled), apperrors.IsCode(err, apperrors.InvalidArgument), errors.Is(err, context.Canceled):
	default:
		p.breaker.Failure()
	}
	return res, err
}

// similar reports whether img is perceptually the same as the last recognized frame.
// The reference hash only moves when a frame differs.
func (p *Processor) similar(img detection.ImagePayload) bool {
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return false
	}
	hash, err := goimagehash.PerceptionHash(decoded)
	if err != nil {
		return false
	}

	p.hashMu.Lock()
	defer p.hashMu.Unlock()

	if p.lastHash != nil {
		if dist, err := p.lastHash.Distance(hash); err == nil && dist <= MaxHashDistance {
			return true
		}
	}
	p.lastHash = hash
	return false
}

func (p *Processor) skip(snap readings.Snapshot) readings.Snapshot {
	if last, ok := p.store.Latest(); ok {
		last.Skipped = true
		return last
	}
	snap.Skipped = true
	return snap
}

func (p *Processor) fail(ctx context.Context, snap readings.Snapshot, err error) readings.Snapshot {
	code := apperrors.CodeOf(err)
	snap.Error = err.Error()
	snap.ErrorCode = code.String()
	snap.Duration = time.Since(snap.CapturedAt)

	log := trace.Logger(ctx)
	if code == apperrors.Cancelled {
		log.Debug("cycle cancelled", "error", err)
		return snap
	}
	if code == apperrors.OCREnginePaused {
		log.Debug("cycle skipped, engine paused", "error", err)
	} else {
		log.Warn("cycle failed", "code", snap.ErrorCode, "error", err)
	}
	p.store.Publish(snap)
	return snap
}
