// Package ocr runs the external OCR engine as a one-shot child process per request.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"time"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/syncx"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
	"github.com/GriffinCanCode/resource-overlay/pkg/detection"
)

// Recognizer turns an image into detections.
type Recognizer interface {
	Recognize(ctx context.Context, img detection.ImagePayload) (*Result, error)
}

// Engine is a Recognizer with a lifecycle the service can inspect and reset.
type Engine interface {
	Recognizer
	Resolve(ctx context.Context) (Executable, error)
	Status() Status
	SelfTest(ctx context.Context) (string, error)
}

// Result is a successful recognition.
type Result struct {
	Text       string                `json:"text"`
	Confidence float64               `json:"confidence"`
	Detections []detection.Detection `json:"detections"`
	Duration   time.Duration         `json:"duration"`
}

// Status describes the cached engine resolution.
type Status struct {
	Resolved   bool       `json:"resolved"`
	Executable Executable `json:"executable"`
	Error      string     `json:"error,omitempty"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

type resolution struct {
	exe  Executable
	err  error
	at   time.Time
	done bool
}

// Worker serializes engine runs: at most one engine process is alive at a time and
// callers are served in arrival order.
type Worker struct {
	resolver Resolver
	timeout  time.Duration
	queue    syncx.Queue
	state    *syncx.RWGuard[resolution]
}

// NewWorker creates a worker. Resolution happens lazily on first use or via Resolve.
func NewWorker(resolver Resolver) *Worker {
	return &Worker{
		resolver: resolver,
		timeout:  EngineTimeout,
		state:    syncx.NewGuard(resolution{}),
	}
}

// Recognize runs the engine over img.
func (w *Worker) Recognize(ctx context.Context, img detection.ImagePayload) (*Result, error) {
	if img.Empty() {
		return nil, apperrors.New(apperrors.InvalidArgument, "empty image payload")
	}
	ctx, span := trace.StartSpan(ctx, "ocr_recognize")
	defer span.End()

	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer w.queue.Release()

	exe, err := w.executable(ctx)
	if err != nil {
		return nil, err
	}

	input, err := encodeRequest(img)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "encode engine request")
	}

	start := time.Now()
	stdout, err := w.run(ctx, exe, nil, input)
	span.SetAttr("image_bytes", len(img.Data))
	if err != nil {
		span.SetAttr("error", apperrors.CodeOf(err).String())
		trace.Logger(ctx).Debug("engine run failed", "span", span, "error", err)
		return nil, err
	}

	resp, err := decodeResponse(stdout)
	if err != nil {
		return nil, malformed(err, stdout)
	}
	if !*resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "OCR processing failed"
		}
		return nil, apperrors.New(apperrors.OCREngineReported, msg)
	}
	dets, err := resp.detections()
	if err != nil {
		return nil, malformed(err, stdout)
	}

	span.SetAttr("detections", len(dets))
	trace.Logger(ctx).Debug("engine run complete", "span", span)
	return &Result{
		Text:       resp.Text,
		Confidence: resp.Confidence,
		Detections: dets,
		Duration:   time.Since(start),
	}, nil
}

// SelfTest runs the engine's import self-check and returns its message.
func (w *Worker) SelfTest(ctx context.Context) (string, error) {
	if err := w.acquire(ctx); err != nil {
		return "", err
	}
	defer w.queue.Release()

	exe, err := w.executable(ctx)
	if err != nil {
		return "", err
	}
	stdout, err := w.run(ctx, exe, []string{selfTestFlag}, nil)
	if err != nil {
		return "", err
	}
	resp, err := decodeResponse(stdout)
	if err != nil {
		return "", malformed(err, stdout)
	}
	if !*resp.Success {
		return "", apperrors.New(apperrors.OCREngineReported, resp.Error)
	}
	return resp.Message, nil
}

// Resolve discards any cached resolution (including a cached failure) and resolves again.
// It waits for an in-flight run to finish.
func (w *Worker) Resolve(ctx context.Context) (Executable, error) {
	if err := w.acquire(ctx); err != nil {
		return Executable{}, err
	}
	defer w.queue.Release()
	return w.resolve(ctx)
}

// Status reports the cached resolution without triggering one.
func (w *Worker) Status() Status {
	return syncx.View(w.state, func(r resolution) Status {
		st := Status{Resolved: r.done && r.err == nil, Executable: r.exe, ResolvedAt: r.at}
		if r.err != nil {
			st.Error = r.err.Error()
		}
		return st
	})
}

func (w *Worker) acquire(ctx context.Context) error {
	if err := w.queue.Acquire(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.Cancelled, "waiting for engine")
	}
	return nil
}

// executable returns the cached resolution, resolving on first use. Caller holds the queue.
func (w *Worker) executable(ctx context.Context) (Executable, error) {
	if r := w.state.Get(); r.done {
		return r.exe, r.err
	}
	return w.resolve(ctx)
}

func (w *Worker) resolve(ctx context.Context) (Executable, error) {
	exe, err := w.resolver.Resolve(ctx)
	if err != nil && !apperrors.IsCode(err, apperrors.OCRResolutionFailed) {
		err = apperrors.Wrap(err, apperrors.OCRResolutionFailed, "resolve engine")
	}
	prev := w.state.Swap(resolution{exe: exe, err: err, at: time.Now(), done: true})

	log := trace.Logger(ctx)
	switch {
	case err != nil:
		log.Error("engine resolution failed", "error", err)
	case prev.err != nil:
		log.Info("engine recovered", "path", exe.Path, "args", exe.Args, "previous_error", prev.err)
	default:
		log.Info("engine resolved", "path", exe.Path, "args", exe.Args)
	}
	return exe, err
}

// run launches the engine, feeds it input and collects stdout. The engine is killed when
// the timeout elapses or ctx ends; either way the process is reaped before returning.
func (w *Worker) run(ctx context.Context, exe Executable, extra []string, input []byte) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, exe.Path, append(slices.Clone(exe.Args), extra...)...)
	cmd.Env = append(os.Environ(), exe.Env...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "engine not started")
		}
		return nil, apperrors.Wrapf(err, apperrors.OCRLaunchFailed, "start engine %q", exe.Path)
	}

	err := cmd.Wait()
	switch {
	case ctx.Err() != nil:
		return nil, apperrors.Wrap(ctx.Err(), apperrors.Cancelled, "engine run cancelled")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, apperrors.Newf(apperrors.OCRTimeout, "engine did not finish within %s", w.timeout).
			WithMetadata("stderr", tail(stderr.String()))
	case err != nil:
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		return nil, apperrors.Wrapf(err, apperrors.OCREngineExit, "engine exited with code %d", code).
			WithMetadata("exit_code", strconv.Itoa(code)).
			WithMetadata("stderr", tail(stderr.String()))
	}

	if stderr.Len() > 0 {
		trace.Logger(ctx).Debug("engine stderr", "bytes", stderr.Len())
	}
	return stdout.Bytes(), nil
}

func malformed(err error, raw []byte) error {
	return apperrors.Wrap(err, apperrors.OCRMalformedResponse, "engine response is not a valid object").
		WithMetadata("raw", tail(string(raw)))
}

// tail keeps the last stderrLogLimit bytes, where diagnostics usually end up.
func tail(s string) string {
	if len(s) <= stderrLogLimit {
		return s
	}
	return s[len(s)-stderrLogLimit:]
}
