// Package orchestrator runs the capture loop and exposes its readings and engine controls.
package orchestrator

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/resource-overlay/internal/analyzer"
	"github.com/GriffinCanCode/resource-overlay/internal/config"
	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/ocr"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator/readings"
	"github.com/GriffinCanCode/resource-overlay/internal/orchestrator/screen"
	"github.com/GriffinCanCode/resource-overlay/internal/resilience"
	screencap "github.com/GriffinCanCode/resource-overlay/internal/screen"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
)

// Snapshot re-exported for API consumers.
type Snapshot = readings.Snapshot

// EngineStatus combines the engine resolution with the breaker guarding it.
type EngineStatus struct {
	ocr.Status
	Breaker resilience.Stats `json:"breaker"`
	Paused  bool             `json:"capture_paused"`
	Healthy bool             `json:"healthy"`
}

// Manager owns the engine, capture loop and readings history.
type Manager struct {
	cfg      *config.Config
	engine   ocr.Engine
	capturer screencap.Capturer
	breaker  *resilience.Breaker
	store    *readings.Store
	proc     *screen.Processor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hookMu      sync.RWMutex
	healthHooks []func(serving bool)
}

// New wires a manager. It fails only on configuration that cannot be honoured.
func New(cfg *config.Config, engine ocr.Engine, capturer screencap.Capturer) (*Manager, error) {
	policy, err := analyzer.ParsePolicy(cfg.MatchPolicy)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "match policy")
	}

	breaker := resilience.New(resilience.Config{
		Name:         "engine",
		Threshold:    cfg.BreakerThreshold,
		ResetTimeout: cfg.BreakerReset,
	})
	store := readings.NewStore(cfg.HistorySize, SnapshotEventBuffer)

	m := &Manager{
		cfg:      cfg,
		engine:   engine,
		capturer: capturer,
		breaker:  breaker,
		store:    store,
		proc: screen.NewProcessor(capturer, engine, analyzer.New(policy), breaker, store, screen.Options{
			SkipSimilar: cfg.CaptureSkipSimilar,
			Retry:       resilience.DefaultRetryConfig(),
		}),
		stopCh: make(chan struct{}),
	}
	breaker.WithHook(func(_, _ resilience.State) { m.notifyHealth() })
	return m, nil
}

// Start resolves the engine up front and launches the capture loop. A resolution
// failure is logged and surfaced through EngineStatus; the loop still runs.
func (m *Manager) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "manager_start")
	defer span.End()

	log := trace.Logger(ctx)
	if exe, err := m.engine.Resolve(ctx); err != nil {
		log.Warn("engine not available at startup", "error", err)
	} else {
		log.Info("engine ready", "path", exe.Path)
	}
	m.notifyHealth()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.proc.Run(ctx, m.cfg.CaptureRate, m.stopCh)
	}()
	return nil
}

// Stop ends the capture loop and releases the capturer. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.capturer.Close()
	})
}

// Trigger runs one forced cycle now.
func (m *Manager) Trigger(ctx context.Context) Snapshot {
	return m.proc.Cycle(ctx, true)
}

// Latest returns the newest snapshot.
func (m *Manager) Latest() (Snapshot, bool) {
	return m.store.Latest()
}

// History returns up to n snapshots, oldest first.
func (m *Manager) History(n int) []Snapshot {
	return m.store.Recent(n)
}

// Events returns the snapshot feed. Events are dropped when nobody reads.
func (m *Manager) Events() <-chan Snapshot {
	return m.store.Events()
}

// ResolveEngine discards the cached resolution and resolves again. On success the
// breaker is reset so capture resumes immediately.
func (m *Manager) ResolveEngine(ctx context.Context) (ocr.Executable, error) {
	exe, err := m.engine.Resolve(ctx)
	if err == nil {
		m.breaker.Reset()
	}
	m.notifyHealth()
	return exe, err
}

// SelfTest runs the engine's self-check.
func (m *Manager) SelfTest(ctx context.Context) (string, error) {
	return m.engine.SelfTest(ctx)
}

// EngineStatus reports resolution, breaker and pause state.
func (m *Manager) EngineStatus() EngineStatus {
	return EngineStatus{
		Status:  m.engine.Status(),
		Breaker: m.breaker.Stats(),
		Paused:  m.proc.Paused(),
		Healthy: m.Healthy(),
	}
}

// Healthy reports whether the engine is resolved and not paused by the breaker.
func (m *Manager) Healthy() bool {
	return m.engine.Status().Resolved && m.breaker.State() == resilience.Closed
}

// SetPaused suspends or resumes scheduled capture. Triggered cycles still run.
func (m *Manager) SetPaused(paused bool) {
	m.proc.SetPaused(paused)
	trace.Logger(context.Background()).Info("capture pause changed", "paused", paused)
}

// Paused reports whether scheduled capture is suspended.
func (m *Manager) Paused() bool { return m.proc.Paused() }

// OnHealthChange registers fn to be called with the current health whenever it may have changed.
func (m *Manager) OnHealthChange(fn func(serving bool)) {
	m.hookMu.Lock()
	m.healthHooks = append(m.healthHooks, fn)
	m.hookMu.Unlock()
	fn(m.Healthy())
}

func (m *Manager) notifyHealth() {
	m.hookMu.RLock()
	hooks := m.healthHooks
	m.hookMu.RUnlock()
	if len(hooks) == 0 {
		return
	}
	serving := m.Healthy()
	for _, fn := range hooks {
		fn(serving)
	}
}
