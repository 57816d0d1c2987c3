// Package readings keeps recent capture snapshots and fans them out to subscribers.
package readings

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/resource-overlay/internal/analyzer"
)

// Snapshot is the outcome of one capture-analyze cycle. A failed cycle carries Error and no Result.
// A skipped cycle repeats the previous snapshot's readings and is never stored.
type Snapshot struct {
	ID         uuid.UUID                `json:"id"`
	CapturedAt time.Time                `json:"captured_at"`
	Duration   time.Duration            `json:"duration"`
	Forced     bool                     `json:"forced"`
	Skipped    bool                     `json:"skipped,omitempty"`
	Error      string                   `json:"error,omitempty"`
	ErrorCode  string                   `json:"error_code,omitempty"`
	OCRText    string                   `json:"ocr_text,omitempty"`
	Result     *analyzer.AnalysisResult `json:"result,omitempty"`
	Summary    string                   `json:"summary"`
	Display    []string                 `json:"display"`
}

// OK reports whether the cycle produced readings.
func (s Snapshot) OK() bool { return s.Error == "" && s.Result != nil }

// Store is a bounded in-memory history of snapshots.
type Store struct {
	mu       sync.RWMutex
	entries  []Snapshot
	maxSize  int
	eventsCh chan Snapshot
}

// NewStore creates a store keeping maxEntries snapshots.
func NewStore(maxEntries, eventBuffer int) *Store {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Store{
		entries:  make([]Snapshot, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Snapshot, eventBuffer),
	}
}

// Add stores a snapshot, dropping the oldest beyond capacity.
func (s *Store) Add(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, snap)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Publish stores snap and emits it.
func (s *Store) Publish(snap Snapshot) {
	s.Add(snap)
	s.Emit(snap)
}

// Latest returns the newest snapshot.
func (s *Store) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Snapshot{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// LatestOK returns the newest snapshot that produced readings.
func (s *Store) LatestOK() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].OK() {
			return s.entries[i], true
		}
	}
	return Snapshot{}, false
}

// Recent returns up to n snapshots, oldest first. n <= 0 returns all.
func (s *Store) Recent(n int) []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.entries) {
		start = len(s.entries) - n
	}
	result := make([]Snapshot, len(s.entries)-start)
	copy(result, s.entries[start:])
	return result
}

// Events returns the channel of published snapshots.
func (s *Store) Events() <-chan Snapshot {
	return s.eventsCh
}

// Emit sends a snapshot event (non-blocking).
func (s *Store) Emit(snap Snapshot) {
	select {
	case s.eventsCh <- snap:
	default:
	}
}
