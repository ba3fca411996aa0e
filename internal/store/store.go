package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

// Store persists StorageSnapshots to one JSON document. Saves are
// debounced: requests landing within the quiet window coalesce into a
// single physical write of the latest snapshot, and the window restarts
// on every request. In-memory state stays authoritative — a failed write
// is logged and superseded by the next save.
type Store struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending *domain.StorageSnapshot
	timer   *time.Timer
	closed  bool

	writes atomic.Int64
}

func Open(dataDir string, debounce time.Duration, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &Store{
		path:     filepath.Join(dataDir, "state.json"),
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Load reads the snapshot from disk. First run (missing file) and corrupt
// files both degrade to an empty snapshot; corruption is logged, never
// fatal.
func (s *Store) Load() domain.StorageSnapshot {
	var snap domain.StorageSnapshot

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		// fresh environment
	case err != nil:
		s.logger.Warn("snapshot_read_failed", zap.String("path", s.path), zap.Error(err))
	case len(data) > 0:
		if uerr := json.Unmarshal(data, &snap); uerr != nil {
			s.logger.Warn("snapshot_corrupt_starting_empty",
				zap.String("path", s.path),
				zap.Error(uerr),
			)
			snap = domain.StorageSnapshot{}
		}
	}

	snap.Normalize()
	return snap
}

// Save schedules a debounced write of the snapshot. Returns immediately;
// the write happens after the quiet window elapses with no newer save.
func (s *Store) Save(snap domain.StorageSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &snap
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flushPending)
	} else {
		s.timer.Reset(s.debounce)
	}
}

// Flush writes any pending snapshot immediately. Used on shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()

	if snap == nil {
		return nil
	}
	return s.write(snap)
}

// Close stops the debounce timer and flushes.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush()
}

// Writes reports the number of physical writes performed.
func (s *Store) Writes() int64 {
	return s.writes.Load()
}

func (s *Store) flushPending() {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if snap == nil {
		return
	}
	if err := s.write(snap); err != nil {
		// Next mutation schedules another save; nothing to roll back.
		s.logger.Error("snapshot_write_failed", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Store) write(snap *domain.StorageSnapshot) error {
	snap.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	// Atomic replace: never leave a half-written state file behind.
	tmp := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.writes.Add(1)
	s.logger.Debug("snapshot_written",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)),
	)
	return nil
}
