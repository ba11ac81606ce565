package persist

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Snapshotter writes the state to a backend after mutations. With a
// positive interval dirty state is written at most once per interval;
// with a zero interval every MarkDirty writes immediately.
type Snapshotter struct {
	backend  Backend
	source   func() *State
	interval time.Duration
	logger   *zap.Logger

	dirty   atomic.Bool
	saveMu  sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
	closed  bool
	mu      sync.Mutex
}

// NewSnapshotter creates a snapshotter. source must return a consistent copy
// of the state and must not block on callers of MarkDirty.
func NewSnapshotter(backend Backend, source func() *State, interval time.Duration, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{
		backend:  backend,
		source:   source,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the periodic flush loop. It does nothing for a zero interval.
func (s *Snapshotter) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed || s.interval <= 0 {
		return
	}
	s.started = true
	go s.loop()
}

func (s *Snapshotter) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("periodic snapshot failed", zap.Error(err))
			}
		case <-s.stop:
			return
		}
	}
}

// MarkDirty records that the state changed
func (s *Snapshotter) MarkDirty() {
	s.dirty.Store(true)
	if s.interval > 0 {
		return
	}
	if err := s.Flush(); err != nil {
		s.logger.Error("snapshot failed", zap.Error(err))
	}
}

// Flush writes the state if it changed since the last write
func (s *Snapshotter) Flush() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if !s.dirty.Swap(false) {
		return nil
	}
	if err := s.backend.Save(s.source()); err != nil {
		// keep the state dirty so the next flush retries
		s.dirty.Store(true)
		return err
	}
	s.logger.Debug("snapshot written")
	return nil
}

// Close stops the loop, writes pending changes and closes the backend
func (s *Snapshotter) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if started {
		close(s.stop)
		<-s.done
	}
	return errors.Join(s.Flush(), s.backend.Close())
}
