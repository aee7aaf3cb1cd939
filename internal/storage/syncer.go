package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/quicknotes/studybot/core/logger"
)

// Syncer batches document writes behind the gating hot path.
// Mutating callers enqueue the latest snapshot of a document; a background
// loop pushes dirty documents to the primary backend. A failed remote save
// degrades to the local fallback and stays dirty for the next cycle, so a
// decision never waits on remote I/O.
type Syncer struct {
	primary  Store
	fallback *LocalStore
	interval time.Duration

	mu    sync.Mutex
	dirty map[string][]byte

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSyncer wires the primary store with a local fallback directory.
func NewSyncer(primary Store, fallback *LocalStore, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &Syncer{
		primary:  primary,
		fallback: fallback,
		interval: interval,
		dirty:    make(map[string][]byte),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Load reads a document, falling back to the local copy when the
// primary backend is unreachable.
func (s *Syncer) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.primary.Load(ctx, name)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	logger.Store.Warn("primary load failed, trying fallback",
		slog.String("event", "store.load"),
		slog.String("backend", s.primary.Backend()),
		slog.String("document", name),
		slog.String("err", err.Error()),
	)
	if s.fallback == nil {
		return nil, err
	}
	return s.fallback.Load(ctx, name)
}

// Put records the latest snapshot of a document for background persistence.
// It never blocks on I/O.
func (s *Syncer) Put(name string, data []byte) {
	s.mu.Lock()
	s.dirty[name] = data
	s.mu.Unlock()
}

// Flush pushes all dirty documents to the primary backend.
// Documents that fail to save are written to the local fallback and
// remain dirty so the next cycle retries them.
func (s *Syncer) Flush(ctx context.Context) {
	s.mu.Lock()
	batch := make(map[string][]byte, len(s.dirty))
	for name, data := range s.dirty {
		batch[name] = data
	}
	s.mu.Unlock()

	for name, data := range batch {
		if err := s.primary.Save(ctx, name, data); err != nil {
			logger.Store.Warn("document save failed",
				slog.String("event", "store.save"),
				slog.String("backend", s.primary.Backend()),
				slog.String("document", name),
				slog.Int("bytes", len(data)),
				slog.String("err", err.Error()),
			)
			if s.fallback != nil {
				if fbErr := s.fallback.Save(ctx, name, data); fbErr != nil {
					logger.Store.Error("fallback save failed",
						slog.String("event", "store.save"),
						slog.String("backend", "local"),
						slog.String("document", name),
						slog.String("err", fbErr.Error()),
					)
				}
			}
			continue
		}
		s.clearIfUnchanged(name, data)
	}
}

// clearIfUnchanged drops the dirty entry unless a newer snapshot arrived
// while the save was in flight.
func (s *Syncer) clearIfUnchanged(name string, saved []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.dirty[name]
	if !ok {
		return
	}
	if len(current) == len(saved) && string(current) == string(saved) {
		delete(s.dirty, name)
	}
}

// Close flushes outstanding documents and stops the background loop.
func (s *Syncer) Close() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Flush(ctx)
	})
}

func (s *Syncer) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.Flush(ctx)
			cancel()
		}
	}
}
