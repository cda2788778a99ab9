package artifact

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
)

// Sweeper periodically removes artifacts whose retention window has passed.
type Sweeper struct {
	store     store.Store
	blobs     BlobStore
	publisher events.Publisher
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper that deletes expired artifacts at the
// specified interval.
func NewSweeper(s store.Store, blobs BlobStore, publisher events.Publisher, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     s,
		blobs:     blobs,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins periodic sweeping. It runs an initial sweep immediately,
// then on each tick.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for the current sweep (if any) to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes all artifacts that expired before now. Blob deletion
// failures are logged and the database row is kept so a later sweep retries.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	expired, err := s.store.ListExpiredArtifacts(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("sweep list expired artifacts failed", "err", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	var removed int
	for _, a := range expired {
		if err := s.blobs.Delete(ctx, a.StorageKey); err != nil {
			s.logger.Error("sweep blob delete failed", "artifact", a.ID, "key", a.StorageKey, "err", err)
			continue
		}
		if err := s.store.DeleteArtifact(ctx, a.ID); err != nil {
			s.logger.Error("sweep row delete failed", "artifact", a.ID, "err", err)
			continue
		}
		s.notifyExpired(ctx, a)
		removed++
	}

	s.logger.Info("artifact sweep completed", "expired", len(expired), "removed", removed)
}

func (s *Sweeper) notifyExpired(ctx context.Context, a *model.Artifact) {
	payload := events.ArtifactExpired{
		ArtifactID: a.ID,
		RunID:      a.RunID,
		Name:       a.Name,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal artifact expired event failed", "artifact", a.ID, "err", err)
		return
	}

	// Best effort: the artifact is already gone, an unrecorded event is
	// not worth failing the sweep over.
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:   events.TopicArtifactExpired,
		RunID:   a.RunID,
		Payload: raw,
	}); err != nil {
		s.logger.Error("record artifact expired event failed", "artifact", a.ID, "err", err)
	}
	if err := s.publisher.Publish(ctx, events.TopicArtifactExpired, payload); err != nil {
		s.logger.Error("publish artifact expired event failed", "artifact", a.ID, "err", err)
	}
}
