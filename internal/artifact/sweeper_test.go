package artifact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
)

// fakeBlobStore records puts and deletes in memory.
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failKey string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return int64(len(data)), nil
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return errors.New("delete failed")
	}
	delete(f.objects, key)
	return nil
}

// sweepStore implements just enough of store.Store for sweeper tests.
type sweepStore struct {
	store.Store

	mu       sync.Mutex
	expired  []*model.Artifact
	deleted  []string
	recorded []*model.Event
}

func (s *sweepStore) ListExpiredArtifacts(ctx context.Context, now time.Time) ([]*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired, nil
}

func (s *sweepStore) DeleteArtifact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *sweepStore) RecordEvent(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, e)
	return nil
}

// capturePublisher records published topics.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepOnceDeletesExpired(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["artifacts/run-1/dist"] = []byte("old")
	blobs.objects["artifacts/run-2/dist"] = []byte("fresh")

	st := &sweepStore{
		expired: []*model.Artifact{
			{ID: "art-1", RunID: "run-1", Name: "dist", StorageKey: "artifacts/run-1/dist"},
		},
	}
	pub := &capturePublisher{}

	s := NewSweeper(st, blobs, pub, time.Hour, discardLogger())
	s.SweepOnce(context.Background())

	if len(st.deleted) != 1 || st.deleted[0] != "art-1" {
		t.Errorf("deleted rows = %v, want [art-1]", st.deleted)
	}
	if _, ok := blobs.objects["artifacts/run-1/dist"]; ok {
		t.Error("expired blob still present")
	}
	if _, ok := blobs.objects["artifacts/run-2/dist"]; !ok {
		t.Error("unexpired blob was deleted")
	}
	if len(pub.topics) != 1 || pub.topics[0] != events.TopicArtifactExpired {
		t.Errorf("published topics = %v", pub.topics)
	}
	if len(st.recorded) != 1 || st.recorded[0].Topic != events.TopicArtifactExpired {
		t.Errorf("recorded events = %+v", st.recorded)
	}
}

func TestSweepOnceKeepsRowWhenBlobDeleteFails(t *testing.T) {
	blobs := newFakeBlobStore()
	blobs.objects["artifacts/run-1/dist"] = []byte("old")
	blobs.failKey = "artifacts/run-1/dist"

	st := &sweepStore{
		expired: []*model.Artifact{
			{ID: "art-1", RunID: "run-1", Name: "dist", StorageKey: "artifacts/run-1/dist"},
		},
	}
	pub := &capturePublisher{}

	s := NewSweeper(st, blobs, pub, time.Hour, discardLogger())
	s.SweepOnce(context.Background())

	if len(st.deleted) != 0 {
		t.Errorf("deleted rows = %v, want none", st.deleted)
	}
	if len(pub.topics) != 0 {
		t.Errorf("published topics = %v, want none", pub.topics)
	}
}

func TestSweeperStartStop(t *testing.T) {
	st := &sweepStore{}
	pub := &capturePublisher{}

	s := NewSweeper(st, newFakeBlobStore(), pub, 10*time.Millisecond, discardLogger())
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
