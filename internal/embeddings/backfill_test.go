package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/db"
)

type fakeStore struct {
	mu        sync.Mutex
	backlog   []db.EmbeddingItem
	updated   map[int64]string
	updateErr error
}

func (s *fakeStore) QueryCandidateEmbeddingBacklog(ctx context.Context) ([]db.EmbeddingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog, nil
}

func (s *fakeStore) QueryPositionEmbeddingBacklog(ctx context.Context) ([]db.EmbeddingItem, error) {
	return nil, nil
}

func (s *fakeStore) UpdateCandidateEmbeddings(ctx context.Context, updates []db.EmbeddingUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	if s.updated == nil {
		s.updated = map[int64]string{}
	}
	for _, u := range updates {
		s.updated[u.ID] = u.Vector
	}
	return int64(len(updates)), nil
}

func (s *fakeStore) UpdatePositionEmbeddings(ctx context.Context, updates []db.EmbeddingUpdate) (int64, error) {
	return 0, errors.New("not expected in these tests")
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failOn  map[int]bool
	badText string
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if e.failOn[call] {
		return nil, errors.New("embedding service overloaded")
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		if e.badText != "" && texts[i] == e.badText {
			vectors[i] = vectorOf(db.EmbeddingDimensions, float32(math.NaN()))
			continue
		}
		vectors[i] = vectorOf(db.EmbeddingDimensions, 0.25)
	}
	return vectors, nil
}

func backlogOf(n int) []db.EmbeddingItem {
	items := make([]db.EmbeddingItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, db.EmbeddingItem{ID: int64(i + 1), Text: fmt.Sprintf("profile %d", i+1)})
	}
	return items
}

func newTestBackfiller(store Store, embedder Embedder, batchSize, workers int) *Backfiller {
	cfg := &config.Config{EmbeddingBatchSize: batchSize, EmbeddingWorkers: workers}
	return NewBackfiller(store, embedder, cfg, zerolog.Nop())
}

func TestBackfill_BatchesBacklog(t *testing.T) {
	t.Parallel()

	store := &fakeStore{backlog: backlogOf(1200)}
	embedder := &fakeEmbedder{}
	b := newTestBackfiller(store, embedder, 500, 5)

	result, err := b.Backfill(context.Background(), TargetCandidates)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if result.Pending != 1200 {
		t.Fatalf("expected 1200 pending, got %d", result.Pending)
	}
	if result.Batches != 3 {
		t.Fatalf("expected 3 batches of 500, got %d", result.Batches)
	}
	if result.Processed != 1200 || result.Updated != 1200 {
		t.Fatalf("expected all rows processed and updated, got %+v", result)
	}
	if result.Errors != 0 {
		t.Fatalf("expected no errors, got %d", result.Errors)
	}
	if len(store.updated) != 1200 {
		t.Fatalf("expected 1200 rows written, got %d", len(store.updated))
	}
}

func TestBackfill_FailedBatchLeavesSiblingsUntouched(t *testing.T) {
	t.Parallel()

	store := &fakeStore{backlog: backlogOf(1000)}
	embedder := &fakeEmbedder{failOn: map[int]bool{1: true}}
	// Single worker so the failing call is deterministically the first batch.
	b := newTestBackfiller(store, embedder, 500, 1)

	result, err := b.Backfill(context.Background(), TargetCandidates)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if result.Errors != 500 {
		t.Fatalf("expected the failed batch's 500 rows counted as errors, got %d", result.Errors)
	}
	if result.Processed != 500 || result.Updated != 500 {
		t.Fatalf("expected the surviving batch to complete, got %+v", result)
	}
	if len(store.updated) != 500 {
		t.Fatalf("expected 500 rows written, got %d", len(store.updated))
	}
}

func TestBackfill_BadVectorCountsAsErrorNotProcessed(t *testing.T) {
	t.Parallel()

	store := &fakeStore{backlog: backlogOf(10)}
	embedder := &fakeEmbedder{badText: "profile 4"}
	b := newTestBackfiller(store, embedder, 500, 1)

	result, err := b.Backfill(context.Background(), TargetCandidates)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if result.Errors != 1 {
		t.Fatalf("expected the unusable vector's row counted as an error, got %d", result.Errors)
	}
	if result.Processed != 9 {
		t.Fatalf("expected 9 rows processed, got %d", result.Processed)
	}
	if result.Processed+result.Errors != result.Pending {
		t.Fatalf("processed and errors must partition the backlog, got %+v", result)
	}
	if result.Updated != 9 {
		t.Fatalf("expected 9 rows updated, got %d", result.Updated)
	}
	if _, ok := store.updated[4]; ok {
		t.Fatalf("row with an unusable vector must not be written")
	}
}

func TestBackfill_EmptyBacklogIsNoop(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	embedder := &fakeEmbedder{}
	b := newTestBackfiller(store, embedder, 500, 5)

	result, err := b.Backfill(context.Background(), TargetCandidates)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if result.Pending != 0 || result.Batches != 0 || result.Processed != 0 {
		t.Fatalf("expected no-op result, got %+v", result)
	}
	if embedder.calls != 0 {
		t.Fatalf("expected no embedding calls on empty backlog, got %d", embedder.calls)
	}
}

func TestBackfill_RerunAfterConvergenceIsNoop(t *testing.T) {
	t.Parallel()

	store := &fakeStore{backlog: backlogOf(10)}
	embedder := &fakeEmbedder{}
	b := newTestBackfiller(store, embedder, 500, 2)

	if _, err := b.Backfill(context.Background(), TargetCandidates); err != nil {
		t.Fatalf("first Backfill: %v", err)
	}

	// Everything embedded; the backlog query now returns nothing.
	store.mu.Lock()
	store.backlog = nil
	store.mu.Unlock()

	result, err := b.Backfill(context.Background(), TargetCandidates)
	if err != nil {
		t.Fatalf("second Backfill: %v", err)
	}
	if result.Pending != 0 || result.Processed != 0 {
		t.Fatalf("expected converged re-run to be a no-op, got %+v", result)
	}
	if embedder.calls != 1 {
		t.Fatalf("expected no further embedding calls, got %d", embedder.calls)
	}
}

func TestBackfill_UpdateFailureCountsBatch(t *testing.T) {
	t.Parallel()

	store := &fakeStore{backlog: backlogOf(20), updateErr: errors.New("connection reset by peer")}
	embedder := &fakeEmbedder{}
	b := newTestBackfiller(store, embedder, 500, 2)

	result, err := b.Backfill(context.Background(), TargetCandidates)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if result.Errors != 20 {
		t.Fatalf("expected all 20 rows counted as errors, got %d", result.Errors)
	}
	if result.Updated != 0 {
		t.Fatalf("expected no rows updated, got %d", result.Updated)
	}
}

func TestBackfill_UnknownTarget(t *testing.T) {
	t.Parallel()

	b := newTestBackfiller(&fakeStore{}, &fakeEmbedder{}, 500, 1)
	if _, err := b.Backfill(context.Background(), Target("projects")); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}
