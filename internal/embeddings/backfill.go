package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/db"
	"horse.fit/talentsync/internal/globaltime"
)

const (
	defaultBatchSize = 500
	defaultWorkers   = 5
)

// Target selects which embedding backlog to drain.
type Target string

const (
	TargetCandidates Target = "candidates"
	TargetPositions  Target = "positions"
)

// Store is the slice of db.Pool the backfiller needs.
type Store interface {
	QueryCandidateEmbeddingBacklog(ctx context.Context) ([]db.EmbeddingItem, error)
	QueryPositionEmbeddingBacklog(ctx context.Context) ([]db.EmbeddingItem, error)
	UpdateCandidateEmbeddings(ctx context.Context, updates []db.EmbeddingUpdate) (int64, error)
	UpdatePositionEmbeddings(ctx context.Context, updates []db.EmbeddingUpdate) (int64, error)
}

// Embedder is the slice of Client the backfiller needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Target          string  `json:"target"`
	Pending         int     `json:"pending"`
	Processed       int     `json:"processed"`
	Updated         int64   `json:"updated"`
	Errors          int     `json:"errors"`
	Batches         int     `json:"batches"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Backfiller drains an embedding backlog with a bounded worker pool. Each
// batch is a unit of failure: one embed call and one update statement, with a
// failed batch counting its rows as errors while other batches proceed.
type Backfiller struct {
	store    Store
	embedder Embedder
	logger   zerolog.Logger

	batchSize int
	workers   int
}

func NewBackfiller(store Store, embedder Embedder, cfg *config.Config, logger zerolog.Logger) *Backfiller {
	b := &Backfiller{
		store:     store,
		embedder:  embedder,
		logger:    logger.With().Str("component", "embedding-backfill").Logger(),
		batchSize: defaultBatchSize,
		workers:   defaultWorkers,
	}
	if cfg != nil {
		if cfg.EmbeddingBatchSize > 0 {
			b.batchSize = cfg.EmbeddingBatchSize
		}
		if cfg.EmbeddingWorkers > 0 {
			b.workers = cfg.EmbeddingWorkers
		}
	}
	return b
}

type batchOutcome struct {
	processed int
	updated   int64
	errors    int
}

// Backfill embeds every row in the target's backlog. Rows are selected newest
// first; a converged backlog makes the run a no-op.
func (b *Backfiller) Backfill(ctx context.Context, target Target) (BackfillResult, error) {
	if b == nil || b.store == nil || b.embedder == nil {
		return BackfillResult{}, fmt.Errorf("backfiller is not initialized")
	}
	started := globaltime.Now()
	result := BackfillResult{Target: string(target)}

	items, err := b.backlog(ctx, target)
	if err != nil {
		return result, err
	}
	result.Pending = len(items)
	if len(items) == 0 {
		b.logger.Info().Str("target", string(target)).Msg("embedding backlog is empty")
		result.DurationSeconds = globaltime.Now().Sub(started).Seconds()
		return result, nil
	}

	batches := make([][]db.EmbeddingItem, 0, (len(items)+b.batchSize-1)/b.batchSize)
	for start := 0; start < len(items); start += b.batchSize {
		end := min(start+b.batchSize, len(items))
		batches = append(batches, items[start:end])
	}
	result.Batches = len(batches)

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return result, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make(chan batchOutcome, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes <- b.processBatch(ctx, target, i+1, batch)
		}); err != nil {
			wg.Done()
			outcomes <- batchOutcome{errors: len(batch)}
		}
	}
	wg.Wait()
	close(outcomes)

	// Batches complete out of order; aggregation happens here, on one
	// goroutine, in completion order.
	for outcome := range outcomes {
		result.Processed += outcome.processed
		result.Updated += outcome.updated
		result.Errors += outcome.errors
	}
	result.DurationSeconds = globaltime.Now().Sub(started).Seconds()

	b.logger.Info().
		Str("target", string(target)).
		Int("pending", result.Pending).
		Int("processed", result.Processed).
		Int64("updated", result.Updated).
		Int("errors", result.Errors).
		Int("batches", result.Batches).
		Float64("duration_seconds", result.DurationSeconds).
		Msg("embedding backfill complete")
	return result, nil
}

func (b *Backfiller) backlog(ctx context.Context, target Target) ([]db.EmbeddingItem, error) {
	switch target {
	case TargetCandidates:
		return b.store.QueryCandidateEmbeddingBacklog(ctx)
	case TargetPositions:
		return b.store.QueryPositionEmbeddingBacklog(ctx)
	default:
		return nil, fmt.Errorf("unknown backfill target %q", target)
	}
}

func (b *Backfiller) processBatch(ctx context.Context, target Target, batchNum int, batch []db.EmbeddingItem) batchOutcome {
	texts := make([]string, 0, len(batch))
	for _, item := range batch {
		texts = append(texts, item.Text)
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("target", string(target)).
			Int("batch", batchNum).
			Int("batch_size", len(batch)).
			Msg("embedding batch failed")
		return batchOutcome{errors: len(batch)}
	}

	updates := make([]db.EmbeddingUpdate, 0, len(batch))
	badVectors := 0
	for i, item := range batch {
		literal, err := ToVectorLiteral(vectors[i])
		if err != nil {
			badVectors++
			continue
		}
		updates = append(updates, db.EmbeddingUpdate{ID: item.ID, Vector: literal})
	}

	updated, err := b.update(ctx, target, updates)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("target", string(target)).
			Int("batch", batchNum).
			Msg("embedding update failed")
		return batchOutcome{errors: len(batch)}
	}

	// Rows rejected for a bad vector count as errors only, so processed
	// and errors partition the batch.
	return batchOutcome{
		processed: len(updates),
		updated:   updated,
		errors:    badVectors,
	}
}

func (b *Backfiller) update(ctx context.Context, target Target, updates []db.EmbeddingUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	switch target {
	case TargetCandidates:
		return b.store.UpdateCandidateEmbeddings(ctx, updates)
	case TargetPositions:
		return b.store.UpdatePositionEmbeddings(ctx, updates)
	default:
		return 0, fmt.Errorf("unknown backfill target %q", target)
	}
}
