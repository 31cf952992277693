package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/db"
)

const (
	defaultBatchSize  = 1000
	defaultMaxRetries = 3
	defaultMaxRecords = 50000

	chunkRetryBase    = 500 * time.Millisecond
	chunkRetryCeiling = 10 * time.Second
)

// TxBeginner is the slice of db.Pool the loader needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts db.TxOptions) (db.Tx, error)
}

// Loader performs chunked bulk upserts with per-chunk savepoint isolation.
// A failed chunk rolls back to its savepoint and counts as failed; the
// remaining chunks keep loading.
type Loader struct {
	pool       TxBeginner
	logger     zerolog.Logger
	batchSize  int
	maxRetries int
}

func NewLoader(pool TxBeginner, logger zerolog.Logger) *Loader {
	return &Loader{
		pool:       pool,
		logger:     logger.With().Str("component", "bulk-loader").Logger(),
		batchSize:  defaultBatchSize,
		maxRetries: defaultMaxRetries,
	}
}

// BulkUpsert loads rows through one transaction, chunked to the loader's
// batch size. Rows failing validation are skipped; chunks are retried only
// for connection-class errors.
func BulkUpsert[T any](ctx context.Context, l *Loader, schema TableSchema, mapper RowMapper[T], rows []T, entityName string) (UpsertResult, error) {
	if l == nil || l.pool == nil {
		return UpsertResult{}, fmt.Errorf("loader is not initialized")
	}
	if len(rows) == 0 {
		l.logger.Warn().Str("entity", entityName).Msg("no rows to upsert")
		return UpsertResult{}, nil
	}

	tx, err := l.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin %s upsert transaction: %w", entityName, err)
	}

	result := UpsertResult{}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	batchNum := 0
	for start := 0; start < len(rows); start += l.batchSize {
		end := min(start+l.batchSize, len(rows))
		batchNum++

		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*schema.ArgCount())
		records := 0
		skipped := 0
		for _, row := range chunk {
			if !mapper.Validate(row) {
				skipped++
				continue
			}
			args = append(args, mapper.Args(row)...)
			records++
		}
		if records == 0 {
			result = result.Merge(UpsertResult{Skipped: skipped})
			continue
		}

		sql, err := schema.UpsertSQL(records)
		if err != nil {
			return result, fmt.Errorf("build %s upsert SQL: %w", entityName, err)
		}

		savepoint := fmt.Sprintf("bulk_%s_%d", entityName, batchNum)
		started := time.Now()
		inserted, updated, err := l.executeChunk(ctx, tx, savepoint, sql, args)
		if err != nil {
			l.logger.Error().
				Err(err).
				Str("entity", entityName).
				Int("batch", batchNum).
				Int("batch_size", records).
				Msg("chunk failed after retries")
			result = result.Merge(UpsertResult{Failed: records, Skipped: skipped})
			continue
		}

		result = result.Merge(UpsertResult{Inserted: inserted, Updated: updated, Skipped: skipped, Batches: 1})
		l.logger.Info().
			Str("entity", entityName).
			Int("batch", batchNum).
			Int("batch_size", records).
			Int("inserted", inserted).
			Int("updated", updated).
			Dur("duration", time.Since(started)).
			Msg("chunk loaded")
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit %s upsert transaction: %w", entityName, err)
	}
	committed = true

	l.logger.Info().
		Str("entity", entityName).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Int("batches", result.Batches).
		Msg("bulk upsert complete")
	return result, nil
}

func (l *Loader) executeChunk(ctx context.Context, tx db.Tx, savepoint, sql string, args []any) (int, int, error) {
	var lastErr error
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepChunkRetry(ctx, attempt-1); err != nil {
				return 0, 0, err
			}
		}

		inserted, updated, err := runChunk(ctx, tx, savepoint, sql, args)
		if err == nil {
			return inserted, updated, nil
		}
		lastErr = err
		if !db.IsConnectionError(err) {
			return 0, 0, err
		}
	}
	return 0, 0, fmt.Errorf("chunk failed after %d attempts: %w", l.maxRetries, lastErr)
}

// runChunk executes one chunk inside a savepoint so a statement failure only
// discards this chunk's work.
func runChunk(ctx context.Context, tx db.Tx, savepoint, sql string, args []any) (int, int, error) {
	if err := tx.Savepoint(ctx, savepoint); err != nil {
		return 0, 0, fmt.Errorf("create savepoint: %w", err)
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		_ = tx.RollbackToSavepoint(ctx, savepoint)
		return 0, 0, fmt.Errorf("execute upsert: %w", err)
	}

	inserted := 0
	updated := 0
	for rows.Next() {
		var xmax int64
		if err := rows.Scan(&xmax); err != nil {
			rows.Close()
			_ = tx.RollbackToSavepoint(ctx, savepoint)
			return 0, 0, fmt.Errorf("scan xmax: %w", err)
		}
		if xmax == 0 {
			inserted++
		} else {
			updated++
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		_ = tx.RollbackToSavepoint(ctx, savepoint)
		return 0, 0, fmt.Errorf("iterate upsert rows: %w", err)
	}
	rows.Close()

	if err := tx.ReleaseSavepoint(ctx, savepoint); err != nil {
		return 0, 0, fmt.Errorf("release savepoint: %w", err)
	}
	return inserted, updated, nil
}

func sleepChunkRetry(ctx context.Context, attempt int) error {
	delay := chunkRetryBase << attempt
	if delay > chunkRetryCeiling {
		delay = chunkRetryCeiling
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
