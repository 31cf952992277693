package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingItem is one record still waiting for an embedding.
type EmbeddingItem struct {
	ID   int64
	Text string
}

// EmbeddingUpdate carries a computed embedding back to its row. Vector is a
// pgvector literal in the form "[f1,f2,...]".
type EmbeddingUpdate struct {
	ID     int64
	Vector string
}

// QueryCandidateEmbeddingBacklog returns candidates without a profile
// embedding, newest first so recently synced records are served before the
// long tail.
func (p *Pool) QueryCandidateEmbeddingBacklog(ctx context.Context) ([]EmbeddingItem, error) {
	const q = `
SELECT candidate_id, profile_text
FROM talent.candidates
WHERE profile_embedding IS NULL
ORDER BY created_at DESC, candidate_id DESC`

	return p.queryEmbeddingItems(ctx, q)
}

// QueryPositionEmbeddingBacklog returns positions without a description
// embedding, newest first.
func (p *Pool) QueryPositionEmbeddingBacklog(ctx context.Context) ([]EmbeddingItem, error) {
	const q = `
SELECT position_id, description_text
FROM talent.positions
WHERE description_embedding IS NULL
ORDER BY created_at DESC, position_id DESC`

	return p.queryEmbeddingItems(ctx, q)
}

func (p *Pool) queryEmbeddingItems(ctx context.Context, query string) ([]EmbeddingItem, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	rows, err := p.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding backlog: %w", err)
	}
	defer rows.Close()

	items := make([]EmbeddingItem, 0, 256)
	for rows.Next() {
		var item EmbeddingItem
		if err := rows.Scan(&item.ID, &item.Text); err != nil {
			return nil, fmt.Errorf("scan embedding backlog row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding backlog rows: %w", err)
	}
	return items, nil
}

// UpdateCandidateEmbeddings writes one batch of candidate embeddings in a
// single statement.
func (p *Pool) UpdateCandidateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) (int64, error) {
	return p.updateEmbeddings(ctx, "talent.candidates", "candidate_id", "profile_embedding", updates)
}

// UpdatePositionEmbeddings writes one batch of position embeddings in a
// single statement.
func (p *Pool) UpdatePositionEmbeddings(ctx context.Context, updates []EmbeddingUpdate) (int64, error) {
	return p.updateEmbeddings(ctx, "talent.positions", "position_id", "description_embedding", updates)
}

func (p *Pool) updateEmbeddings(ctx context.Context, table, idColumn, vectorColumn string, updates []EmbeddingUpdate) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	if len(updates) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(updates)*2)

	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	sb.WriteString(vectorColumn)
	sb.WriteString(" = CASE ")
	sb.WriteString(idColumn)
	for _, u := range updates {
		sb.WriteString(" WHEN $")
		sb.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, u.ID)
		sb.WriteString("::bigint THEN $")
		sb.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, u.Vector)
		sb.WriteString("::vector")
	}
	sb.WriteString(" END, updated_at = now() WHERE ")
	sb.WriteString(idColumn)
	sb.WriteString(" IN (")
	for i, u := range updates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("$")
		sb.WriteString(strconv.Itoa(len(args) + 1))
		args = append(args, u.ID)
	}
	sb.WriteString(")")

	tag, err := p.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("update %s embeddings: %w", table, err)
	}
	return tag.RowsAffected(), nil
}
