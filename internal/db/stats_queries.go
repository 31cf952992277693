package db

import (
	"context"
	"fmt"
)

// EntityStats holds per-entity row and embedding counts.
type EntityStats struct {
	Total            int64 `json:"total"`
	Embedded         int64 `json:"embedded"`
	PendingEmbedding int64 `json:"pending_embedding"`
}

// TalentStats is the read model behind the stats endpoint.
type TalentStats struct {
	Consultants int64       `json:"consultants"`
	Candidates  EntityStats `json:"candidates"`
	Positions   EntityStats `json:"positions"`
	Matches     int64       `json:"matches"`
}

// QueryTalentStats returns row counts and embedding progress across the
// talent schema.
func (p *Pool) QueryTalentStats(ctx context.Context) (*TalentStats, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	const q = `
SELECT
	(SELECT COUNT(*) FROM talent.consultants),
	(SELECT COUNT(*) FROM talent.candidates),
	(SELECT COUNT(*) FROM talent.candidates WHERE profile_embedding IS NOT NULL),
	(SELECT COUNT(*) FROM talent.positions),
	(SELECT COUNT(*) FROM talent.positions WHERE description_embedding IS NOT NULL),
	(SELECT COUNT(*) FROM talent.matches)`

	stats := &TalentStats{}
	var candidatesEmbedded, positionsEmbedded int64
	row := p.QueryRow(ctx, q)
	if err := row.Scan(
		&stats.Consultants,
		&stats.Candidates.Total,
		&candidatesEmbedded,
		&stats.Positions.Total,
		&positionsEmbedded,
		&stats.Matches,
	); err != nil {
		return nil, fmt.Errorf("query talent stats: %w", err)
	}
	stats.Candidates.Embedded = candidatesEmbedded
	stats.Candidates.PendingEmbedding = stats.Candidates.Total - candidatesEmbedded
	stats.Positions.Embedded = positionsEmbedded
	stats.Positions.PendingEmbedding = stats.Positions.Total - positionsEmbedded
	return stats, nil
}

// Ping verifies database connectivity.
func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return p.sqlDB.PingContext(ctx)
}
