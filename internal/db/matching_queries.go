package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PositionForMatching is the read model the matching engine scores against.
type PositionForMatching struct {
	PositionID           int64
	Title                string
	RequiredSkills       []string
	PreferredSkills      []string
	ExperienceLevel      *string
	Location             *string
	DescriptionEmbedding *string
}

// CandidateForMatching is one scoring input row. Similarity is the rescaled
// cosine similarity in [0, 100] and is nil when the row was fetched without a
// vector comparison.
type CandidateForMatching struct {
	CandidateID int64
	Skills      []string
	Experience  json.RawMessage
	Location    *string
	Similarity  *float64
}

// MatchUpsertRow is one scored pairing headed for talent.matches.
type MatchUpsertRow struct {
	CandidateID     int64
	OverallScore    int
	SemanticScore   *int
	SkillScore      int
	ExperienceScore int
	LocationScore   int
}

// QueryOpenPositions returns all open positions, or the single open position
// with the given id when positionID is non-nil.
func (p *Pool) QueryOpenPositions(ctx context.Context, positionID *int64) ([]PositionForMatching, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	query := `
SELECT
	position_id,
	title,
	array_to_json(COALESCE(required_skills, '{}'))::text,
	array_to_json(COALESCE(preferred_skills, '{}'))::text,
	experience_level,
	location,
	description_embedding::text
FROM talent.positions
WHERE status = 'OPEN'`
	args := []any{}
	if positionID != nil {
		query += `
	AND position_id = $1`
		args = append(args, *positionID)
	}
	query += `
ORDER BY position_id ASC`

	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]PositionForMatching, 0, 16)
	for rows.Next() {
		var (
			pos           PositionForMatching
			requiredJSON  string
			preferredJSON string
			embedding     sql.NullString
		)
		if err := rows.Scan(&pos.PositionID, &pos.Title, &requiredJSON, &preferredJSON, &pos.ExperienceLevel, &pos.Location, &embedding); err != nil {
			return nil, fmt.Errorf("scan open position row: %w", err)
		}
		if err := json.Unmarshal([]byte(requiredJSON), &pos.RequiredSkills); err != nil {
			return nil, fmt.Errorf("decode required skills for position %d: %w", pos.PositionID, err)
		}
		if err := json.Unmarshal([]byte(preferredJSON), &pos.PreferredSkills); err != nil {
			return nil, fmt.Errorf("decode preferred skills for position %d: %w", pos.PositionID, err)
		}
		if embedding.Valid {
			pos.DescriptionEmbedding = &embedding.String
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open position rows: %w", err)
	}
	return positions, nil
}

// QueryCandidatesByEmbedding returns active candidates ordered by cosine
// distance to the given vector literal, closest first. Candidates without a
// profile embedding sort after embedded ones and come back with a nil
// Similarity. skillsFilter narrows the scan to candidates sharing at least
// one skill; an empty filter means no narrowing.
func (p *Pool) QueryCandidatesByEmbedding(ctx context.Context, embedding string, skillsFilter []string, limit int) ([]CandidateForMatching, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	query := `
SELECT
	candidate_id,
	array_to_json(COALESCE(skills, '{}'))::text,
	experience,
	location,
	CASE WHEN profile_embedding IS NOT NULL
		THEN (1 - (profile_embedding <=> $1::vector)) * 100
	END
FROM talent.candidates
WHERE status = 'ACTIVE'`
	args := []any{embedding}
	if len(skillsFilter) > 0 {
		query += `
	AND skills && $2::text[]`
		args = append(args, skillsFilter)
	}
	query += `
ORDER BY profile_embedding <=> $1::vector
LIMIT ` + strconv.Itoa(limit)

	return p.queryMatchingCandidates(ctx, query, args, true)
}

// QueryCandidatesBySkills is the fallback scan for positions without a usable
// embedding. Rows come back in candidate id order with no similarity.
func (p *Pool) QueryCandidatesBySkills(ctx context.Context, skillsFilter []string, limit int) ([]CandidateForMatching, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	query := `
SELECT
	candidate_id,
	array_to_json(COALESCE(skills, '{}'))::text,
	experience,
	location
FROM talent.candidates
WHERE status = 'ACTIVE'`
	args := []any{}
	if len(skillsFilter) > 0 {
		query += `
	AND skills && $1::text[]`
		args = append(args, skillsFilter)
	}
	query += `
ORDER BY candidate_id ASC
LIMIT ` + strconv.Itoa(limit)

	return p.queryMatchingCandidates(ctx, query, args, false)
}

func (p *Pool) queryMatchingCandidates(ctx context.Context, query string, args []any, withSimilarity bool) ([]CandidateForMatching, error) {
	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matching candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]CandidateForMatching, 0, 256)
	for rows.Next() {
		var (
			c          CandidateForMatching
			skillsJSON string
			experience sql.NullString
			similarity sql.NullFloat64
		)
		dest := []any{&c.CandidateID, &skillsJSON, &experience, &c.Location}
		if withSimilarity {
			dest = append(dest, &similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan matching candidate row: %w", err)
		}
		if err := json.Unmarshal([]byte(skillsJSON), &c.Skills); err != nil {
			return nil, fmt.Errorf("decode skills for candidate %d: %w", c.CandidateID, err)
		}
		if experience.Valid {
			c.Experience = json.RawMessage(experience.String)
		}
		if similarity.Valid {
			v := similarity.Float64
			c.Similarity = &v
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matching candidate rows: %w", err)
	}
	return candidates, nil
}

// UpsertMatches writes one position's scored matches in a single statement.
// Inserts start in PENDING status; conflicting rows get fresh scores and a
// fresh updated_at while keeping whatever status they already carry.
func (p *Pool) UpsertMatches(ctx context.Context, positionID int64, matches []MatchUpsertRow) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	if len(matches) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(matches)*7)

	sb.WriteString(`INSERT INTO talent.matches
	(candidate_id, position_id, overall_score, semantic_score, skill_score, experience_score, location_score, status, created_at, updated_at)
VALUES `)
	for i, m := range matches {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := len(args)
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, 'PENDING', now(), now())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, m.CandidateID, positionID, m.OverallScore, m.SemanticScore, m.SkillScore, m.ExperienceScore, m.LocationScore)
	}
	sb.WriteString(`
ON CONFLICT (candidate_id, position_id) DO UPDATE SET
	overall_score = EXCLUDED.overall_score,
	semantic_score = EXCLUDED.semantic_score,
	skill_score = EXCLUDED.skill_score,
	experience_score = EXCLUDED.experience_score,
	location_score = EXCLUDED.location_score,
	updated_at = now()`)

	tag, err := p.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("upsert matches for position %d: %w", positionID, err)
	}
	return tag.RowsAffected(), nil
}
