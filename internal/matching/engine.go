package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/db"
	"horse.fit/talentsync/internal/globaltime"
)

const (
	defaultMinScore   = 70
	defaultMaxMatches = 100

	// One bulk query per position; scoring happens over this slice.
	candidateFetchLimit = 2000
)

// Store is the slice of db.Pool the engine needs.
type Store interface {
	QueryOpenPositions(ctx context.Context, positionID *int64) ([]db.PositionForMatching, error)
	QueryCandidatesByEmbedding(ctx context.Context, embedding string, skillsFilter []string, limit int) ([]db.CandidateForMatching, error)
	QueryCandidatesBySkills(ctx context.Context, skillsFilter []string, limit int) ([]db.CandidateForMatching, error)
	UpsertMatches(ctx context.Context, positionID int64, matches []db.MatchUpsertRow) (int64, error)
}

// Options narrows a matching run to one position or overrides the score
// threshold.
type Options struct {
	PositionID *int64
	MinScore   *int
}

// Summary reports one matching run.
type Summary struct {
	PositionsProcessed int     `json:"positions_processed"`
	TotalMatches       int     `json:"total_matches"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

// Engine scores candidates against open positions and upserts the results.
type Engine struct {
	store  Store
	logger zerolog.Logger

	minScore   int
	maxMatches int
}

func NewEngine(store Store, cfg *config.Config, logger zerolog.Logger) *Engine {
	e := &Engine{
		store:      store,
		logger:     logger.With().Str("component", "matching-engine").Logger(),
		minScore:   defaultMinScore,
		maxMatches: defaultMaxMatches,
	}
	if cfg != nil {
		if cfg.MatchingMinScore > 0 {
			e.minScore = cfg.MatchingMinScore
		}
		if cfg.MatchingMaxMatches > 0 {
			e.maxMatches = cfg.MatchingMaxMatches
		}
	}
	return e
}

// Run matches every open position, or the one position named in opts. A
// position whose embedding is missing or malformed is still processed with
// the semantic component at its default.
func (e *Engine) Run(ctx context.Context, opts Options) (Summary, error) {
	if e == nil || e.store == nil {
		return Summary{}, fmt.Errorf("matching engine is not initialized")
	}
	started := globaltime.Now()

	minScore := e.minScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	positions, err := e.store.QueryOpenPositions(ctx, opts.PositionID)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch open positions: %w", err)
	}

	summary := Summary{}
	for _, position := range positions {
		matches, err := e.matchPosition(ctx, position, minScore)
		if err != nil {
			return summary, fmt.Errorf("match position %d: %w", position.PositionID, err)
		}
		if len(matches) > 0 {
			if _, err := e.store.UpsertMatches(ctx, position.PositionID, matches); err != nil {
				return summary, fmt.Errorf("upsert matches for position %d: %w", position.PositionID, err)
			}
		}
		summary.PositionsProcessed++
		summary.TotalMatches += len(matches)
		e.logger.Info().
			Int64("position_id", position.PositionID).
			Str("title", position.Title).
			Int("matches", len(matches)).
			Msg("position matched")
	}

	summary.DurationSeconds = globaltime.Now().Sub(started).Seconds()
	e.logger.Info().
		Int("positions_processed", summary.PositionsProcessed).
		Int("total_matches", summary.TotalMatches).
		Float64("duration_seconds", summary.DurationSeconds).
		Msg("matching run complete")
	return summary, nil
}

func (e *Engine) matchPosition(ctx context.Context, position db.PositionForMatching, minScore int) ([]db.MatchUpsertRow, error) {
	skillsFilter := unionSkills(position.RequiredSkills, position.PreferredSkills)
	embedding, embeddingValid := validEmbeddingLiteral(position.DescriptionEmbedding)
	if !embeddingValid {
		e.logger.Warn().
			Int64("position_id", position.PositionID).
			Msg("position has no usable embedding, semantic score defaults")
	}

	var (
		candidates []db.CandidateForMatching
		err        error
	)
	if embeddingValid {
		candidates, err = e.store.QueryCandidatesByEmbedding(ctx, embedding, skillsFilter, candidateFetchLimit)
	} else {
		candidates, err = e.store.QueryCandidatesBySkills(ctx, skillsFilter, candidateFetchLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]db.MatchUpsertRow, 0, len(candidates))
	for _, candidate := range candidates {
		semantic := float64(defaultComponentScore)
		if candidate.Similarity != nil {
			semantic = *candidate.Similarity
		}
		skill := scoreSkills(candidate.Skills, position.RequiredSkills, position.PreferredSkills)
		experience := scoreExperience(candidate.Experience, position.ExperienceLevel)
		location := scoreLocation(candidate.Location, position.Location)
		overall := overallScore(semantic, skill, experience, location)
		if overall < minScore {
			continue
		}

		semanticInt := int(semantic)
		scored = append(scored, db.MatchUpsertRow{
			CandidateID:     candidate.CandidateID,
			OverallScore:    overall,
			SemanticScore:   &semanticInt,
			SkillScore:      skill,
			ExperienceScore: experience,
			LocationScore:   location,
		})
	}

	// Overall score descending; equal scores break ties by candidate id
	// ascending so runs over the same data always pick the same top slice.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].OverallScore != scored[j].OverallScore {
			return scored[i].OverallScore > scored[j].OverallScore
		}
		return scored[i].CandidateID < scored[j].CandidateID
	})
	if len(scored) > e.maxMatches {
		scored = scored[:e.maxMatches]
	}
	return scored, nil
}

// validEmbeddingLiteral accepts only bracketed vector literals.
func validEmbeddingLiteral(embedding *string) (string, bool) {
	if embedding == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*embedding)
	if len(trimmed) < 2 || !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return "", false
	}
	return trimmed, true
}

func unionSkills(required, preferred []string) []string {
	seen := make(map[string]bool, len(required)+len(preferred))
	out := make([]string, 0, len(required)+len(preferred))
	for _, s := range required {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range preferred {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
