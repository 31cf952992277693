package matching

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/db"
)

func floatptr(f float64) *float64 { return &f }

type fakeMatchStore struct {
	positions  []db.PositionForMatching
	candidates []db.CandidateForMatching

	embeddingQueries int
	skillQueries     int
	upserts          map[int64][]db.MatchUpsertRow
}

func (s *fakeMatchStore) QueryOpenPositions(ctx context.Context, positionID *int64) ([]db.PositionForMatching, error) {
	if positionID == nil {
		return s.positions, nil
	}
	for _, p := range s.positions {
		if p.PositionID == *positionID {
			return []db.PositionForMatching{p}, nil
		}
	}
	return nil, nil
}

func (s *fakeMatchStore) QueryCandidatesByEmbedding(ctx context.Context, embedding string, skillsFilter []string, limit int) ([]db.CandidateForMatching, error) {
	s.embeddingQueries++
	return s.candidates, nil
}

func (s *fakeMatchStore) QueryCandidatesBySkills(ctx context.Context, skillsFilter []string, limit int) ([]db.CandidateForMatching, error) {
	s.skillQueries++
	return s.candidates, nil
}

func (s *fakeMatchStore) UpsertMatches(ctx context.Context, positionID int64, matches []db.MatchUpsertRow) (int64, error) {
	if s.upserts == nil {
		s.upserts = map[int64][]db.MatchUpsertRow{}
	}
	s.upserts[positionID] = matches
	return int64(len(matches)), nil
}

func openPosition(id int64) db.PositionForMatching {
	return db.PositionForMatching{
		PositionID:           id,
		Title:                "Backend Engineer",
		RequiredSkills:       []string{"go"},
		DescriptionEmbedding: strptr("[0.1,0.2]"),
	}
}

// Identical similarity and skills for every candidate, so the composite
// score only depends on the shared components.
func uniformCandidates(ids ...int64) []db.CandidateForMatching {
	out := make([]db.CandidateForMatching, 0, len(ids))
	for _, id := range ids {
		out = append(out, db.CandidateForMatching{
			CandidateID: id,
			Skills:      []string{"go"},
			Similarity:  floatptr(90),
		})
	}
	return out
}

func newTestEngine(store Store, minScore, maxMatches int) *Engine {
	cfg := &config.Config{MatchingMinScore: minScore, MatchingMaxMatches: maxMatches}
	return NewEngine(store, cfg, zerolog.Nop())
}

func TestRun_TieBreaksOnCandidateID(t *testing.T) {
	t.Parallel()

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1)},
		candidates: uniformCandidates(42, 7, 19),
	}
	engine := newTestEngine(store, 70, 1)

	summary, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalMatches != 1 {
		t.Fatalf("expected 1 match after capping, got %d", summary.TotalMatches)
	}

	kept := store.upserts[1]
	if len(kept) != 1 {
		t.Fatalf("expected 1 upserted row, got %d", len(kept))
	}
	if kept[0].CandidateID != 7 {
		t.Fatalf("equal scores must keep the lowest candidate id, got %d", kept[0].CandidateID)
	}
}

func TestRun_CapsAtMaxMatches(t *testing.T) {
	t.Parallel()

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1)},
		candidates: uniformCandidates(5, 4, 3, 2, 1),
	}
	engine := newTestEngine(store, 70, 3)

	if _, err := engine.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	kept := store.upserts[1]
	if len(kept) != 3 {
		t.Fatalf("expected 3 upserted rows, got %d", len(kept))
	}
	for i, wantID := range []int64{1, 2, 3} {
		if kept[i].CandidateID != wantID {
			t.Fatalf("row %d: expected candidate %d, got %d", i, wantID, kept[i].CandidateID)
		}
	}
}

func TestRun_OrdersByOverallScoreDescending(t *testing.T) {
	t.Parallel()

	candidates := uniformCandidates(1, 2)
	candidates[0].Similarity = floatptr(60)
	candidates[1].Similarity = floatptr(95)

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1)},
		candidates: candidates,
	}
	engine := newTestEngine(store, 10, 100)

	if _, err := engine.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	kept := store.upserts[1]
	if len(kept) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(kept))
	}
	if kept[0].CandidateID != 2 || kept[1].CandidateID != 1 {
		t.Fatalf("expected higher-similarity candidate first, got %d then %d", kept[0].CandidateID, kept[1].CandidateID)
	}
	if kept[0].OverallScore <= kept[1].OverallScore {
		t.Fatalf("scores not descending: %d then %d", kept[0].OverallScore, kept[1].OverallScore)
	}
}

func TestRun_MissingEmbeddingFallsBackToSkillQuery(t *testing.T) {
	t.Parallel()

	position := openPosition(1)
	position.DescriptionEmbedding = nil

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{position},
		candidates: []db.CandidateForMatching{{CandidateID: 1, Skills: []string{"go"}}},
	}
	engine := newTestEngine(store, 70, 100)

	minScore := 40
	if _, err := engine.Run(context.Background(), Options{MinScore: &minScore}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.embeddingQueries != 0 {
		t.Fatalf("expected no embedding query for a position without one")
	}
	if store.skillQueries != 1 {
		t.Fatalf("expected one skill-based query, got %d", store.skillQueries)
	}

	kept := store.upserts[1]
	if len(kept) != 1 {
		t.Fatalf("expected 1 row, got %d", len(kept))
	}
	if kept[0].SemanticScore == nil || *kept[0].SemanticScore != 50 {
		t.Fatalf("expected default semantic score 50, got %v", kept[0].SemanticScore)
	}
}

func TestRun_UnembeddedCandidateScoresWithDefaultSemantic(t *testing.T) {
	t.Parallel()

	// The embedding query returns candidates without a profile embedding
	// too; those rows carry a nil similarity and score semantic 50.
	candidates := uniformCandidates(1, 2)
	candidates[1].Similarity = nil

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1)},
		candidates: candidates,
	}
	engine := newTestEngine(store, 60, 100)

	summary, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.embeddingQueries != 1 {
		t.Fatalf("expected the embedding query path, got %d embedding queries", store.embeddingQueries)
	}
	if summary.TotalMatches != 2 {
		t.Fatalf("expected both candidates matched, got %d", summary.TotalMatches)
	}

	kept := store.upserts[1]
	if len(kept) != 2 {
		t.Fatalf("expected 2 upserted rows, got %d", len(kept))
	}
	if kept[0].CandidateID != 1 || kept[1].CandidateID != 2 {
		t.Fatalf("expected embedded candidate first, got %d then %d", kept[0].CandidateID, kept[1].CandidateID)
	}
	if kept[1].SemanticScore == nil || *kept[1].SemanticScore != 50 {
		t.Fatalf("expected default semantic score 50 for the unembedded candidate, got %v", kept[1].SemanticScore)
	}
	if kept[1].OverallScore != 62 {
		t.Fatalf("expected overall 62 for the unembedded candidate, got %d", kept[1].OverallScore)
	}
}

func TestRun_MalformedEmbeddingFallsBackToSkillQuery(t *testing.T) {
	t.Parallel()

	position := openPosition(1)
	position.DescriptionEmbedding = strptr("not a vector")

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{position},
		candidates: nil,
	}
	engine := newTestEngine(store, 70, 100)

	if _, err := engine.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.embeddingQueries != 0 || store.skillQueries != 1 {
		t.Fatalf("expected skill fallback, got %d embedding and %d skill queries",
			store.embeddingQueries, store.skillQueries)
	}
}

func TestRun_NoUpsertBelowThreshold(t *testing.T) {
	t.Parallel()

	candidates := uniformCandidates(1)
	candidates[0].Similarity = floatptr(10)

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1)},
		candidates: candidates,
	}
	engine := newTestEngine(store, 70, 100)

	summary, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PositionsProcessed != 1 {
		t.Fatalf("expected position still processed, got %d", summary.PositionsProcessed)
	}
	if summary.TotalMatches != 0 {
		t.Fatalf("expected no matches, got %d", summary.TotalMatches)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected no upsert call for an empty match set")
	}
}

func TestRun_MinScoreOverride(t *testing.T) {
	t.Parallel()

	candidates := uniformCandidates(1)
	candidates[0].Similarity = floatptr(50)

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1)},
		candidates: candidates,
	}
	engine := newTestEngine(store, 70, 100)

	minScore := 30
	summary, err := engine.Run(context.Background(), Options{MinScore: &minScore})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalMatches != 1 {
		t.Fatalf("expected override to admit the match, got %d", summary.TotalMatches)
	}
}

func TestRun_SinglePositionFilter(t *testing.T) {
	t.Parallel()

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1), openPosition(2)},
		candidates: uniformCandidates(1),
	}
	engine := newTestEngine(store, 70, 100)

	positionID := int64(2)
	summary, err := engine.Run(context.Background(), Options{PositionID: &positionID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PositionsProcessed != 1 {
		t.Fatalf("expected only the named position processed, got %d", summary.PositionsProcessed)
	}
	if _, ok := store.upserts[2]; !ok {
		t.Fatalf("expected matches for position 2")
	}
	if _, ok := store.upserts[1]; ok {
		t.Fatalf("did not expect matches for position 1")
	}
}

func TestRun_SummaryAcrossPositions(t *testing.T) {
	t.Parallel()

	store := &fakeMatchStore{
		positions:  []db.PositionForMatching{openPosition(1), openPosition(2), openPosition(3)},
		candidates: uniformCandidates(1, 2),
	}
	engine := newTestEngine(store, 70, 100)

	summary, err := engine.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PositionsProcessed != 3 {
		t.Fatalf("expected 3 positions processed, got %d", summary.PositionsProcessed)
	}
	if summary.TotalMatches != 6 {
		t.Fatalf("expected 6 total matches, got %d", summary.TotalMatches)
	}
}
