package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/db"
	"horse.fit/talentsync/internal/matching"
)

type fakeAPIStore struct {
	pingErr  error
	stats    *db.TalentStats
	statsErr error
}

func (s *fakeAPIStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeAPIStore) QueryTalentStats(context.Context) (*db.TalentStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.stats, nil
}

type fakeMatcher struct {
	lastOpts matching.Options
	summary  matching.Summary
	err      error
	calls    int
}

func (m *fakeMatcher) Run(ctx context.Context, opts matching.Options) (matching.Summary, error) {
	m.calls++
	m.lastOpts = opts
	if m.err != nil {
		return matching.Summary{}, m.err
	}
	return m.summary, nil
}

func newTestServer(store Store, matcher Matcher) *Server {
	return NewServer(store, matcher, zerolog.Nop(), Options{})
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	return rec
}

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAPIStore{}, &fakeMatcher{})
	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeJSend(t, rec)
	if resp["status"] != "success" {
		t.Fatalf("expected jsend success, got %v", resp["status"])
	}
}

func TestHandleHealth_DatabaseDown(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAPIStore{pingErr: errors.New("connection refused")}, &fakeMatcher{})
	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decodeJSend(t, rec)
	if resp["status"] != "fail" {
		t.Fatalf("expected jsend fail, got %v", resp["status"])
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	stats := &db.TalentStats{
		Consultants: 3,
		Candidates:  db.EntityStats{Total: 120, Embedded: 100, PendingEmbedding: 20},
		Positions:   db.EntityStats{Total: 15, Embedded: 15},
		Matches:     440,
	}
	s := newTestServer(&fakeAPIStore{stats: stats}, &fakeMatcher{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeJSend(t, rec)
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", resp["data"])
	}
	if data["consultants"] != float64(3) {
		t.Fatalf("expected 3 consultants, got %v", data["consultants"])
	}
	candidates, ok := data["candidates"].(map[string]any)
	if !ok || candidates["pending_embedding"] != float64(20) {
		t.Fatalf("unexpected candidates block: %v", data["candidates"])
	}
}

func TestHandleStats_QueryFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAPIStore{statsErr: errors.New("relation does not exist")}, &fakeMatcher{})
	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	resp := decodeJSend(t, rec)
	if resp["status"] != "error" {
		t.Fatalf("expected jsend error, got %v", resp["status"])
	}
}

func TestHandleMatchingRun(t *testing.T) {
	t.Parallel()

	matcher := &fakeMatcher{summary: matching.Summary{PositionsProcessed: 4, TotalMatches: 17}}
	s := newTestServer(&fakeAPIStore{}, matcher)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/matching/run", `{"position_id": 12, "min_score": 55}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if matcher.calls != 1 {
		t.Fatalf("expected one matching run, got %d", matcher.calls)
	}
	if matcher.lastOpts.PositionID == nil || *matcher.lastOpts.PositionID != 12 {
		t.Fatalf("position id not forwarded: %v", matcher.lastOpts.PositionID)
	}
	if matcher.lastOpts.MinScore == nil || *matcher.lastOpts.MinScore != 55 {
		t.Fatalf("min score not forwarded: %v", matcher.lastOpts.MinScore)
	}

	resp := decodeJSend(t, rec)
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %v", resp["data"])
	}
	if data["positions_processed"] != float64(4) || data["total_matches"] != float64(17) {
		t.Fatalf("unexpected summary payload: %v", data)
	}
}

func TestHandleMatchingRun_EmptyBodyRunsAllPositions(t *testing.T) {
	t.Parallel()

	matcher := &fakeMatcher{}
	s := newTestServer(&fakeAPIStore{}, matcher)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/matching/run", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if matcher.lastOpts.PositionID != nil || matcher.lastOpts.MinScore != nil {
		t.Fatalf("expected empty options, got %+v", matcher.lastOpts)
	}
}

func TestHandleMatchingRun_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "negative position id", body: `{"position_id": -1}`},
		{name: "zero position id", body: `{"position_id": 0}`},
		{name: "min score too high", body: `{"min_score": 101}`},
		{name: "min score negative", body: `{"min_score": -5}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			matcher := &fakeMatcher{}
			s := newTestServer(&fakeAPIStore{}, matcher)
			rec := doRequest(t, s, http.MethodPost, "/api/v1/matching/run", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if matcher.calls != 0 {
				t.Fatalf("matching must not run on invalid input")
			}
		})
	}
}

func TestHandleMatchingRun_Failure(t *testing.T) {
	t.Parallel()

	matcher := &fakeMatcher{err: errors.New("database gone")}
	s := newTestServer(&fakeAPIStore{}, matcher)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/matching/run", `{}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
