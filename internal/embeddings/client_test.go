package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/db"
)

func vectorOf(dim int, fill float32) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = fill
	}
	return vec
}

func newEmbedServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{EmbeddingServiceURL: server.URL}
	client, err := NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return server, client
}

func TestEmbedBatch_RoundTrip(t *testing.T) {
	t.Parallel()

	_, client := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings/batch" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		vectors := make([][]float32, len(req.Texts))
		for i := range vectors {
			vectors[i] = vectorOf(db.EmbeddingDimensions, float32(i)+0.5)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	})

	vectors, err := client.EmbedBatch(context.Background(), []string{"profile one", "profile two"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if len(vectors[0]) != db.EmbeddingDimensions {
		t.Fatalf("expected %d dimensions, got %d", db.EmbeddingDimensions, len(vectors[0]))
	}
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	t.Parallel()

	_, client := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{vectorOf(db.EmbeddingDimensions, 1)},
		})
	})

	if _, err := client.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}

func TestEmbedBatch_DimensionMismatch(t *testing.T) {
	t.Parallel()

	_, client := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{vectorOf(12, 1)},
		})
	})

	if _, err := client.EmbedBatch(context.Background(), []string{"a"}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestEmbedBatch_ServerError(t *testing.T) {
	t.Parallel()

	_, client := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := client.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatalf("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status code in error, got: %v", err)
	}
}

func TestEmbedBatch_EmptyInputIsNoop(t *testing.T) {
	t.Parallel()

	called := false
	_, client := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	vectors, err := client.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vectors != nil || called {
		t.Fatalf("expected no request for empty input")
	}
}

func TestToVectorLiteral(t *testing.T) {
	t.Parallel()

	literal, err := ToVectorLiteral([]float32{0.5, -1, 2.25})
	if err != nil {
		t.Fatalf("ToVectorLiteral: %v", err)
	}
	if literal != "[0.5,-1,2.25]" {
		t.Fatalf("unexpected literal %q", literal)
	}

	if _, err := ToVectorLiteral(nil); err == nil {
		t.Fatalf("expected error for empty vector")
	}
	if _, err := ToVectorLiteral([]float32{1, float32(math.NaN())}); err == nil {
		t.Fatalf("expected error for NaN component")
	}
	if _, err := ToVectorLiteral([]float32{float32(math.Inf(1))}); err == nil {
		t.Fatalf("expected error for infinite component")
	}
}

func TestToVectorLiteral_RoundTripsThroughParsing(t *testing.T) {
	t.Parallel()

	vec := vectorOf(8, 0.125)
	literal, err := ToVectorLiteral(vec)
	if err != nil {
		t.Fatalf("ToVectorLiteral: %v", err)
	}
	if !strings.HasPrefix(literal, "[") || !strings.HasSuffix(literal, "]") {
		t.Fatalf("literal not bracketed: %q", literal)
	}
	if got := strings.Count(literal, ","); got != len(vec)-1 {
		t.Fatalf("expected %d separators, got %d", len(vec)-1, got)
	}
}
