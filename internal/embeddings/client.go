// Package embeddings fills missing profile and description vectors by
// batching texts through the embedding service.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/db"
)

const defaultEmbedTimeout = 120 * time.Second

// Client calls the embedding service's batch endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	dimensions int
}

func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.EmbeddingServiceURL), "/")
	if base == "" {
		return nil, fmt.Errorf("embedding service URL is required")
	}
	timeout := cfg.EmbeddingTimeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "embedding-client").Logger(),
		dimensions: db.EmbeddingDimensions,
	}, nil
}

// EmbedBatch embeds texts in one request. The response must carry exactly one
// vector per input text, each with the expected dimensionality.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("embedding client is not initialized")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(struct {
		Texts []string `json:"texts"`
	}{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings/batch", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var body struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(body.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(body.Embeddings))
	}
	for i, vec := range body.Embeddings {
		if len(vec) != c.dimensions {
			return nil, fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(vec), c.dimensions)
		}
	}
	return body.Embeddings, nil
}

// ToVectorLiteral renders a vector as a pgvector literal. Non-finite
// components are rejected rather than silently written.
func ToVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector is empty")
	}

	var sb strings.Builder
	sb.Grow(len(vec) * 10)
	sb.WriteByte('[')
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("vector component %d is not finite", i)
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String(), nil
}
