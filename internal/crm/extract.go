package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultPageSize  = 1000
	defaultPageDelay = 100 * time.Millisecond

	// Three empty pages in a row end the scan even without a partial page.
	emptyPageLimit = 3
)

// ExtractOptions tunes a paginated scan of one entity stream.
type ExtractOptions struct {
	PageSize   int
	MaxRecords int
	StartPage  int
	PageDelay  time.Duration
}

func (o ExtractOptions) normalized() ExtractOptions {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.MaxRecords < 0 {
		o.MaxRecords = 0
	}
	if o.StartPage < 0 {
		o.StartPage = 0
	}
	if o.PageDelay <= 0 {
		o.PageDelay = defaultPageDelay
	}
	return o
}

// FetchPage fetches one page of raw entity records. Transient failures are
// retried up to three attempts with exponential backoff.
func (c *Client) FetchPage(ctx context.Context, entity Entity, page, size int) ([]json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("crm client is not initialized")
	}
	path, err := entity.endpoint()
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultPageSize
	}

	query := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, backoffDelay(attempt-1)); err != nil {
				return nil, err
			}
			c.logger.Warn().
				Str("entity", string(entity)).
				Int("page", page).
				Int("attempt", attempt+1).
				Msg("retrying CRM page fetch")
		}

		raw, err := c.doAuthenticated(ctx, path, query)
		if err != nil {
			lastErr = err
			if !isTransient(err) {
				return nil, fmt.Errorf("fetch %s page %d: %w", entity, page, err)
			}
			continue
		}
		records, err := extractContent(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s page %d: %w", entity, page, err)
		}
		return records, nil
	}
	return nil, fmt.Errorf("fetch %s page %d after %d attempts: %w", entity, page, maxAttempts, lastErr)
}

// ExtractAll scans one entity stream page by page. The scan ends on a partial
// page, on reaching MaxRecords, or after three consecutive empty pages.
func (c *Client) ExtractAll(ctx context.Context, entity Entity, opts ExtractOptions) ([]json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("crm client is not initialized")
	}
	opts = opts.normalized()

	c.logger.Info().
		Str("entity", string(entity)).
		Int("page_size", opts.PageSize).
		Int("max_records", opts.MaxRecords).
		Msg("starting paginated extraction")

	all := make([]json.RawMessage, 0, opts.PageSize)
	page := opts.StartPage
	consecutiveEmpty := 0

	for {
		records, err := c.FetchPage(ctx, entity, page, opts.PageSize)
		if err != nil {
			return all, err
		}

		if len(records) == 0 {
			consecutiveEmpty++
			c.logger.Warn().
				Str("entity", string(entity)).
				Int("page", page).
				Int("consecutive_empty", consecutiveEmpty).
				Msg("empty page received")
			if consecutiveEmpty >= emptyPageLimit {
				c.logger.Warn().
					Str("entity", string(entity)).
					Msg("empty page limit reached, stopping extraction")
				break
			}
			page++
			continue
		}
		consecutiveEmpty = 0

		all = append(all, records...)
		c.logger.Info().
			Str("entity", string(entity)).
			Int("page", page).
			Int("records_in_page", len(records)).
			Int("total_fetched", len(all)).
			Msg("page fetched")

		if opts.MaxRecords > 0 && len(all) >= opts.MaxRecords {
			c.logger.Info().
				Str("entity", string(entity)).
				Int("total_fetched", len(all)).
				Msg("max records reached, stopping extraction")
			break
		}
		if len(records) < opts.PageSize {
			break
		}

		page++
		if err := sleepContext(ctx, opts.PageDelay); err != nil {
			return all, err
		}
	}

	c.logger.Info().
		Str("entity", string(entity)).
		Int("total_records", len(all)).
		Msg("extraction complete")
	return all, nil
}

// extractContent normalizes the three envelope shapes the CRM is known to
// return: {data:{content:[...]}}, {content:[...]}, and a bare array. Anything
// else decodes as an empty page.
func extractContent(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode array envelope: %w", err)
		}
		return records, nil
	}
	if trimmed[0] != '{' {
		return nil, nil
	}

	var envelope struct {
		Data    json.RawMessage   `json:"data"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode object envelope: %w", err)
	}

	if inner := bytes.TrimSpace(envelope.Data); len(inner) > 0 && inner[0] == '{' {
		var nested struct {
			Content []json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(inner, &nested); err != nil {
			return nil, fmt.Errorf("decode nested envelope: %w", err)
		}
		return nested.Content, nil
	}
	return envelope.Content, nil
}
