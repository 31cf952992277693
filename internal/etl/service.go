package etl

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/talentsync/internal/config"
	"horse.fit/talentsync/internal/crm"
	"horse.fit/talentsync/internal/globaltime"
	crmschema "horse.fit/talentsync/schema"
)

// Extractor is the slice of crm.Client the sync service needs.
type Extractor interface {
	ExtractAll(ctx context.Context, entity crm.Entity, opts crm.ExtractOptions) ([]json.RawMessage, error)
}

// EntityReport is the outcome of one entity stream.
type EntityReport struct {
	Entity    string       `json:"entity"`
	Extracted int          `json:"extracted"`
	Dropped   int          `json:"dropped"`
	Result    UpsertResult `json:"result"`
	Error     string       `json:"error,omitempty"`
}

// SyncSummary aggregates one sync run.
type SyncSummary struct {
	Reports         []EntityReport `json:"reports"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// Service runs extract, transform, and load for the CRM entity streams. The
// streams are independent failure domains: one stream erroring never aborts
// its siblings.
type Service struct {
	extractor Extractor
	loader    *Loader
	logger    zerolog.Logger

	pageSize   int
	pageDelay  time.Duration
	maxRecords int
}

func NewService(extractor Extractor, loader *Loader, cfg *config.Config, logger zerolog.Logger) *Service {
	svc := &Service{
		extractor:  extractor,
		loader:     loader,
		logger:     logger.With().Str("component", "sync-service").Logger(),
		pageSize:   defaultBatchSize,
		pageDelay:  100 * time.Millisecond,
		maxRecords: defaultMaxRecords,
	}
	if cfg != nil {
		if cfg.CRMPageSize > 0 {
			svc.pageSize = cfg.CRMPageSize
		}
		if cfg.CRMPageDelay > 0 {
			svc.pageDelay = cfg.CRMPageDelay
		}
		if cfg.CRMMaxRecords > 0 {
			svc.maxRecords = cfg.CRMMaxRecords
		}
	}
	return svc
}

// Sync runs the given entity streams concurrently and reports per-stream
// results. An empty entity list means all streams.
func (s *Service) Sync(ctx context.Context, entities []crm.Entity) SyncSummary {
	if len(entities) == 0 {
		entities = crm.Entities()
	}
	started := globaltime.Now()

	reports := make(chan EntityReport, len(entities))
	var wg sync.WaitGroup
	for _, entity := range entities {
		wg.Add(1)
		go func(entity crm.Entity) {
			defer wg.Done()
			reports <- s.syncEntity(ctx, entity)
		}(entity)
	}
	wg.Wait()
	close(reports)

	summary := SyncSummary{Reports: make([]EntityReport, 0, len(entities))}
	for report := range reports {
		summary.Reports = append(summary.Reports, report)
	}
	sort.Slice(summary.Reports, func(i, j int) bool {
		return summary.Reports[i].Entity < summary.Reports[j].Entity
	})
	summary.DurationSeconds = globaltime.Now().Sub(started).Seconds()

	s.logger.Info().
		Int("streams", len(summary.Reports)).
		Float64("duration_seconds", summary.DurationSeconds).
		Msg("sync run complete")
	return summary
}

func (s *Service) syncEntity(ctx context.Context, entity crm.Entity) EntityReport {
	report := EntityReport{Entity: string(entity)}

	raw, err := s.extractor.ExtractAll(ctx, entity, crm.ExtractOptions{
		PageSize:   s.pageSize,
		MaxRecords: s.maxRecords,
		PageDelay:  s.pageDelay,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("entity", string(entity)).Msg("extraction failed")
		report.Error = err.Error()
		return report
	}
	report.Extracted = len(raw)

	records := make([]map[string]any, 0, len(raw))
	for _, payload := range raw {
		record, err := crmschema.ValidateCRMRecord(payload)
		if err != nil {
			report.Dropped++
			continue
		}
		records = append(records, record)
	}
	if report.Dropped > 0 {
		s.logger.Warn().
			Str("entity", string(entity)).
			Int("dropped", report.Dropped).
			Msg("dropped records failing schema validation")
	}

	result, err := s.loadEntity(ctx, entity, records)
	report.Result = result
	if err != nil {
		s.logger.Error().Err(err).Str("entity", string(entity)).Msg("load failed")
		report.Error = err.Error()
	}
	return report
}

func (s *Service) loadEntity(ctx context.Context, entity crm.Entity, records []map[string]any) (UpsertResult, error) {
	switch entity {
	case crm.EntityConsultants:
		rows := TransformConsultants(records)
		return BulkUpsert(ctx, s.loader, consultantSchema, consultantMapper{}, rows, "consultant")
	case crm.EntityCandidates:
		rows := TransformCandidates(records)
		return BulkUpsert(ctx, s.loader, candidateSchema, candidateMapper{}, rows, "candidate")
	case crm.EntityPositions:
		rows := TransformPositions(records)
		return BulkUpsert(ctx, s.loader, positionSchema, positionMapper{}, rows, "position")
	default:
		s.logger.Warn().Str("entity", string(entity)).Msg("unknown entity stream, skipping")
		return UpsertResult{}, nil
	}
}
