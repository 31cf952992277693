package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/talentsync/internal/cli"
	"horse.fit/talentsync/internal/crm"
	"horse.fit/talentsync/internal/embeddings"
	"horse.fit/talentsync/internal/etl"
	"horse.fit/talentsync/internal/matching"
)

// runProcess chains the three pipeline stages. A failed stage stops the run;
// partial progress from earlier stages is kept.
func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 45*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel, cfg, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	crmClient, err := crm.NewClient(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build CRM client: %v\n", err)
		return 1
	}
	embedClient, err := embeddings.NewClient(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build embedding client: %v\n", err)
		return 1
	}

	service := etl.NewService(crmClient, etl.NewLoader(pool, logger), cfg, logger)
	backfiller := embeddings.NewBackfiller(pool, embedClient, cfg, logger)
	engine := matching.NewEngine(pool, cfg, logger)

	syncSummary := service.Sync(ctx, nil)
	for _, report := range syncSummary.Reports {
		if report.Error != "" {
			logger.Error().Str("entity", report.Entity).Str("error", report.Error).Msg("sync stage failed")
			fmt.Fprintf(os.Stderr, "Sync failed for %s: %s\n", report.Entity, report.Error)
			return 1
		}
	}
	logger.Info().
		Int("streams", len(syncSummary.Reports)).
		Float64("duration_seconds", syncSummary.DurationSeconds).
		Msg("process stage complete: sync")

	for _, target := range []embeddings.Target{embeddings.TargetCandidates, embeddings.TargetPositions} {
		result, err := backfiller.Backfill(ctx, target)
		if err != nil {
			logger.Error().Err(err).Str("target", string(target)).Msg("embed stage failed")
			fmt.Fprintf(os.Stderr, "Embedding backfill failed for %s: %v\n", target, err)
			return 1
		}
		logger.Info().
			Str("target", string(target)).
			Int("processed", result.Processed).
			Int64("updated", result.Updated).
			Int("errors", result.Errors).
			Msg("process stage complete: embed")
	}

	matchSummary, err := engine.Run(ctx, matching.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("match stage failed")
		fmt.Fprintf(os.Stderr, "Matching run failed: %v\n", err)
		return 1
	}
	logger.Info().
		Int("positions_processed", matchSummary.PositionsProcessed).
		Int("total_matches", matchSummary.TotalMatches).
		Float64("duration_seconds", matchSummary.DurationSeconds).
		Msg("process stage complete: match")

	fmt.Println("ok: sync, embed and match completed")
	return 0
}
