package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/talentsync/internal/cli"
	"horse.fit/talentsync/internal/embeddings"
)

func runEmbed(args []string) int {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	targetFlag := fs.String("target", "all", "Embedding target: candidates, positions or all")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	targets, err := parseEmbedTargets(*targetFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --target: %v\n", err)
		return 2
	}

	ctx, cancel, cfg, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	client, err := embeddings.NewClient(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build embedding client")
		fmt.Fprintf(os.Stderr, "Failed to build embedding client: %v\n", err)
		return 1
	}
	backfiller := embeddings.NewBackfiller(pool, client, cfg, logger)

	results := map[string]embeddings.BackfillResult{}
	failed := false
	for _, target := range targets {
		result, err := backfiller.Backfill(ctx, target)
		if err != nil {
			logger.Error().Err(err).Str("target", string(target)).Msg("embedding backfill failed")
			fmt.Fprintf(os.Stderr, "Backfill failed for %s: %v\n", target, err)
			failed = true
			continue
		}
		results[string(target)] = result
	}

	if err := printJSON(results); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	if failed {
		return 1
	}
	return 0
}

func parseEmbedTargets(raw string) ([]embeddings.Target, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return []embeddings.Target{embeddings.TargetCandidates, embeddings.TargetPositions}, nil
	case "candidates":
		return []embeddings.Target{embeddings.TargetCandidates}, nil
	case "positions":
		return []embeddings.Target{embeddings.TargetPositions}, nil
	default:
		return nil, fmt.Errorf("must be candidates, positions or all")
	}
}
