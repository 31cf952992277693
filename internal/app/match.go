package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/talentsync/internal/cli"
	"horse.fit/talentsync/internal/matching"
)

func runMatch(args []string) int {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	positionID := fs.Int64("position-id", 0, "Match a single position instead of all open positions")
	minScore := fs.Int("min-score", -1, "Override the minimum overall score (0-100)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *positionID < 0 {
		fmt.Fprintln(os.Stderr, "--position-id must be a positive integer")
		return 2
	}
	if *minScore > 100 {
		fmt.Fprintln(os.Stderr, "--min-score must be between 0 and 100")
		return 2
	}

	ctx, cancel, cfg, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	opts := matching.Options{}
	if *positionID > 0 {
		opts.PositionID = positionID
	}
	if *minScore >= 0 {
		opts.MinScore = minScore
	}

	engine := matching.NewEngine(pool, cfg, logger)
	summary, err := engine.Run(ctx, opts)
	if err != nil {
		logger.Error().Err(err).Msg("matching run failed")
		fmt.Fprintf(os.Stderr, "Matching run failed: %v\n", err)
		return 1
	}

	if err := printJSON(summary); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
