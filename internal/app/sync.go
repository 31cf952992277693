package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/talentsync/internal/cli"
	"horse.fit/talentsync/internal/crm"
	"horse.fit/talentsync/internal/etl"
)

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	entityFlag := fs.String("entity", "", "Comma-separated entity streams (consultants,candidates,positions); empty means all")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "sync does not accept positional arguments")
		return 2
	}

	entities, err := parseEntities(*entityFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid --entity: %v\n", err)
		return 2
	}

	ctx, cancel, cfg, logger, pool, err := connect(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	client, err := crm.NewClient(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build CRM client")
		fmt.Fprintf(os.Stderr, "Failed to build CRM client: %v\n", err)
		return 1
	}

	loader := etl.NewLoader(pool, logger)
	service := etl.NewService(client, loader, cfg, logger)

	summary := service.Sync(ctx, entities)
	if err := printJSON(summary); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}

	for _, report := range summary.Reports {
		if report.Error != "" {
			return 1
		}
	}
	return 0
}

func parseEntities(raw string) ([]crm.Entity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	known := map[string]crm.Entity{}
	for _, entity := range crm.Entities() {
		known[string(entity)] = entity
	}

	var entities []crm.Entity
	for _, part := range strings.Split(trimmed, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		entity, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown entity %q", name)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
