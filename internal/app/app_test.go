package app

import (
	"testing"

	"horse.fit/talentsync/internal/crm"
	"horse.fit/talentsync/internal/embeddings"
)

func TestParseEntities(t *testing.T) {
	t.Parallel()

	entities, err := parseEntities("")
	if err != nil || entities != nil {
		t.Fatalf("empty input should mean all streams, got %v, %v", entities, err)
	}

	entities, err = parseEntities(" Candidates, positions ")
	if err != nil {
		t.Fatalf("parseEntities: %v", err)
	}
	if len(entities) != 2 || entities[0] != crm.EntityCandidates || entities[1] != crm.EntityPositions {
		t.Fatalf("unexpected entities: %v", entities)
	}

	if _, err := parseEntities("candidates,invoices"); err == nil {
		t.Fatalf("expected error for unknown entity")
	}
}

func TestParseEmbedTargets(t *testing.T) {
	t.Parallel()

	targets, err := parseEmbedTargets("all")
	if err != nil || len(targets) != 2 {
		t.Fatalf("expected both targets for all, got %v, %v", targets, err)
	}

	targets, err = parseEmbedTargets("Positions")
	if err != nil || len(targets) != 1 || targets[0] != embeddings.TargetPositions {
		t.Fatalf("unexpected targets: %v, %v", targets, err)
	}

	if _, err := parseEmbedTargets("matches"); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if code := Run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if code := Run(nil); code != 2 {
		t.Fatalf("expected exit code 2 for missing command, got %d", code)
	}
	if code := Run([]string{"help"}); code != 0 {
		t.Fatalf("expected exit code 0 for help, got %d", code)
	}
}
