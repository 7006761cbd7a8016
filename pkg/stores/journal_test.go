package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/desktide/desktide/pkg/engine"
	"github.com/desktide/desktide/pkg/resource"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	journal, err := NewJournal(Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	if err := journal.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func sampleReport(runID string) *engine.RunReport {
	started := time.Now().Add(-time.Minute)
	return &engine.RunReport{
		RunID:       runID,
		PlanID:      "plan-" + runID,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Outcomes: []engine.Outcome{
			{
				ResourceID:  "git",
				Kind:        resource.KindPackage,
				Status:      engine.OutcomeApplied,
				StartedAt:   started,
				CompletedAt: started.Add(10 * time.Second),
				Attempts:    1,
			},
			{
				ResourceID:  "theme",
				Kind:        resource.KindPreferenceSet,
				Status:      engine.OutcomeSkipped,
				Reason:      "already satisfied",
				StartedAt:   started.Add(10 * time.Second),
				CompletedAt: started.Add(11 * time.Second),
			},
		},
		Summary: engine.Summary{Total: 2, Applied: 1, Skipped: 1},
		Flags:   []engine.AdvisoryFlag{engine.FlagRebootRecommended},
	}
}

func TestJournal_SaveAndGet(t *testing.T) {
	journal := testJournal(t)
	ctx := context.Background()

	if err := journal.SaveReport(ctx, "/etc/desktide.yaml", sampleReport("run-1")); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	run, outcomes, err := journal.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.PlanID != "plan-run-1" {
		t.Errorf("Unexpected plan id: %s", run.PlanID)
	}
	if run.Applied != 1 || run.Skipped != 1 || run.Failed != 0 {
		t.Errorf("Unexpected counts: %+v", run)
	}
	if run.ConfigPath != "/etc/desktide.yaml" {
		t.Errorf("Unexpected config path: %s", run.ConfigPath)
	}

	if len(outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].ResourceID != "git" || outcomes[0].Status != "applied" {
		t.Errorf("Unexpected first outcome: %+v", outcomes[0])
	}
	if outcomes[1].Reason != "already satisfied" {
		t.Errorf("Unexpected second outcome reason: %s", outcomes[1].Reason)
	}
}

func TestJournal_ListRunsNewestFirst(t *testing.T) {
	journal := testJournal(t)
	ctx := context.Background()

	older := sampleReport("run-old")
	older.StartedAt = time.Now().Add(-2 * time.Hour)
	newer := sampleReport("run-new")

	if err := journal.SaveReport(ctx, "a.yaml", older); err != nil {
		t.Fatal(err)
	}
	if err := journal.SaveReport(ctx, "b.yaml", newer); err != nil {
		t.Fatal(err)
	}

	runs, err := journal.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-old" {
		t.Errorf("Expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestJournal_FatalRunRecorded(t *testing.T) {
	journal := testJournal(t)
	ctx := context.Background()

	report := sampleReport("run-fatal")
	report.Outcomes[0].Status = engine.OutcomeFailed
	report.Summary = engine.Summary{Total: 1, Failed: 1}
	report.FatalFailure = &report.Outcomes[0]

	if err := journal.SaveReport(ctx, "c.yaml", report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	run, _, err := journal.GetRun(ctx, "run-fatal")
	if err != nil {
		t.Fatal(err)
	}
	if run.FatalResource == nil || *run.FatalResource != "git" {
		t.Errorf("Expected fatal resource git, got %v", run.FatalResource)
	}
}

func TestJournal_GetRunNotFound(t *testing.T) {
	journal := testJournal(t)

	_, _, err := journal.GetRun(context.Background(), "nope")
	if err == nil {
		t.Fatal("Expected error for unknown run")
	}
}

func TestJournal_ConnectionSettingsHonored(t *testing.T) {
	journal, err := NewJournal(Config{
		Path:            filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	if journal.config.MaxOpenConns != 2 || journal.config.MaxIdleConns != 2 {
		t.Errorf("Connection settings not kept: %+v", journal.config)
	}

	ctx := context.Background()
	if err := journal.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() { _ = journal.Close() }()

	if err := journal.SaveReport(ctx, "d.yaml", sampleReport("run-conns")); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if _, _, err := journal.GetRun(ctx, "run-conns"); err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
}

func TestJournal_DefaultsToSingleConnection(t *testing.T) {
	journal, err := NewJournal(Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatal(err)
	}
	if journal.config.MaxOpenConns != 1 || journal.config.MaxIdleConns != 1 {
		t.Errorf("Expected single-connection defaults, got %+v", journal.config)
	}
}

func TestJournal_InitIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 2; i++ {
		journal, err := NewJournal(Config{Path: path})
		if err != nil {
			t.Fatal(err)
		}
		if err := journal.Init(context.Background()); err != nil {
			t.Fatalf("Init run %d failed: %v", i, err)
		}
		_ = journal.Close()
	}
}
