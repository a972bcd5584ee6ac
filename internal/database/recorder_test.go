package database

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/gamedata"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

func recorderTestData(t *testing.T) *gamedata.Data {
	t.Helper()
	data, err := gamedata.Build(&gamedata.DataFile{
		Monsters: []gamedata.Monster{{ID: 1, Name: "Chicken"}, {ID: 2, Name: "Cow"}},
		Dungeons: []gamedata.Dungeon{{ID: 0, Name: "Barn", Monsters: []int{1, 2}}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return data
}

func testSummary(data *gamedata.Data, runID string) simulation.Summary {
	table := simulation.NewTable(data)
	chicken := table.Monsters[1]
	chicken.SimSuccess = true
	chicken.Reason = ""
	chicken.KillTimeS = 4
	chicken.LowestHitpoints = 80

	dungeon := table.Dungeons[0]
	dungeon.Reason = "too many actions"

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return simulation.Summary{
		RunID:      runID,
		Scope:      simulation.All,
		Jobs:       2,
		Completed:  2,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Player:     combat.Player{Levels: map[string]int{"Hitpoints": 10}},
		Options:    combat.Options{Trials: 100},
		Table:      table,
	}
}

func TestRunFromSummary(t *testing.T) {
	data := recorderTestData(t)
	run, results, err := RunFromSummary(data, testSummary(data, "run-1"), "fp", "")
	if err != nil {
		t.Fatalf("RunFromSummary failed: %v", err)
	}

	if run.Key != "run-1" || run.Scope != "all" || run.Fingerprint != "fp" || run.Jobs != 2 {
		t.Errorf("run = %+v", run)
	}
	if !strings.Contains(run.Settings, "trials: 100") {
		t.Errorf("settings snapshot missing options: %q", run.Settings)
	}

	// Cow was never simulated
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Name != "Chicken" || !results[0].SimSuccess {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Kind != simulation.KindDungeon || results[1].Reason != "too many actions" {
		t.Errorf("results[1] = %+v", results[1])
	}

	var metrics map[string]*float64
	if err := json.Unmarshal([]byte(results[0].Metrics), &metrics); err != nil {
		t.Fatalf("metrics not JSON: %v", err)
	}
	if v := metrics["kill_time_s"]; v == nil || *v != 4 {
		t.Errorf("kill_time_s = %v, want 4", v)
	}
	// Dungeon has no hitpoints floor, stored as null
	var dungeonMetrics map[string]*float64
	json.Unmarshal([]byte(results[1].Metrics), &dungeonMetrics)
	if dungeonMetrics["lowest_hitpoints"] != nil {
		t.Error("Expected null lowest_hitpoints for an unsimulated dungeon")
	}
}

func TestRecorderSavesAndPrunes(t *testing.T) {
	db := setupTestDB(t)
	data := recorderTestData(t)

	rec := NewRecorder(db, data, RecorderOptions{
		Fingerprint: func() string { return "fp" },
		Settings:    func() string { return "economy: {}\n" },
		Keep:        2,
	})
	for _, id := range []string{"a", "b", "c"} {
		rec.Complete(testSummary(data, id))
	}
	rec.Close()
	rec.Close()

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	run, err := db.GetRun(runs[0].Key)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Settings != "economy: {}\n" || run.Fingerprint != "fp" {
		t.Errorf("run = %+v", run)
	}
	results, _ := db.GetRunResults(run.ID)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}
