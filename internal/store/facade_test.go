package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/paddockdata/gridbase/internal/cache"
)

// memCache is an in-process cache.Cache for exercising the facade: a plain
// map plus a switch that simulates an unreachable backend.
type memCache struct {
	data map[string][]byte
	down bool
	sets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	if c.down {
		return nil, false
	}
	payload, ok := c.data[key]
	return payload, ok
}

func (c *memCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) {
	if c.down {
		return
	}
	c.data[key] = payload
	c.sets++
}

func (c *memCache) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		delete(c.data, k)
	}
}

func (c *memCache) DeletePattern(_ context.Context, pattern string) int {
	prefix := strings.TrimSuffix(pattern, "*")
	var n int
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

func (c *memCache) Stats(context.Context) cache.Stats { return cache.Stats{} }

func (c *memCache) Flush(context.Context) error {
	c.data = make(map[string][]byte)
	return nil
}

func (c *memCache) Close() error { return nil }

func newTestStore(t *testing.T) (*Store, *memCache) {
	t.Helper()
	db := newTestDB(t)
	mc := newMemCache()
	st := New(db, mc, TTLPolicy{Default: time.Hour, Results: time.Hour, Predictions: time.Minute})
	return st, mc
}

func seedRace(t *testing.T, st *Store, round int) int64 {
	t.Helper()
	race := &Race{Season: 2024, Round: round, Name: "Round Grand Prix", Country: "X", Location: "Y", Date: "2024-03-02"}
	if err := st.UpsertRace(context.Background(), race); err != nil {
		t.Fatalf("seed race %d: %v", round, err)
	}
	return race.ID
}

func TestWriteThenRead(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	raceID := seedRace(t, st, 1)
	results := []RaceResult{
		{DriverNumber: 1, Position: 1, Points: 25, GridPosition: 1, Status: "Finished"},
		{DriverNumber: 44, Position: 7, Points: 6, GridPosition: 9, Status: "Finished"},
	}
	if err := st.UpsertRaceResults(ctx, raceID, results); err != nil {
		t.Fatalf("upsert results: %v", err)
	}

	got, err := st.GetRaceResults(ctx, raceID)
	if err != nil {
		t.Fatalf("get results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Position != 1 || got[1].Position != 7 {
		t.Errorf("results out of position order: %+v", got)
	}
}

func TestTeamWriteThenRead(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Mercedes", "Ferrari", "Mercedes"} {
		if err := st.UpsertTeam(ctx, &Team{Name: name, Season: 2024}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	got, err := st.GetTeams(ctx, 2024)
	if err != nil {
		t.Fatalf("get teams: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d teams, want 2", len(got))
	}
	if got[0].Name != "Ferrari" || got[1].Name != "Mercedes" {
		t.Errorf("teams out of name order: %+v", got)
	}
}

func TestReadServesFromCache(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	seedRace(t, st, 1)

	first, err := st.GetRaces(ctx)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}

	// Change the row behind the facade's back: a cached second read must
	// not see it.
	if _, err := st.Engine().Upsert(ctx, "races", []interface{}{2024, 1, "Renamed Grand Prix", "X", "Y", "2024-03-02"}); err != nil {
		t.Fatalf("mutate engine: %v", err)
	}

	second, err := st.GetRaces(ctx)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second[0].Name != first[0].Name {
		t.Errorf("second read %q bypassed the cache", second[0].Name)
	}
}

func TestInvalidationIsScopedToTheWrittenRace(t *testing.T) {
	st, mc := newTestStore(t)
	ctx := context.Background()

	race1 := seedRace(t, st, 1)
	race2 := seedRace(t, st, 2)
	for _, id := range []int64{race1, race2} {
		if err := st.UpsertRaceResults(ctx, id, []RaceResult{{DriverNumber: 1, Position: 1, Points: 25, GridPosition: 1, Status: "Finished"}}); err != nil {
			t.Fatalf("seed results: %v", err)
		}
		if _, err := st.GetRaceResults(ctx, id); err != nil {
			t.Fatalf("warm cache: %v", err)
		}
	}

	key1 := cache.Key("race", race1, "results")
	key2 := cache.Key("race", race2, "results")
	if _, ok := mc.data[key1]; !ok {
		t.Fatalf("cache not warmed for %s", key1)
	}

	if err := st.UpsertRaceResults(ctx, race1, []RaceResult{{DriverNumber: 1, Position: 2, Points: 18, GridPosition: 1, Status: "Finished"}}); err != nil {
		t.Fatalf("rewrite race 1: %v", err)
	}

	if _, ok := mc.data[key1]; ok {
		t.Error("race 1 results still cached after its own write")
	}
	if _, ok := mc.data[key2]; !ok {
		t.Error("race 2 results evicted by a write to race 1")
	}
}

func TestFailedWriteLeavesCacheIntact(t *testing.T) {
	st, mc := newTestStore(t)
	ctx := context.Background()

	raceID := seedRace(t, st, 1)
	if err := st.UpsertRaceResults(ctx, raceID, []RaceResult{{DriverNumber: 1, Position: 1, Points: 25, GridPosition: 1, Status: "Finished"}}); err != nil {
		t.Fatalf("seed results: %v", err)
	}
	if _, err := st.GetRaceResults(ctx, raceID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	key := cache.Key("race", raceID, "results")

	// A session write against a missing race rolls back; nothing may be
	// evicted.
	if err := st.UpsertSession(ctx, &Session{RaceID: 9999, Type: "R", Date: "2024-03-02"}); err == nil {
		t.Fatal("write against missing race succeeded")
	}
	if _, ok := mc.data[key]; !ok {
		t.Error("failed write evicted cached results")
	}
}

func TestCacheOutageDegradesToEngineReads(t *testing.T) {
	st, mc := newTestStore(t)
	ctx := context.Background()
	seedRace(t, st, 1)

	mc.down = true
	races, err := st.GetRaces(ctx)
	if err != nil {
		t.Fatalf("read with cache down: %v", err)
	}
	if len(races) != 1 {
		t.Errorf("got %d races, want 1", len(races))
	}
}

func TestCorruptCachePayloadFallsThrough(t *testing.T) {
	st, mc := newTestStore(t)
	ctx := context.Background()
	seedRace(t, st, 1)

	mc.data[cache.Key("races", "all")] = []byte("not json")
	races, err := st.GetRaces(ctx)
	if err != nil {
		t.Fatalf("read with corrupt payload: %v", err)
	}
	if len(races) != 1 {
		t.Errorf("got %d races, want 1", len(races))
	}
}

func TestGetRaceNotFound(t *testing.T) {
	st, _ := newTestStore(t)
	_, err := st.GetRace(context.Background(), 2024, 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMissingDriverJoinYieldsEmptyName(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	raceID := seedRace(t, st, 1)
	if err := st.UpsertDriver(ctx, &Driver{Number: 1, Code: "VER", FullName: "Max Verstappen", TeamName: "Red Bull Racing", Season: 2024}); err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	results := []RaceResult{
		{DriverNumber: 1, Position: 1, Points: 25, GridPosition: 1, Status: "Finished"},
		{DriverNumber: 99, Position: 2, Points: 18, GridPosition: 2, Status: "Finished"}, // not on the roster
	}
	if err := st.UpsertRaceResults(ctx, raceID, results); err != nil {
		t.Fatalf("upsert results: %v", err)
	}

	got, err := st.GetRaceResults(ctx, raceID)
	if err != nil {
		t.Fatalf("get results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want both rows", len(got))
	}
	if got[0].DriverName != "Max Verstappen" {
		t.Errorf("known driver name = %q", got[0].DriverName)
	}
	if got[1].DriverName != "" {
		t.Errorf("unknown driver name = %q, want empty", got[1].DriverName)
	}
}

func TestReadQueryRejectsWrites(t *testing.T) {
	st, _ := newTestStore(t)
	if _, err := st.ReadQuery(context.Background(), "DELETE FROM races"); err == nil {
		t.Fatal("DELETE accepted as a read query")
	}
}

func TestReadQueryCachesByStatement(t *testing.T) {
	st, mc := newTestStore(t)
	ctx := context.Background()
	seedRace(t, st, 1)

	rs, err := st.ReadQuery(ctx, "SELECT name FROM races WHERE season = ?", 2024)
	if err != nil {
		t.Fatalf("read query: %v", err)
	}
	if rs.Len() != 1 {
		t.Fatalf("got %d rows, want 1", rs.Len())
	}
	setsBefore := mc.sets
	if _, err := st.ReadQuery(ctx, "SELECT name FROM races WHERE season = ?", 2024); err != nil {
		t.Fatalf("repeat read query: %v", err)
	}
	if mc.sets != setsBefore {
		t.Error("repeat of the same query re-populated the cache instead of hitting it")
	}
}

func TestInsertPredictionInvalidatesOnlyPredictions(t *testing.T) {
	st, mc := newTestStore(t)
	ctx := context.Background()

	raceID := seedRace(t, st, 1)
	if err := st.UpsertRaceResults(ctx, raceID, []RaceResult{{DriverNumber: 1, Position: 1, Points: 25, GridPosition: 1, Status: "Finished"}}); err != nil {
		t.Fatalf("seed results: %v", err)
	}
	if _, err := st.GetRaceResults(ctx, raceID); err != nil {
		t.Fatalf("warm results: %v", err)
	}
	if _, err := st.GetPredictions(ctx, raceID, "R"); err != nil {
		t.Fatalf("warm predictions: %v", err)
	}

	p := &Prediction{RaceID: raceID, SessionType: "R", DriverNumber: 1, ModelName: "gbm-v2", PredictedPosition: 1, Confidence: 0.9, Features: "{}", CreatedAt: "2024-03-01T10:00:00Z"}
	if err := st.InsertPrediction(ctx, p); err != nil {
		t.Fatalf("insert prediction: %v", err)
	}

	if _, ok := mc.data[cache.Key("race", raceID, "predictions", "R")]; ok {
		t.Error("prediction cache not invalidated")
	}
	if _, ok := mc.data[cache.Key("race", raceID, "results")]; !ok {
		t.Error("results cache evicted by a prediction write")
	}
}
