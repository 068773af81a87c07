package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paddockdata/gridbase/internal/tabular"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.InitializeSchema(ctx); err != nil {
		t.Fatalf("initialize schema: %v", err)
	}
	if err := db.ApplyMigrations(ctx); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestInitializeSchemaIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := db.InitializeSchema(ctx); err != nil {
			t.Fatalf("initialize schema, pass %d: %v", i+1, err)
		}
	}
}

func TestApplyMigrationsNoOpWhenCurrent(t *testing.T) {
	db := newTestDB(t)
	if err := db.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}
	version, dirty, err := db.MigrationVersion()
	if err != nil {
		t.Fatalf("migration version: %v", err)
	}
	if dirty {
		t.Error("migration state is dirty")
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestUpsertDedupesOnNaturalKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id1, err := db.Upsert(ctx, "drivers", []interface{}{44, "HAM", "Lewis Hamilton", "Mercedes", 2024})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	id2, err := db.Upsert(ctx, "drivers", []interface{}{44, "HAM", "Lewis Hamilton", "Ferrari", 2024})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}

	n, err := db.RowCount(ctx, "drivers")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}

	rs, err := db.Query(ctx, "SELECT team_name FROM drivers WHERE number = ? AND season = ?", 44, 2024)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := rs.Rows[0][0].Text; got != "Ferrari" {
		t.Errorf("team = %q, want the updated value", got)
	}
}

func TestUpsertDifferentSeasonsAreDistinctDrivers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id1, err := db.Upsert(ctx, "drivers", []interface{}{44, "HAM", "Lewis Hamilton", "Mercedes", 2024})
	if err != nil {
		t.Fatalf("upsert 2024: %v", err)
	}
	id2, err := db.Upsert(ctx, "drivers", []interface{}{44, "HAM", "Lewis Hamilton", "Ferrari", 2025})
	if err != nil {
		t.Fatalf("upsert 2025: %v", err)
	}
	if id1 == id2 {
		t.Error("seasons collapsed into one row")
	}
}

func TestUpsertTeamsDedupesOnFullKey(t *testing.T) {
	// Every teams column is part of the natural key, so a duplicate insert
	// has nothing to update and must resolve to the stored row's id.
	db := newTestDB(t)
	ctx := context.Background()

	id1, err := db.Upsert(ctx, "teams", []interface{}{"Mercedes", 2024})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	id2, err := db.Upsert(ctx, "teams", []interface{}{"Mercedes", 2024})
	if err != nil {
		t.Fatalf("duplicate upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}

	if _, err := db.Upsert(ctx, "teams", []interface{}{"Mercedes", 2025}); err != nil {
		t.Fatalf("next season upsert: %v", err)
	}
	n, err := db.RowCount(ctx, "teams")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("row count = %d, want 2", n)
	}
}

func TestUpsertImmutableKeepsFirstWrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	raceID, err := db.Upsert(ctx, "races", []interface{}{2024, 1, "Bahrain Grand Prix", "Bahrain", "Sakhir", "2024-03-02"})
	if err != nil {
		t.Fatalf("seed race: %v", err)
	}

	row := []interface{}{raceID, "R", 1, "gbm-v2", 1, 92.5, 0.87, 0.99, "{}", nil, "2024-03-01T10:00:00Z"}
	id1, err := db.Upsert(ctx, "predictions", row)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Same key with a different confidence: the stored row must win.
	dup := []interface{}{raceID, "R", 1, "gbm-v2", 5, 99.9, 0.01, 0.01, "{}", nil, "2024-03-01T10:00:00Z"}
	id2, err := db.Upsert(ctx, "predictions", dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}

	rs, err := db.Query(ctx, "SELECT confidence FROM predictions WHERE id = ?", id1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := rs.Rows[0][0].Number; got != 0.87 {
		t.Errorf("confidence = %v, want the original 0.87", got)
	}
}

func TestUpsertForeignKeyViolation(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Upsert(context.Background(), "sessions", []interface{}{int64(9999), "R", "2024-03-02", nil, nil, nil})
	if err == nil {
		t.Fatal("upsert against a missing race succeeded")
	}
	if !errors.Is(err, ErrConstraint) {
		t.Errorf("error %v does not match ErrConstraint", err)
	}

	var txErr *TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("error %v is not a TxError", err)
	}
	if txErr.Entity != "sessions" {
		t.Errorf("entity = %q, want sessions", txErr.Entity)
	}
	// The message names the natural key, never full column values.
	if !strings.Contains(txErr.Key, "9999") {
		t.Errorf("key %q does not identify the row", txErr.Key)
	}
	if strings.Contains(err.Error(), "2024-03-02") {
		t.Errorf("error %q leaks non-key column values", err.Error())
	}
}

func TestUpsertBatchRollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	raceID, err := db.Upsert(ctx, "races", []interface{}{2024, 1, "Bahrain Grand Prix", "Bahrain", "Sakhir", "2024-03-02"})
	if err != nil {
		t.Fatalf("seed race: %v", err)
	}

	rows := [][]interface{}{
		{raceID, "R", "2024-03-02", nil, nil, nil},
		{int64(9999), "Q", "2024-03-01", nil, nil, nil}, // bad race id
	}
	if err := db.UpsertBatch(ctx, "sessions", rows); err == nil {
		t.Fatal("batch with a bad row succeeded")
	}

	n, err := db.RowCount(ctx, "sessions")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("sessions rows = %d after rollback, want 0", n)
	}
}

func TestQueryReturnsTypedCells(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	raceID, err := db.Upsert(ctx, "races", []interface{}{2024, 1, "Bahrain Grand Prix", "Bahrain", "Sakhir", "2024-03-02"})
	if err != nil {
		t.Fatalf("seed race: %v", err)
	}
	if _, err := db.Upsert(ctx, "race_results", []interface{}{raceID, 44, 7, 6.0, 9, "Finished", nil}); err != nil {
		t.Fatalf("seed result: %v", err)
	}

	rs, err := db.Query(ctx, "SELECT driver_number, points, status, fastest_lap_time FROM race_results WHERE race_id = ?", raceID)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	row := rs.Rows[0]
	if row[0].Kind != tabular.Number || row[0].Number != 44 {
		t.Errorf("driver_number = %+v, want number 44", row[0])
	}
	if row[1].Kind != tabular.Number || row[1].Number != 6.0 {
		t.Errorf("points = %+v, want number 6", row[1])
	}
	if row[2].Kind != tabular.Text || row[2].Text != "Finished" {
		t.Errorf("status = %+v, want text Finished", row[2])
	}
	if row[3].Kind != tabular.Null {
		t.Errorf("fastest_lap_time = %+v, want null", row[3])
	}
}

func TestRebindDollar(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"a = ?", "a = $1"},
		{"a = ? AND b = ?", "a = $1 AND b = $2"},
		{"a = '?' AND b = ?", "a = '?' AND b = $1"},
	}
	for _, c := range cases {
		if got := rebindDollar(c.in); got != c.want {
			t.Errorf("rebindDollar(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUpsertSQLShape(t *testing.T) {
	table, ok := TableByName("drivers")
	if !ok {
		t.Fatal("drivers missing from registry")
	}
	sql := table.upsertSQL()
	for _, want := range []string{
		"INSERT INTO drivers",
		"ON CONFLICT (number, season)",
		"DO UPDATE SET",
		"code = EXCLUDED.code",
		"RETURNING id",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("upsert sql %q missing %q", sql, want)
		}
	}

	pred, _ := TableByName("predictions")
	if sql := pred.upsertSQL(); !strings.Contains(sql, "DO NOTHING") {
		t.Errorf("predictions upsert %q should conflict to DO NOTHING", sql)
	}

	// teams has no non-key columns; an empty SET list would be a syntax
	// error on both engines.
	teams, _ := TableByName("teams")
	if sql := teams.upsertSQL(); !strings.Contains(sql, "DO NOTHING") {
		t.Errorf("teams upsert %q should conflict to DO NOTHING", sql)
	}
}

func TestSelectAllSQLExcludesSurrogateID(t *testing.T) {
	for _, table := range Tables {
		sql := table.SelectAllSQL()
		if strings.Contains(sql, "SELECT id") {
			t.Errorf("%s: %q includes the surrogate id", table.Name, sql)
		}
		if !strings.Contains(sql, "ORDER BY") {
			t.Errorf("%s: %q has no stable order", table.Name, sql)
		}
	}
}
