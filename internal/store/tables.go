package store

import (
	"fmt"
	"strings"
)

// Table describes one entity table: its columns (surrogate id excluded), the
// natural-key columns used for upsert conflict resolution and stable
// ordering, and whether a conflicting insert updates the row or is dropped.
// The same metadata drives the typed upserts, the engine-to-engine copier
// and verification, so the two backends cannot drift apart.
type Table struct {
	Name string
	// Columns in insert order, excluding the surrogate id.
	Columns []string
	// NaturalKey is the unique column set upserts conflict on. It is also
	// the ORDER BY used whenever stable row order matters.
	NaturalKey []string
	// Immutable rows conflict to DO NOTHING instead of DO UPDATE.
	Immutable bool
}

// Tables lists every entity table in foreign-key dependency order: parents
// before children, so a full copy in this order always satisfies references
// at write time.
var Tables = []Table{
	{
		Name:       "teams",
		Columns:    []string{"name", "season"},
		NaturalKey: []string{"name", "season"},
	},
	{
		Name:       "drivers",
		Columns:    []string{"number", "code", "full_name", "team_name", "season"},
		NaturalKey: []string{"number", "season"},
	},
	{
		Name:       "races",
		Columns:    []string{"season", "round", "name", "country", "location", "date"},
		NaturalKey: []string{"season", "round"},
	},
	{
		Name:       "sessions",
		Columns:    []string{"race_id", "type", "date", "weather", "track_temp", "air_temp"},
		NaturalKey: []string{"race_id", "type"},
	},
	{
		Name:       "qualifying_results",
		Columns:    []string{"race_id", "driver_number", "position", "q1_time", "q2_time", "q3_time"},
		NaturalKey: []string{"race_id", "driver_number"},
	},
	{
		Name:       "sprint_results",
		Columns:    []string{"race_id", "driver_number", "position", "points", "status"},
		NaturalKey: []string{"race_id", "driver_number"},
	},
	{
		Name:       "race_results",
		Columns:    []string{"race_id", "driver_number", "position", "points", "grid_position", "status", "fastest_lap_time"},
		NaturalKey: []string{"race_id", "driver_number"},
	},
	{
		Name: "aggregated_laps",
		Columns: []string{
			"race_id", "session_type", "driver_number", "lap_number", "lap_time",
			"sector1_time", "sector2_time", "sector3_time", "compound", "tyre_life",
			"track_status", "is_personal_best",
		},
		NaturalKey: []string{"race_id", "session_type", "driver_number", "lap_number"},
	},
	{
		Name: "tyre_stints",
		Columns: []string{
			"race_id", "session_type", "driver_number", "compound", "stint_number",
			"lap_count", "avg_lap_time", "best_lap_time", "degradation_slope",
		},
		NaturalKey: []string{"race_id", "session_type", "driver_number", "stint_number"},
	},
	{
		Name: "predictions",
		Columns: []string{
			"race_id", "session_type", "driver_number", "model_name",
			"predicted_position", "predicted_time", "confidence", "top10_probability",
			"features_json", "explanation_json", "created_at",
		},
		NaturalKey: []string{"race_id", "session_type", "driver_number", "model_name", "created_at"},
		Immutable:  true,
	},
}

// TableByName looks a table up in the registry.
func TableByName(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// upsertSQL builds the insert-or-update statement for a table, using `?`
// placeholders; the dialect rebinds them. Mutable tables update every
// non-key column from the incoming row. Immutable tables, and tables whose
// every column is part of the natural key, keep the first write.
func (t Table) upsertSQL() string {
	placeholders := strings.TrimRight(strings.Repeat("?, ", len(t.Columns)), ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		t.Name,
		strings.Join(t.Columns, ", "),
		placeholders,
		strings.Join(t.NaturalKey, ", "),
	)
	if t.conflictDoesNothing() {
		b.WriteString("DO NOTHING RETURNING id")
		return b.String()
	}

	b.WriteString("DO UPDATE SET ")
	first := true
	for _, col := range t.Columns {
		if t.isKeyColumn(col) {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", col, col)
		first = false
	}
	b.WriteString(" RETURNING id")
	return b.String()
}

// selectByKeySQL fetches the surrogate id for a natural key; used when a
// DO NOTHING upsert conflicts and RETURNING yields no row.
func (t Table) selectByKeySQL() string {
	conds := make([]string, len(t.NaturalKey))
	for i, col := range t.NaturalKey {
		conds[i] = col + " = ?"
	}
	return fmt.Sprintf("SELECT id FROM %s WHERE %s", t.Name, strings.Join(conds, " AND "))
}

// SelectAllSQL reads every row in natural-key order, surrogate id excluded
// so copies between engines never fight over id sequences.
func (t Table) SelectAllSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(t.Columns, ", "), t.Name, strings.Join(t.NaturalKey, ", "))
}

// conflictDoesNothing reports whether a conflicting insert keeps the stored
// row: either the table is declared immutable, or every column belongs to
// the natural key and there is nothing to update.
func (t Table) conflictDoesNothing() bool {
	if t.Immutable {
		return true
	}
	for _, col := range t.Columns {
		if !t.isKeyColumn(col) {
			return false
		}
	}
	return true
}

func (t Table) isKeyColumn(col string) bool {
	for _, k := range t.NaturalKey {
		if k == col {
			return true
		}
	}
	return false
}

// KeyString renders a natural key for error messages, pairing key columns
// with their values from a row in Columns order.
func (t Table) KeyString(rowValues []interface{}) string {
	parts := make([]string, 0, len(t.NaturalKey))
	for i, col := range t.Columns {
		if !t.isKeyColumn(col) {
			continue
		}
		if i < len(rowValues) {
			parts = append(parts, fmt.Sprintf("%s=%v", col, rowValues[i]))
		}
	}
	return strings.Join(parts, " ")
}
