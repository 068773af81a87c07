// Package migratetool copies a full dataset from one persistence engine to
// another and verifies the result. It is built for the one-shot move from a
// development SQLite file to a production PostgreSQL database, but either
// engine can sit on either side.
package migratetool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/paddockdata/gridbase/internal/monitoring"
	"github.com/paddockdata/gridbase/internal/store"
	"github.com/paddockdata/gridbase/internal/tabular"
)

// Phase is where a run currently stands. Runs move strictly forward:
// Idle, ReadingSource, WritingTarget, Verifying, then Done or Failed.
type Phase int

const (
	Idle Phase = iota
	ReadingSource
	WritingTarget
	Verifying
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ReadingSource:
		return "reading_source"
	case WritingTarget:
		return "writing_target"
	case Verifying:
		return "verifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// RowFailure records one source row the target refused, identified by its
// natural key. Column values are deliberately left out of the report.
type RowFailure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// TableReport is the per-table outcome of a run.
type TableReport struct {
	Table string `json:"table"`
	// Error is set when the table could not be read or counted at all, as
	// opposed to individual rows failing.
	Error          string       `json:"error,omitempty"`
	SourceRows     int64        `json:"source_rows"`
	TargetRows     int64        `json:"target_rows"`
	Copied         int64        `json:"copied"`
	Failures       []RowFailure `json:"failures,omitempty"`
	SourceChecksum string       `json:"source_checksum,omitempty"`
	TargetChecksum string       `json:"target_checksum,omitempty"`
	CountMatch     bool         `json:"count_match"`
	ChecksumMatch  bool         `json:"checksum_match"`
}

// Report is the full outcome of one run.
type Report struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"`
	Target     string        `json:"target"`
	Started    time.Time     `json:"started"`
	Finished   time.Time     `json:"finished"`
	Phase      string        `json:"phase"`
	Tables     []TableReport `json:"tables"`
	RowsCopied int64         `json:"rows_copied"`
	RowsFailed int64         `json:"rows_failed"`
	Verified   bool          `json:"verified"`
}

// Mismatched reports whether verification found any table where the two
// engines disagree on row count or checksum.
func (r *Report) Mismatched() bool {
	for _, t := range r.Tables {
		if !t.CountMatch || !t.ChecksumMatch {
			return true
		}
	}
	return false
}

// CopyFailed reports whether any row or whole table failed to copy.
func (r *Report) CopyFailed() bool {
	if r.RowsFailed > 0 {
		return true
	}
	for _, t := range r.Tables {
		if t.Error != "" {
			return true
		}
	}
	return false
}

// Migrator drives one copy-and-verify run between two open engines.
type Migrator struct {
	Source store.Engine
	Target store.Engine
	// Checksum enables content verification on top of row counts. It reads
	// every table back from both engines, so it costs a second full scan.
	Checksum bool

	phase Phase
}

// Phase reports the current run phase.
func (m *Migrator) Phase() Phase { return m.phase }

// Run copies every registered table from source to target in dependency
// order and verifies the result. Failures are collected per row and per
// table rather than aborting the run, so one bad table never blocks the
// rest; only a target that cannot be prepared aborts. A run with any copy
// failure still verifies what it could, but ends in the failed phase.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	report := m.newReport()

	if err := m.Target.InitializeSchema(ctx); err != nil {
		return m.fail(report, fmt.Errorf("prepare target schema: %w", err))
	}
	if err := m.Target.ApplyMigrations(ctx); err != nil {
		return m.fail(report, fmt.Errorf("prepare target schema: %w", err))
	}

	for _, table := range store.Tables {
		tr := m.copyTable(ctx, table)
		report.Tables = append(report.Tables, tr)
		report.RowsCopied += tr.Copied
		report.RowsFailed += int64(len(tr.Failures))
		if tr.Error != "" {
			monitoring.Logf("[%s] %s: table failed: %s", report.RunID, table.Name, tr.Error)
			continue
		}
		monitoring.Logf("[%s] %s: copied %d of %d rows (%d failed)",
			report.RunID, table.Name, tr.Copied, tr.SourceRows, len(tr.Failures))
	}

	m.verify(ctx, report)

	m.phase = Done
	if report.CopyFailed() {
		m.phase = Failed
	}
	report.Phase = m.phase.String()
	report.Finished = time.Now().UTC()
	return report, nil
}

// Verify checks an already-migrated target against the source without
// copying anything.
func (m *Migrator) Verify(ctx context.Context) (*Report, error) {
	report := m.newReport()
	for _, table := range store.Tables {
		report.Tables = append(report.Tables, TableReport{Table: table.Name})
	}
	m.verify(ctx, report)
	m.phase = Done
	report.Phase = m.phase.String()
	report.Finished = time.Now().UTC()
	return report, nil
}

func (m *Migrator) newReport() *Report {
	m.phase = Idle
	return &Report{
		RunID:   uuid.NewString(),
		Source:  m.Source.Name(),
		Target:  m.Target.Name(),
		Started: time.Now().UTC(),
	}
}

func (m *Migrator) fail(report *Report, err error) (*Report, error) {
	m.phase = Failed
	report.Phase = m.phase.String()
	report.Finished = time.Now().UTC()
	return report, err
}

// copyTable streams one table across. Each row upserts on its natural key,
// so rerunning after a partial failure converges instead of duplicating.
func (m *Migrator) copyTable(ctx context.Context, table store.Table) TableReport {
	tr := TableReport{Table: table.Name}

	m.phase = ReadingSource
	rs, err := m.Source.Query(ctx, table.SelectAllSQL())
	if err != nil {
		tr.Error = fmt.Sprintf("read from source: %v", err)
		return tr
	}
	tr.SourceRows = int64(rs.Len())

	m.phase = WritingTarget
	for _, row := range rs.Rows {
		values := rowArgs(row)
		if _, err := m.Target.Upsert(ctx, table.Name, values); err != nil {
			monitoring.Logf("%s: row %s: %v", table.Name, table.KeyString(values), err)
			tr.Failures = append(tr.Failures, RowFailure{
				Key:   table.KeyString(values),
				Error: err.Error(),
			})
			continue
		}
		tr.Copied++
	}
	return tr
}

// verify fills in counts (and checksums when enabled) on an existing report.
// Verification is best-effort per table; a table that cannot be compared is
// reported as a mismatch, never silently skipped.
func (m *Migrator) verify(ctx context.Context, report *Report) {
	m.phase = Verifying
	for i := range report.Tables {
		tr := &report.Tables[i]

		srcN, err := m.Source.RowCount(ctx, tr.Table)
		if err != nil {
			tr.Error = fmt.Sprintf("count on source: %v", err)
			continue
		}
		dstN, err := m.Target.RowCount(ctx, tr.Table)
		if err != nil {
			tr.Error = fmt.Sprintf("count on target: %v", err)
			continue
		}
		tr.SourceRows = srcN
		tr.TargetRows = dstN
		tr.CountMatch = srcN == dstN
		tr.ChecksumMatch = true

		if !m.Checksum {
			continue
		}
		table, _ := store.TableByName(tr.Table)
		src, err := tableChecksum(ctx, m.Source, table)
		if err != nil {
			tr.Error = fmt.Sprintf("checksum on source: %v", err)
			tr.ChecksumMatch = false
			continue
		}
		dst, err := tableChecksum(ctx, m.Target, table)
		if err != nil {
			tr.Error = fmt.Sprintf("checksum on target: %v", err)
			tr.ChecksumMatch = false
			continue
		}
		tr.SourceChecksum = src
		tr.TargetChecksum = dst
		tr.ChecksumMatch = src == dst
	}
	report.Verified = !report.Mismatched() && !report.CopyFailed()
}

// tableChecksum hashes a table's full natural-key-ordered contents. The
// query excludes surrogate ids and the codec normalises cell types, so equal
// data hashes equally on both engines.
func tableChecksum(ctx context.Context, e store.Engine, table store.Table) (string, error) {
	rs, err := e.Query(ctx, table.SelectAllSQL())
	if err != nil {
		return "", err
	}
	payload, err := rs.Encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// rowArgs turns a decoded row back into upsert arguments. Integral numbers
// go back as int64 so integer columns keep integer storage on both engines.
func rowArgs(row []tabular.Value) []interface{} {
	args := make([]interface{}, len(row))
	for i, v := range row {
		switch v.Kind {
		case tabular.Null:
			args[i] = nil
		case tabular.Number:
			if v.Number == math.Trunc(v.Number) && math.Abs(v.Number) < 1<<53 {
				args[i] = int64(v.Number)
			} else {
				args[i] = v.Number
			}
		default:
			args[i] = v.Text
		}
	}
	return args
}
