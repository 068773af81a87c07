// gridbase-migrate copies a full dataset between the two supported database
// engines and verifies the copy. Typical use is promoting a development
// SQLite file to PostgreSQL:
//
//	gridbase-migrate -source sqlite:gridbase.db -target postgres:$POSTGRES_DSN
//
// Exit code 0 means every row copied and verification passed, 2 means one or
// more rows failed to copy, 3 means the copy ran clean but verification
// found a mismatch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/paddockdata/gridbase/internal/migratetool"
	"github.com/paddockdata/gridbase/internal/monitoring"
	"github.com/paddockdata/gridbase/internal/store"
)

const (
	exitOK         = 0
	exitCopyFailed = 2
	exitMismatch   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		sourceSpec string
		targetSpec string
		verifyOnly bool
		checksum   bool
		quiet      bool
	)
	flag.StringVar(&sourceSpec, "source", "", "source engine, sqlite:PATH or postgres:DSN")
	flag.StringVar(&targetSpec, "target", "", "target engine, sqlite:PATH or postgres:DSN")
	flag.BoolVar(&verifyOnly, "verify-only", false, "skip the copy and only verify target against source")
	flag.BoolVar(&checksum, "checksum", false, "verify table contents as well as row counts")
	flag.BoolVar(&quiet, "quiet", false, "suppress progress logging; the report still prints")
	flag.Parse()

	if sourceSpec == "" || targetSpec == "" {
		log.Fatalf("both -source and -target must be provided")
	}
	if quiet {
		restore := monitoring.Quiet()
		defer restore()
	}

	ctx := context.Background()

	source, err := openEngine(ctx, sourceSpec)
	if err != nil {
		log.Fatalf("open source: %v", err)
	}
	defer source.Close()

	target, err := openEngine(ctx, targetSpec)
	if err != nil {
		log.Fatalf("open target: %v", err)
	}
	defer target.Close()

	m := &migratetool.Migrator{Source: source, Target: target, Checksum: checksum}

	var report *migratetool.Report
	if verifyOnly {
		report, err = m.Verify(ctx)
	} else {
		report, err = m.Run(ctx)
	}
	if report != nil {
		printReport(report)
	}
	if err != nil {
		log.Printf("migration aborted: %v", err)
		return exitCopyFailed
	}

	// A row that never copied is worse than a mismatch, so it wins.
	if report.CopyFailed() {
		return exitCopyFailed
	}
	if !report.Verified {
		return exitMismatch
	}
	return exitOK
}

// openEngine parses an engine spec of the form kind:location.
func openEngine(ctx context.Context, spec string) (store.Engine, error) {
	kind, location, ok := strings.Cut(spec, ":")
	if !ok || location == "" {
		return nil, fmt.Errorf("engine spec %q must be sqlite:PATH or postgres:DSN", spec)
	}
	switch kind {
	case "sqlite":
		return store.OpenSQLite(location)
	case "postgres":
		return store.OpenPostgres(ctx, location)
	}
	return nil, fmt.Errorf("unknown engine %q in spec %q", kind, spec)
}

func printReport(report *migratetool.Report) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("marshal report: %v", err)
		return
	}
	fmt.Println(string(out))
}
