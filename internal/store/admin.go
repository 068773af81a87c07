package store

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/paddockdata/gridbase/internal/monitoring"
)

// AttachAdminRoutes mounts the operational debug surface: a tailSQL console
// for live read-only queries, pool statistics, and (on SQLite) an on-demand
// database backup download. These routes are for operators, not the
// dashboard, and should only be reachable on a trusted network.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB(db.Name()+"://gridbase", db.DB, &tailsql.DBOptions{
		Label: "Grid DB (" + db.Name() + ")",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Connection pool statistics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(db.DB.Stats()); err != nil {
			monitoring.Logf("admin: encode db stats: %v", err)
		}
	}))

	if db.Name() == "sqlite" {
		debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.backupHandler))
	}
}

// backupHandler snapshots the SQLite file with VACUUM INTO and streams the
// result gzipped. The snapshot is removed once sent.
func (db *DB) backupHandler(w http.ResponseWriter, r *http.Request) {
	backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("admin: remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		monitoring.Logf("admin: stream backup: %v", err)
	}
}
