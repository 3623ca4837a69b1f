package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/csi.monitor/internal/monitoring"
)

// AttachAdminRoutes mounts a read-only SQL console, a schema report and a
// gzipped backup download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://csi.db", db.DB, &tailsql.DBOptions{Label: "CSI sessions and records"})

	debug := tsweb.Debugger(mux)
	debug.Handle("tailsql/", "SQL console over CSI sessions and records", tsql.NewMux())
	debug.HandleFunc("schema", "Applied and embedded schema versions", db.serveSchema)
	debug.Handle("backup", "Download a gzipped snapshot of the database", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveSchema(w http.ResponseWriter, r *http.Request) {
	v, err := db.Schema()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// serveBackup snapshots the live database with VACUUM INTO, which is safe
// under concurrent writers, and streams the copy gzipped.
func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	logf := monitoring.Prefixed("backup")

	dir, err := os.MkdirTemp("", "csi-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logf("remove %s: %v", dir, err)
		}
	}()

	name := fmt.Sprintf("csi-backup-%s.db", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", path); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		logf("stream %s: %v", name, err)
	}
}
