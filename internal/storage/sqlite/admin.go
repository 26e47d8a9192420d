package sqlite

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the debug index, a live SQL console over the
// recorder database and a snapshot download on mux.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.DB, &tailsql.DBOptions{
		Label: "Run recorder",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("snapshot", "Download a consistent copy of the run database", http.HandlerFunc(s.serveSnapshot))
	return nil
}

// serveSnapshot streams a VACUUM INTO copy of the database.
func (s *Store) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "slamsim-snapshot-*")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create snapshot dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "slamsim-snapshot.db")
	if _, err := s.ExecContext(r.Context(), "VACUUM INTO ?", path); err != nil {
		http.Error(w, fmt.Sprintf("failed to snapshot database: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename=slamsim-snapshot.db")
	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	http.ServeFile(w, r, path)
}
