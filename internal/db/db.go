// Package db stores operator bookkeeping in SQLite: finished recognition
// sessions and the files written by save and auto-save. Recordings
// themselves live in flat files, never here.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/emg.gesture/internal/monitoring"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
	path string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Session is one finished recognition session.
type Session struct {
	SessionID     string             `json:"session_id"`
	State         string             `json:"state"`
	Label         string             `json:"label,omitempty"`
	Best          string             `json:"best,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Attempts      int                `json:"attempts"`
	Reads         int                `json:"reads"`
	Error         string             `json:"error,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
}

// RecordSession inserts or replaces a session row.
func (db *DB) RecordSession(s Session) error {
	var probs []byte
	if s.Probabilities != nil {
		var err error
		if probs, err = json.Marshal(s.Probabilities); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO recognition_sessions (
			session_id, state, label, best, confidence, probabilities,
			attempts, reads, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.State, nullString(s.Label), nullString(s.Best), s.Confidence, nullString(string(probs)),
		s.Attempts, s.Reads, nullString(s.Error), s.StartedAt.UnixMilli(), s.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.SessionID, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (db *DB) RecentSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT session_id, state, label, best, confidence, probabilities,
			attempts, reads, error, started_at, finished_at
		FROM recognition_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s                     Session
			label, best, errText  sql.NullString
			probs                 sql.NullString
			confidence            sql.NullFloat64
			startedMs, finishedMs int64
		)
		if err := rows.Scan(&s.SessionID, &s.State, &label, &best, &confidence, &probs,
			&s.Attempts, &s.Reads, &errText, &startedMs, &finishedMs); err != nil {
			return nil, err
		}
		s.Label, s.Best, s.Error = label.String, best.String, errText.String
		s.Confidence = confidence.Float64
		if probs.Valid {
			if err := json.Unmarshal([]byte(probs.String), &s.Probabilities); err != nil {
				return nil, fmt.Errorf("session %s probabilities: %w", s.SessionID, err)
			}
		}
		s.StartedAt = time.UnixMilli(startedMs).UTC()
		s.FinishedAt = time.UnixMilli(finishedMs).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SavedFile is one file written by save or auto-save.
type SavedFile struct {
	ID      int64     `json:"id"`
	Path    string    `json:"path"`
	Format  string    `json:"format"`
	Samples int       `json:"samples"`
	Bytes   int64     `json:"bytes"`
	Auto    bool      `json:"auto"`
	SavedAt time.Time `json:"saved_at"`
}

// RecordSavedFile appends a saved file and returns its id.
func (db *DB) RecordSavedFile(f SavedFile) (int64, error) {
	res, err := db.Exec(`INSERT INTO saved_files (path, format, samples, bytes, auto, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.Path, f.Format, f.Samples, f.Bytes, f.Auto, f.SavedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to record saved file %s: %w", f.Path, err)
	}
	return res.LastInsertId()
}

// RecentSavedFiles returns up to limit files, newest first.
func (db *DB) RecentSavedFiles(limit int) ([]SavedFile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT file_id, path, format, samples, bytes, auto, saved_at
		FROM saved_files ORDER BY saved_at DESC, file_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []SavedFile
	for rows.Next() {
		var f SavedFile
		var savedMs int64
		if err := rows.Scan(&f.ID, &f.Path, &f.Format, &f.Samples, &f.Bytes, &f.Auto, &savedMs); err != nil {
			return nil, err
		}
		f.SavedAt = time.UnixMilli(savedMs).UTC()
		files = append(files, f)
	}
	return files, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// AttachAdminRoutes mounts tailsql and a backup download under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "EMG session DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Download a gzipped backup of the session database", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("emg-backup-%d.db", time.Now().UnixNano()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("failed to stream backup: %v", err)
	}
}
