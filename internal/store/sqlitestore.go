package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"docrag/internal/models"
	sqlm "docrag/internal/storage/sqlite"
)

// SQLiteStore persists jobs and query history in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := (sqlm.Manager{}).UpToLatest(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateJob() (*models.ReindexJob, error) {
	j := &models.ReindexJob{
		ID:        "job-" + uuid.NewString(),
		Status:    models.JobRunning,
		StartedAt: time.Now(),
	}
	_, err := s.db.Exec(`INSERT INTO reindex_jobs(id,status,started_at) VALUES(?,?,?)`,
		j.ID, string(j.Status), j.StartedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) FinishJob(id string, status models.JobStatus, docCount, chunkCount int, errMsg string) error {
	_, err := s.db.Exec(`UPDATE reindex_jobs SET status=?, ended_at=?, document_count=?, chunk_count=?, error=? WHERE id=?`,
		string(status), time.Now().UTC().Format(time.RFC3339), docCount, chunkCount, errMsg, id)
	return err
}

func (s *SQLiteStore) GetJob(id string) (*models.ReindexJob, bool) {
	row := s.db.QueryRow(`SELECT id,status,started_at,ended_at,document_count,chunk_count,error FROM reindex_jobs WHERE id=?`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, false
	}
	return j, true
}

func (s *SQLiteStore) ListJobs(limit int) ([]*models.ReindexJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id,status,started_at,ended_at,document_count,chunk_count,error FROM reindex_jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ReindexJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*models.ReindexJob, error) {
	var j models.ReindexJob
	var status, started string
	var ended, errMsg sql.NullString
	if err := r.Scan(&j.ID, &status, &started, &ended, &j.DocumentCount, &j.ChunkCount, &errMsg); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.StartedAt, _ = time.Parse(time.RFC3339, started)
	if ended.Valid && ended.String != "" {
		if t, err := time.Parse(time.RFC3339, ended.String); err == nil {
			j.EndedAt = &t
		}
	}
	j.Error = errMsg.String
	return &j, nil
}

func (s *SQLiteStore) RecordQuery(rec models.QueryRecord) error {
	if rec.ID == "" {
		rec.ID = "q-" + uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	grounded := 0
	if rec.Grounded {
		grounded = 1
	}
	_, err := s.db.Exec(`INSERT INTO query_log(id,question,mode,grounded,chunks_used,duration_ms,created_at) VALUES(?,?,?,?,?,?,?)`,
		rec.ID, rec.Question, rec.Mode, grounded, rec.ChunksUsed, rec.DurationMs, rec.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLiteStore) Stats() map[string]int {
	stats := make(map[string]int)
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM reindex_jobs`).Scan(&n); err == nil {
		stats["jobs"] = n
	}
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM query_log`).Scan(&n); err == nil {
		stats["queries"] = n
	}
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM query_log WHERE grounded=1`).Scan(&n); err == nil {
		stats["queries_grounded"] = n
	}
	return stats
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
