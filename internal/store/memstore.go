package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"docrag/internal/models"
)

// MemStore is the in-memory fallback used when no SQLite path is configured.
type MemStore struct {
	mu      sync.RWMutex
	jobs    map[string]*models.ReindexJob
	jobSeq  []string // insertion order
	queries []models.QueryRecord
}

func New() *MemStore {
	return &MemStore{jobs: make(map[string]*models.ReindexJob)}
}

func (s *MemStore) CreateJob() (*models.ReindexJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &models.ReindexJob{
		ID:        "job-" + uuid.NewString(),
		Status:    models.JobRunning,
		StartedAt: time.Now(),
	}
	s.jobs[j.ID] = j
	s.jobSeq = append(s.jobSeq, j.ID)
	return j, nil
}

func (s *MemStore) FinishJob(id string, status models.JobStatus, docCount, chunkCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	now := time.Now()
	j.Status = status
	j.EndedAt = &now
	j.DocumentCount = docCount
	j.ChunkCount = chunkCount
	j.Error = errMsg
	return nil
}

func (s *MemStore) GetJob(id string) (*models.ReindexJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

func (s *MemStore) ListJobs(limit int) ([]*models.ReindexJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.jobSeq
	out := make([]*models.ReindexJob, 0, limit)
	for i := len(ids) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *s.jobs[ids[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) RecordQuery(rec models.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = "q-" + uuid.NewString()
	}
	s.queries = append(s.queries, rec)
	return nil
}

func (s *MemStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grounded := 0
	for _, q := range s.queries {
		if q.Grounded {
			grounded++
		}
	}
	return map[string]int{
		"jobs":             len(s.jobs),
		"queries":          len(s.queries),
		"queries_grounded": grounded,
	}
}

func (s *MemStore) Close() error { return nil }
