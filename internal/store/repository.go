package store

import "docrag/internal/models"

// Store persists reindex jobs and the query audit log. The index itself
// lives in its snapshot files; this is operational history only.
type Store interface {
	CreateJob() (*models.ReindexJob, error)
	FinishJob(id string, status models.JobStatus, docCount, chunkCount int, errMsg string) error
	GetJob(id string) (*models.ReindexJob, bool)
	ListJobs(limit int) ([]*models.ReindexJob, error)
	RecordQuery(rec models.QueryRecord) error
	Stats() map[string]int
	Close() error
}
