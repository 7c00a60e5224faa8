package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docrag/internal/chunker"
	"docrag/internal/docs"
	"docrag/internal/index"
	"docrag/internal/indexer"
	"docrag/internal/llm"
	"docrag/internal/models"
	"docrag/internal/rag/composer"
	"docrag/internal/rag/retriever"
)

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	chunks := 0
	if ix := a.idx.Active(); ix != nil {
		chunks = ix.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"chunks":  chunks,
		"docsDir": a.cfg.DocsDir,
	})
}

// handleReindex rebuilds the whole index from the docs directory. The build
// runs to completion before the response; concurrent asks keep serving the
// previous index until the swap.
func (a *API) handleReindex(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	job, err := a.store.CreateJob()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	loaded, err := docs.Load(a.cfg.DocsDir, docs.Options{})
	if err != nil {
		_ = a.store.FinishJob(job.ID, models.JobFailed, 0, 0, err.Error())
		writeError(w, http.StatusInternalServerError, "docs_error", err.Error())
		return
	}

	var stats indexer.Stats
	ix, err := a.idx.Replace(func() (*index.Index, error) {
		var berr error
		var bix *index.Index
		bix, stats, berr = a.builder.Build(r.Context(), loaded)
		return bix, berr
	})
	if err != nil {
		_ = a.store.FinishJob(job.ID, models.JobFailed, 0, 0, err.Error())
		status, code := mapError(err)
		writeError(w, status, code, err.Error())
		return
	}

	if err := index.WriteSnapshot(a.cfg.StorageDir, ix); err != nil {
		a.lg.Warn("index.snapshot_failed", "dir", a.cfg.StorageDir, "err", err.Error())
	}
	_ = a.store.FinishJob(job.ID, models.JobCompleted, stats.DocumentCount, stats.ChunkCount, "")
	a.lg.Info("index.rebuilt", "job", job.ID, "documents", stats.DocumentCount, "chunks", stats.ChunkCount)

	fresh, _ := a.store.GetJob(job.ID)
	if fresh == nil {
		fresh = job
	}
	writeJSON(w, http.StatusOK, fresh)
}

type askRequest struct {
	Question  string            `json:"question"`
	Mode      models.AnswerMode `json:"mode"`
	TopK      int               `json:"topK"`
	Threshold *float64          `json:"threshold"`
}

type askResponse struct {
	Question   string            `json:"question"`
	Mode       models.AnswerMode `json:"mode"`
	Answer     *composer.Answer  `json:"answer,omitempty"`
	Plain      *composer.Answer  `json:"plain,omitempty"`
	Unfiltered *composer.Answer  `json:"unfiltered,omitempty"`
	Filtered   *composer.Answer  `json:"filtered,omitempty"`
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question required")
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeGroundedFiltered
	}
	if !models.ValidMode(req.Mode) {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown mode %q", req.Mode))
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = a.cfg.TopK
	}
	threshold := a.cfg.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	start := time.Now()
	resp := askResponse{Question: req.Question, Mode: req.Mode}
	var err error
	switch req.Mode {
	case models.ModePlain:
		var ans composer.Answer
		ans, err = a.comp.Plain(r.Context(), req.Question)
		resp.Answer = &ans
	case models.ModeGrounded:
		resp.Answer, err = a.answerGrounded(r, req.Question, retriever.Params{TopK: topK})
	case models.ModeGroundedFiltered:
		resp.Answer, err = a.answerGrounded(r, req.Question, retriever.Params{TopK: topK, Threshold: &threshold})
	case models.ModeCompare:
		err = a.answerCompare(r, req.Question, topK, threshold, &resp)
	}
	if err != nil {
		status, code := mapError(err)
		writeError(w, status, code, err.Error())
		return
	}

	a.recordQuery(req, resp, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) answerGrounded(r *http.Request, question string, p retriever.Params) (*composer.Answer, error) {
	chunks, err := a.ret.Retrieve(r.Context(), question, p)
	if err != nil {
		return nil, err
	}
	ans, err := a.comp.Grounded(r.Context(), question, chunks, true)
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

// answerCompare retrieves once and answers three ways: without context, with
// the full top-k, and with the threshold-filtered subset, so the caller can
// see what retrieval and filtering each changed.
func (a *API) answerCompare(r *http.Request, question string, topK int, threshold float64, resp *askResponse) error {
	chunks, err := a.ret.Retrieve(r.Context(), question, retriever.Params{TopK: topK})
	if err != nil {
		return err
	}
	plain, err := a.comp.Plain(r.Context(), question)
	if err != nil {
		return err
	}
	unfiltered, err := a.comp.Grounded(r.Context(), question, chunks, true)
	if err != nil {
		return err
	}
	filtered, err := a.comp.Grounded(r.Context(), question, retriever.FilterThreshold(chunks, &threshold), true)
	if err != nil {
		return err
	}
	resp.Plain = &plain
	resp.Unfiltered = &unfiltered
	resp.Filtered = &filtered
	return nil
}

func (a *API) recordQuery(req askRequest, resp askResponse, dur time.Duration) {
	rec := models.QueryRecord{
		Question:   req.Question,
		Mode:       string(req.Mode),
		DurationMs: int(dur / time.Millisecond),
		CreatedAt:  time.Now(),
	}
	ans := resp.Answer
	if ans == nil {
		ans = resp.Filtered
	}
	if ans != nil {
		rec.Grounded = ans.Grounded
		rec.ChunksUsed = len(ans.Chunks)
	}
	if err := a.store.RecordQuery(rec); err != nil {
		a.lg.Warn("query.record_failed", "err", err.Error())
	}
}

// mapError translates pipeline errors to HTTP status and error code.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, retriever.ErrInvalidParams), errors.Is(err, chunker.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, llm.ErrProviderUnavailable):
		return http.StatusBadGateway, "provider_unavailable"
	case errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_provider_response"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (a *API) handleJobs(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := a.store.ListJobs(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (a *API) handleJob(w http.ResponseWriter, r *http.Request) {
	if !authorize(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "job id required")
		return
	}
	if job, ok := a.store.GetJob(id); ok {
		writeJSON(w, http.StatusOK, job)
		return
	}
	writeError(w, http.StatusNotFound, "not_found", "job not found")
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	st := a.store.Stats()
	ix := a.idx.Active()
	chunks, documents := 0, 0
	if ix != nil {
		chunks, documents = ix.Len(), ix.DocCount()
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		st["index_chunks"] = chunks
		st["index_documents"] = documents
		writeJSON(w, http.StatusOK, st)
		return
	}

	val := func(key string) int { return st[key] }
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	io.WriteString(w, "# HELP docrag_index_chunks Chunks in the active index.\n")
	io.WriteString(w, "# TYPE docrag_index_chunks gauge\n")
	io.WriteString(w, fmt.Sprintf("docrag_index_chunks %d\n", chunks))

	io.WriteString(w, "# HELP docrag_index_documents Documents in the active index.\n")
	io.WriteString(w, "# TYPE docrag_index_documents gauge\n")
	io.WriteString(w, fmt.Sprintf("docrag_index_documents %d\n", documents))

	io.WriteString(w, "# HELP docrag_jobs Reindex jobs recorded.\n")
	io.WriteString(w, "# TYPE docrag_jobs gauge\n")
	io.WriteString(w, fmt.Sprintf("docrag_jobs %d\n", val("jobs")))

	io.WriteString(w, "# HELP docrag_queries Queries answered.\n")
	io.WriteString(w, "# TYPE docrag_queries gauge\n")
	io.WriteString(w, fmt.Sprintf("docrag_queries %d\n", val("queries")))

	io.WriteString(w, "# HELP docrag_queries_grounded Queries answered with context.\n")
	io.WriteString(w, "# TYPE docrag_queries_grounded gauge\n")
	io.WriteString(w, fmt.Sprintf("docrag_queries_grounded %d\n", val("queries_grounded")))
}
