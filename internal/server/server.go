package server

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"docrag/internal/config"
	"docrag/internal/index"
	"docrag/internal/indexer"
	"docrag/internal/llm"
	oai "docrag/internal/llm/openai"
	mylog "docrag/internal/log"
	"docrag/internal/rag/composer"
	"docrag/internal/rag/retriever"
	"docrag/internal/store"
)

// API wires the document pipeline behind HTTP handlers. One Manager holds
// the active index; reindex swaps it, ask reads it.
type API struct {
	cfg     config.Config
	store   store.Store
	chat    llm.ChatProvider
	emb     llm.Embedder
	idx     *index.Manager
	builder *indexer.Builder
	ret     *retriever.Retriever
	comp    *composer.Composer
	lg      *mylog.Logger
}

func NewAPI(cfg config.Config, st store.Store, chat llm.ChatProvider, emb llm.Embedder) *API {
	idx := index.NewManager()
	return &API{
		cfg:   cfg,
		store: st,
		chat:  chat,
		emb:   emb,
		idx:   idx,
		builder: indexer.New(emb,
			indexer.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
			indexer.WithBatch(cfg.EmbedBatch),
			indexer.WithConcurrency(cfg.EmbedConcurrency)),
		ret:  retriever.New(emb, idx),
		comp: composer.New(chat),
		lg:   mylog.New(),
	}
}

// restoreSnapshot loads the last written snapshot, if any. A corrupt
// snapshot is logged and skipped; the server starts with an empty index.
func (a *API) restoreSnapshot() {
	ix, err := index.ReadSnapshot(a.cfg.StorageDir)
	if err != nil {
		a.lg.Warn("index.restore_failed", "dir", a.cfg.StorageDir, "err", err.Error())
		return
	}
	if ix != nil {
		a.idx.Restore(ix)
		a.lg.Info("index.restored", "chunks", ix.Len(), "documents", ix.DocCount())
	}
}

func (a *API) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/reindex", a.handleReindex)
	mux.HandleFunc("/ask", a.handleAsk)
	mux.HandleFunc("/query", a.handleAsk) // compatibility alias
	mux.HandleFunc("/jobs", a.handleJobs)
	mux.HandleFunc("/jobs/", a.handleJob)
	mux.HandleFunc("/metrics", a.handleMetrics)
	return mux
}

// Handler returns the full middleware-wrapped handler, exported for tests.
func (a *API) Handler() http.Handler {
	return logMiddleware(rateLimitMiddleware(a.mux()))
}

// Run starts the HTTP server and blocks until a signal or listen failure.
func Run(addr string) error {
	cfg := config.Load()
	if addr != "" {
		cfg.Addr = addr
	}
	lg := mylog.New()

	var st store.Store
	if cfg.SQLitePath != "" {
		sdb, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqlite init failed: %v, falling back to memory\n", err)
			st = store.New()
		} else {
			st = sdb
		}
	} else {
		st = store.New()
	}
	defer st.Close()

	prov := oai.NewFromEnv()
	api := NewAPI(cfg, st, prov, prov)
	api.restoreSnapshot()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		lg.Info("server.listen", "addr", cfg.Addr)
		errs <- srv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		return fmt.Errorf("shutdown by signal: %v", sig)
	case err := <-errs:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, errStr, message string) {
	writeJSON(w, status, apiError{Error: errStr, Message: message, Code: status})
}

func authorize(w http.ResponseWriter, r *http.Request) bool {
	tok := os.Getenv("DOCRAG_API_TOKEN")
	if tok == "" {
		return true
	}
	hdr := r.Header.Get("Authorization")
	if strings.HasPrefix(hdr, "Bearer ") && strings.TrimSpace(hdr[len("Bearer "):]) == tok {
		return true
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	nbytes int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.nbytes += n
	return n, err
}

// newRequestID returns a short, unique request identifier.
func newRequestID() string {
	var b [12]byte
	if _, err := crand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 24)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}

// clientIP extracts the best-effort client IP from headers or RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		return host[:i]
	}
	return host
}

// rateLimiter provides token-bucket rate limiting by key.
type rateLimiter struct {
	mu      sync.Mutex
	rps     float64
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rps float64) *rateLimiter {
	return &rateLimiter{rps: rps, buckets: make(map[string]*bucket)}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.rps <= 0 {
		return true
	}
	now := time.Now()
	b := rl.buckets[key]
	if b == nil {
		b = &bucket{tokens: rl.rps, last: now}
		rl.buckets[key] = b
	}
	b.tokens += now.Sub(b.last).Seconds() * rl.rps
	if b.tokens > rl.rps {
		b.tokens = rl.rps
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// rateLimitMiddleware enforces a shared RPS limit per client IP when
// DOCRAG_RATE_LIMIT_RPS is set. Unset means unlimited.
func rateLimitMiddleware(next http.Handler) http.Handler {
	var once sync.Once
	var limiter *rateLimiter
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			rps := -1.0
			if v := os.Getenv("DOCRAG_RATE_LIMIT_RPS"); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
					rps = f
				}
			}
			limiter = newRateLimiter(rps)
		})
		if limiter.rps <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.allow("ip:" + clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		lg := mylog.New()
		lg.Info("http.req",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"remoteIP", clientIP(r),
			"status", rec.status,
			"duration_ms", int(dur/time.Millisecond),
			"bytes", rec.nbytes,
		)
	})
}
