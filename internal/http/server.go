package http

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"kakeibo/internal/api"
	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/events"
	"kakeibo/internal/log"
	"kakeibo/internal/middleware/ratelimit"
	"kakeibo/internal/middleware/security"
	"kakeibo/internal/middleware/trace"
	"kakeibo/internal/receipts"
	appweb "kakeibo/web"
)

// Backend is the slice of the ledger API the dashboard consumes.
type Backend interface {
	Categories(ctx context.Context, userID string) (core.Taxonomy, error)
	Transactions(ctx context.Context, userID string, year, month int) ([]core.Transaction, error)
	YearlySummary(ctx context.Context, userID string, year int) (core.YearlySummary, error)
	CreateTransaction(ctx context.Context, input api.TransactionInput) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, input api.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	AnalyzeReceipt(ctx context.Context, userID, filename string, image io.Reader) ([]core.ReceiptItem, error)
}

// Snapshots is the local fallback store for backend reads.
type Snapshots interface {
	SaveMonth(ctx context.Context, userID string, year, month int, txs []core.Transaction) error
	LoadMonth(ctx context.Context, userID string, year, month int) ([]core.Transaction, time.Time, error)
	SaveCategories(ctx context.Context, userID string, tax core.Taxonomy) error
	LoadCategories(ctx context.Context, userID string) (core.Taxonomy, time.Time, error)
	SaveYearly(ctx context.Context, userID string, year int, summary core.YearlySummary) error
	LoadYearly(ctx context.Context, userID string, year int) (core.YearlySummary, time.Time, error)
}

// Publisher emits ledger change events.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Options configures a dashboard server. Snapshots and Publisher are
// optional; without them reads have no offline fallback and no events
// are emitted.
type Options struct {
	Addr         string
	UserID       string
	CacheTTL     time.Duration
	CacheMaxSize int
	Snapshots    Snapshots
	Publisher    Publisher
}

const backendCallTimeout = 7 * time.Second

type Server struct {
	http.Server

	templates *template.Template
	backend   Backend
	snapshots Snapshots
	publisher Publisher
	userID    string
	logger    *log.Logger

	guard         *api.MonthGuard
	monthCache    *cache.LRUCache[[]core.Transaction]
	taxonomyCache *cache.LRUCache[core.Taxonomy]
	yearlyCache   *cache.LRUCache[core.YearlySummary]
	cacheManager  *cache.Manager

	rateLimiter *ratelimit.Limiter
	clientIP    *security.ClientIPExtractor

	importMu sync.Mutex
	imports  map[string]*receipts.Session

	shutdownOnce sync.Once
}

// NewServer wires routes, templates, caches, and middleware into a
// ready-to-run server.
func NewServer(opts Options, backend Backend, logger *log.Logger) *Server {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheMaxSize <= 0 {
		opts.CacheMaxSize = 100
	}

	s := &Server{
		backend:       backend,
		snapshots:     opts.Snapshots,
		publisher:     opts.Publisher,
		userID:        opts.UserID,
		logger:        logger,
		guard:         api.NewMonthGuard(),
		monthCache:    cache.NewLRUCache[[]core.Transaction](opts.CacheMaxSize*2, opts.CacheTTL),
		taxonomyCache: cache.NewLRUCache[core.Taxonomy](opts.CacheMaxSize, opts.CacheTTL),
		yearlyCache:   cache.NewLRUCache[core.YearlySummary](opts.CacheMaxSize, opts.CacheTTL),
		cacheManager:  cache.NewManager(logger.Logger),
		rateLimiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		clientIP:      security.NewClientIPExtractor(),
		imports:       make(map[string]*receipts.Session),
	}

	s.cacheManager.Register(s.monthCache)
	s.cacheManager.Register(s.taxonomyCache)
	s.cacheManager.Register(s.yearlyCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(template.FuncMap{
		"yen": formatYen,
	}).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /ui/month-overview", s.handleMonthOverview)
	mux.HandleFunc("GET /ui/daily", s.handleDaily)
	mux.HandleFunc("GET /ui/yearly-overview", s.handleYearlyOverview)

	mux.HandleFunc("POST /transactions", s.limited(s.handleCreateTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.limited(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.limited(s.handleDeleteTransaction))

	mux.HandleFunc("POST /receipts/analyze", s.limited(s.handleReceiptAnalyze))
	mux.HandleFunc("GET /receipts/status", s.handleReceiptStatus)
	mux.HandleFunc("POST /receipts/items/{index}", s.handleReceiptEditItem)
	mux.HandleFunc("POST /receipts/items/{index}/category", s.handleReceiptSetCategory)
	mux.HandleFunc("DELETE /receipts/items/{index}", s.handleReceiptRemoveItem)
	mux.HandleFunc("POST /receipts/submit", s.limited(s.handleReceiptSubmit))
	mux.HandleFunc("POST /receipts/cancel", s.handleReceiptCancel)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.clientIP.ExtractClientIP)
	requestLog := log.Middleware(logger)
	requestID := log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})

	s.Server = http.Server{
		Addr:    opts.Addr,
		Handler: tracer.Middleware(headers.Middleware(requestLog(requestID(mux)))),
	}
	return s
}

// limited applies the per-IP rate limit to mutating handlers.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(s.clientIP.ExtractClientIP(r)) {
			s.logger.Warn("rate limit exceeded",
				"client_ip", s.clientIP.ExtractClientIP(r), "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		h(w, r)
	}
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness only checks the process; the backend may be down and the
	// dashboard still serves snapshots.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) monthKey(year, month int) string {
	return s.userID + ":" + fmt.Sprintf("%04d-%02d", year, month)
}

// getMonth returns a month's transactions, preferring the in-process
// cache, then the backend, then the local snapshot. stale is true when
// the data came from a snapshot.
func (s *Server) getMonth(ctx context.Context, year, month int) (txs []core.Transaction, stale bool, err error) {
	key := s.monthKey(year, month)
	if data, found := s.monthCache.Get(key); found {
		return data, false, nil
	}

	token := s.guard.Begin(key)

	cctx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()
	txs, err = s.backend.Transactions(cctx, s.userID, year, month)
	if err == nil {
		// A superseded load must not overwrite fresher state.
		if s.guard.Current(token) {
			s.monthCache.Set(key, txs)
			s.saveMonthSnapshot(ctx, year, month, txs)
		}
		return txs, false, nil
	}

	if s.snapshots != nil {
		snap, savedAt, snapErr := s.snapshots.LoadMonth(ctx, s.userID, year, month)
		if snapErr == nil {
			s.logger.Warn("serving month from snapshot",
				"year", year, "month", month, "saved_at", savedAt, log.FieldError, err)
			return snap, true, nil
		}
	}
	return nil, false, fmt.Errorf("fetch month %04d-%02d: %w", year, month, err)
}

func (s *Server) saveMonthSnapshot(ctx context.Context, year, month int, txs []core.Transaction) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveMonth(ctx, s.userID, year, month, txs); err != nil {
		s.logger.Warn("month snapshot save failed",
			"year", year, "month", month, log.FieldError, err)
	}
}

// getTaxonomy returns the category taxonomy with the same fallback
// ladder as getMonth.
func (s *Server) getTaxonomy(ctx context.Context) (core.Taxonomy, bool, error) {
	key := s.userID + ":taxonomy"
	if tax, found := s.taxonomyCache.Get(key); found {
		return tax, false, nil
	}

	cctx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()
	tax, err := s.backend.Categories(cctx, s.userID)
	if err == nil {
		s.taxonomyCache.Set(key, tax)
		if s.snapshots != nil {
			if err := s.snapshots.SaveCategories(ctx, s.userID, tax); err != nil {
				s.logger.Warn("category snapshot save failed", log.FieldError, err)
			}
		}
		return tax, false, nil
	}

	if s.snapshots != nil {
		snap, savedAt, snapErr := s.snapshots.LoadCategories(ctx, s.userID)
		if snapErr == nil {
			s.logger.Warn("serving categories from snapshot",
				"saved_at", savedAt, log.FieldError, err)
			return snap, true, nil
		}
	}
	return nil, false, fmt.Errorf("fetch categories: %w", err)
}

func (s *Server) getYearly(ctx context.Context, year int) (core.YearlySummary, bool, error) {
	key := s.userID + ":yearly:" + strconv.Itoa(year)
	if summary, found := s.yearlyCache.Get(key); found {
		return summary, false, nil
	}

	token := s.guard.Begin(key)

	cctx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	defer cancel()
	summary, err := s.backend.YearlySummary(cctx, s.userID, year)
	if err == nil {
		if s.guard.Current(token) {
			s.yearlyCache.Set(key, summary)
			if s.snapshots != nil {
				if err := s.snapshots.SaveYearly(ctx, s.userID, year, summary); err != nil {
					s.logger.Warn("yearly snapshot save failed", "year", year, log.FieldError, err)
				}
			}
		}
		return summary, false, nil
	}

	if s.snapshots != nil {
		snap, savedAt, snapErr := s.snapshots.LoadYearly(ctx, s.userID, year)
		if snapErr == nil {
			s.logger.Warn("serving yearly summary from snapshot",
				"year", year, "saved_at", savedAt, log.FieldError, err)
			return snap, true, nil
		}
	}
	return core.YearlySummary{}, false, fmt.Errorf("fetch yearly summary %d: %w", year, err)
}

// invalidateUserCaches drops every cached read for the user. Mutations
// call it so the next render sees backend truth.
func (s *Server) invalidateUserCaches() {
	s.monthCache.DeletePrefix(s.userID + ":")
	s.yearlyCache.DeletePrefix(s.userID + ":yearly:")
}

// publish emits a ledger event, best effort.
func (s *Server) publish(ctx context.Context, kind events.Kind, transactionID string, year, month int) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(kind, s.userID, transactionID, year, month)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			"kind", kind, log.FieldTransactionID, transactionID, log.FieldError, err)
	}
}
