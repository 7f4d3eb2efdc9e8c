package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"payboard/internal/application"

	"github.com/gorilla/mux"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ReadinessCheck probes one backing service for /readyz.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Site      Site
	Metrics   *Metrics
	Limiter   *RateLimiter
	Checks    map[string]ReadinessCheck
	BuildInfo BuildInfo
	Now       func() time.Time
}

type Server struct {
	pages     *application.Pages
	render    *renderer
	metrics   *Metrics
	limiter   *RateLimiter
	checks    map[string]ReadinessCheck
	buildInfo BuildInfo
}

func NewServer(pages *application.Pages, opts Options) (*Server, error) {
	if pages == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	render, err := newRenderer(opts.Site, opts.Now)
	if err != nil {
		return nil, err
	}
	if opts.Limiter != nil {
		opts.Limiter.onReject = opts.Metrics.observeRateLimited
	}
	return &Server{
		pages:     pages,
		render:    render,
		metrics:   opts.Metrics,
		limiter:   opts.Limiter,
		checks:    opts.Checks,
		buildInfo: opts.BuildInfo,
	}, nil
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(requestLogging, s.metrics.Middleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	router.Handle("/address/{handle}", s.limited(s.handleDashboard)).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/address/{handle}/all", s.limited(s.handleAllPayments)).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/address/{handle}/tx/{txHash}", s.limited(s.handleReceipt)).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/address/{handle}/finalize", s.limited(s.handleFinalizeRedirect)).Methods(http.MethodGet)
	router.Handle("/address/{handle}/finalize/{txHash}", s.limited(s.handleFinalize)).Methods(http.MethodGet)
	router.Handle("/address/{handle}/opengraph-image", s.limited(s.handleOpenGraph)).Methods(http.MethodGet, http.MethodHead)

	router.NotFoundHandler = requestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.render.errorPage(w, http.StatusNotFound, "Not found", "There is nothing at this address.")
	}))
	return router
}

func (s *Server) limited(handler http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return handler
	}
	return s.limiter.Middleware(handler)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if s.limiter != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if removed := s.limiter.Sweep(10 * time.Minute); removed > 0 {
						slog.Debug("rate limiter sweep", "removed", removed, "remaining", s.limiter.Len())
					}
				}
			}
		}()
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "err", err)
			respondError(w, http.StatusServiceUnavailable, name+" not ready")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.pages.Dashboard(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render.page(w, http.StatusOK, "dashboard", view.Handle, view)
}

func (s *Server) handleAllPayments(w http.ResponseWriter, r *http.Request) {
	view, err := s.pages.AllPayments(r.Context(), mux.Vars(r)["handle"], r.URL.Query().Get("page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render.page(w, http.StatusOK, "payments", view.Handle, view)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	handle, err := application.NormalizeHandle(vars["handle"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	record, err := s.pages.Receipt(r.Context(), vars["txHash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render.page(w, http.StatusOK, "receipt", handle, record)
}

func (s *Server) handleFinalizeRedirect(w http.ResponseWriter, r *http.Request) {
	target, err := application.FinalizeRedirect(mux.Vars(r)["handle"], r.URL.Query().Get("txHash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	record, err := s.pages.Finalize(r.Context(), vars["handle"], vars["txHash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	handle, _ := application.NormalizeHandle(vars["handle"])
	s.render.page(w, http.StatusOK, "finalize", handle, record)
}

func (s *Server) handleOpenGraph(w http.ResponseWriter, r *http.Request) {
	view, err := s.pages.Preview(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		status := statusFor(err)
		s.logFailure(r, status, err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.render.openGraph(w, view)
}

// statusFor maps page loader errors onto HTTP statuses. Anything that is not
// the caller's fault or a missing record is an upstream failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logFailure(r, status, err)
	switch status {
	case http.StatusBadRequest:
		s.render.errorPage(w, status, "Invalid parameters", "The handle or transaction hash in this link is not valid.")
	case http.StatusNotFound:
		s.render.errorPage(w, status, "Not found", "We could not find that payment.")
	default:
		s.render.errorPage(w, status, "Something went wrong", "Payment data is unavailable right now. Please try again in a moment.")
	}
}

func (s *Server) logFailure(r *http.Request, status int, err error) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "page load failed",
		"request_id", RequestID(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
