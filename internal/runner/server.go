package runner

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nanoclaw/ops/internal/dispatch"
	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/runregistry"
)

const maxDispatchBody = 1 << 20

// Server exposes the runner's HTTP surface: signed dispatch ingestion,
// health, and the run registry's read/cancel endpoints.
type Server struct {
	exec         *Executor
	runs         *runregistry.Store
	secret       string
	sharedSecret string
	logger       *slog.Logger
}

func NewServer(exec *Executor, runs *runregistry.Store, dispatchSecret, runsSharedSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{exec: exec, runs: runs, secret: dispatchSecret, sharedSecret: runsSharedSecret, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /dispatch", s.handleDispatch)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /runs/{id}/cancel", s.handleCancelRun)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type dispatchEnvelopeBody struct {
	Event        string            `json:"event"`
	DispatchID   string            `json:"dispatchId"`
	DispatchedAt string            `json:"dispatchedAt"`
	Source       string            `json:"source"`
	Actions      []json.RawMessage `json:"actions"`
}

type dispatchResponseBody struct {
	Success    bool             `json:"success"`
	DispatchID string           `json:"dispatchId"`
	Results    []dispatch.Result `json:"results"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDispatchBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	ts := r.Header.Get(dispatch.HeaderSignatureTS)
	sig := r.Header.Get(dispatch.HeaderSignature)
	if ts == "" || sig == "" || !dispatch.Verify(s.secret, ts, body, sig) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env dispatchEnvelopeBody
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	actions := make([]plan.Action, 0, len(env.Actions))
	for _, raw := range env.Actions {
		a, err := plan.UnmarshalAction(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("malformed action: %v", err), http.StatusBadRequest)
			return
		}
		actions = append(actions, a)
	}

	results := s.exec.Execute(r.Context(), actions)
	out := make([]dispatch.Result, len(results))
	for i, res := range results {
		out[i] = dispatch.Result{
			Status:     res.Status,
			Cause:      res.Cause,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
			ExitCode:   res.ExitCode,
			DurationMs: res.DurationMs,
			ResultText: res.ResultText,
			ErrorText:  res.ErrorText,
			RunID:      res.RunID,
		}
	}

	writeJSON(w, http.StatusOK, dispatchResponseBody{
		Success:    true,
		DispatchID: env.DispatchID,
		Results:    out,
	})
}

func (s *Server) authorizeRunsRequest(r *http.Request) bool {
	if s.sharedSecret == "" {
		return true
	}
	got := r.Header.Get("x-ops-runner-secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.sharedSecret)) == 1
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRunsRequest(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		var n int
		if _, err := fmt.Sscanf(q, "%d", &n); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.runs.List(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRunsRequest(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	run, err := s.runs.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRunsRequest(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if err := s.runs.RequestCancel(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.exec.mu.Lock()
	abort, ok := s.exec.aborts[id]
	s.exec.mu.Unlock()
	if ok {
		abort()
	}

	writeJSON(w, http.StatusOK, map[string]any{"cancelRequested": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
