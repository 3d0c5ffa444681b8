package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/pipeline"
	"main/internal/schema"
)

// server is the operator control surface: signal intake, state inspection,
// pause/resume, the kill switch, and prometheus metrics.
type server struct {
	httpSrv *http.Server
	orch    *pipeline.Orchestrator
	queue   *bus.Queue
}

func newServer(addr string, orch *pipeline.Orchestrator, queue *bus.Queue, metrics *obs.Metrics) *server {
	s := &server{orch: orch, queue: queue}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/account", s.handleAccount)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/signal", s.handleSignal)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/resume", s.handleResume)
	mux.HandleFunc("POST /api/kill", s.handleKill)
	mux.HandleFunc("POST /api/kill/clear", s.handleClearKill)
	mux.HandleFunc("POST /api/reconcile", s.handleReconcile)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *server) run() error {
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *server) stop(ctx context.Context) {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		logs.Warnf("control server shutdown: %+v", err)
	}
}

func (s *server) handleAccount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Book().Account())
}

func (s *server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Book().OpenPositions())
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":  s.orch.Book().State(),
		"paused": s.orch.Paused(),
	})
}

// handleSignal enqueues one signal for asynchronous processing. A full queue
// answers 503 so the producer can back off.
func (s *server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var sig schema.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed signal: " + err.Error()})
		return
	}
	if sig.ID == "" || sig.Ticker == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signal id and ticker are required"})
		return
	}
	if err := s.queue.TryPublish(sig); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": sig.ID})
}

func (s *server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.orch.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.orch.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *server) handleKill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "manual"
	}
	if err := s.orch.Kill(r.Context(), body.Reason); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "killed", "reason": body.Reason})
}

func (s *server) handleClearKill(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ClearKill(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Reconcile(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warnf("write response: %+v", err)
	}
}
