// Package network serves the building, elevators and requests over a JSON HTTP API.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"liftsim/src/types"
)

const shutdownTimeout = 5 * time.Second

type Store interface {
	GetBuilding(ctx context.Context, id string) (types.Building, error)
	ListElevators(ctx context.Context, buildingID string) ([]types.ElevatorView, error)
	ListRequests(ctx context.Context, buildingID string, limit int) ([]types.Request, error)
}

type Dispatcher interface {
	CreateRequest(ctx context.Context, in types.NewRequest) (types.Request, error)
}

type Executor interface {
	Step(ctx context.Context, elevatorID string, targetFloor int) (types.Elevator, error)
	UpdateElevator(ctx context.Context, elevatorID string, patch types.ElevatorPatch) (types.Elevator, error)
	UpdateRequest(ctx context.Context, requestID string, patch types.RequestPatch) (types.Request, error)
	DeleteRequest(ctx context.Context, requestID string) error
}

type Server struct {
	store      Store
	disp       Dispatcher
	exec       Executor
	buildingID string
	limit      int
}

// New returns a server whose building-scoped routes default to buildingID. limit caps the
// request listing.
func New(store Store, disp Dispatcher, exec Executor, buildingID string, limit int) *Server {
	return &Server{store: store, disp: disp, exec: exec, buildingID: buildingID, limit: limit}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/building", s.getBuilding)
	mux.HandleFunc("GET /api/elevator", s.listElevators)
	mux.HandleFunc("PUT /api/elevator", s.updateElevator)
	mux.HandleFunc("POST /api/elevator/{id}/move", s.moveElevator)
	mux.HandleFunc("GET /api/request", s.listRequests)
	mux.HandleFunc("POST /api/request", s.createRequest)
	mux.HandleFunc("PUT /api/request/{id}", s.updateRequest)
	mux.HandleFunc("DELETE /api/request/{id}", s.deleteRequest)
	return logRequests(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Writing response failed", "error", err)
	}
}

// writeError maps the error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
