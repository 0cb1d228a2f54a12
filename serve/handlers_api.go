package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/everydev1618/rigel"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// statusClientClosedRequest is nginx's status for a client that went away.
	statusClientClosedRequest = 499
)

// --- Solve ---

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Problem == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "problem is required"})
		return
	}

	runs := req.Runs
	if runs == 0 {
		runs = s.cfg.Runs
	}
	if runs < 1 || runs > s.cfg.MaxRuns {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("runs must be between 1 and %d", s.cfg.MaxRuns),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SolveTimeout)
	defer cancel()

	result, err := s.pipeline.Solve(ctx, rigel.NewProblem(req.Problem), runs)
	if err != nil {
		status := solveStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("solve failed", "error", err)
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: rigel.ErrorKind(err)})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// solveStatus maps a Solve error to an HTTP status.
func solveStatus(err error) int {
	switch {
	case errors.Is(err, rigel.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, rigel.ErrNoCandidateAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rigel.ErrInvokerTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rigel.ErrInvokerUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// --- Run History ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "run not found", RunID: id})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- Config & Stats ---

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	roles := s.doc.Roles()
	names := make([]string, 0, len(roles))
	for name := range roles {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ConfigResponse{
		Name:        s.doc.Name,
		Description: s.doc.Description,
		Summary:     s.doc.Summary(),
		Rounds:      s.cfg.Runs,
		Selection:   s.doc.SelectionStrategy(),
		Verify:      s.doc.Verifies(),
		Roles:       make([]RoleResponse, 0, len(names)),
	}
	for _, name := range names {
		role := roles[name]
		resp.Roles = append(resp.Roles, RoleResponse{
			Name:        role.Name,
			Label:       role.Label,
			Goal:        role.Goal,
			Model:       role.Model,
			Temperature: role.Temperature,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	runStats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	stats := StatsResponse{
		RunStats:    runStats,
		Subscribers: s.broker.Subscribers(),
		Uptime:      time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if s.cfg.Usage != nil {
		stats.Usage = s.cfg.Usage()
	}

	writeJSON(w, http.StatusOK, stats)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
