package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

// Route actions accepted by POST /api/routes/{id}/{action}.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionSuspend = "suspend"
	ActionResume  = "resume"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

var errUnknownAction = errors.New("unknown route action")

func (s *Server) listRoutes(w http.ResponseWriter, _ *http.Request) {
	infos := s.cfg.Engine.RouteInfos()
	for i := range infos {
		infos[i] = s.decorate(infos[i])
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.cfg.Engine.RouteInfo(id)
	if !ok {
		writeError(w, api.NewRouteNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, s.decorate(info))
}

func (s *Server) routeAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")
	ctx := r.Context()
	rc := s.cfg.Engine.RouteController()

	var err error
	switch action {
	case ActionStart:
		err = rc.StartRoute(ctx, id)
	case ActionStop:
		err = rc.StopRoute(ctx, id)
	case ActionSuspend:
		err = rc.SuspendRoute(ctx, id)
	case ActionResume:
		err = rc.ResumeRoute(ctx, id)
	default:
		writeError(w, errUnknownAction)
		return
	}
	if err != nil {
		logging.Warn("AdminServer", "Route %s %s failed: %v", action, id, err)
		writeError(w, err)
		return
	}

	info, ok := s.cfg.Engine.RouteInfo(id)
	if !ok {
		// Removed while the operation ran.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, s.decorate(info))
}

func (s *Server) listInflight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries := s.cfg.Engine.Inflight().Browse(q.Get("route"), limit, q.Get("sort") == "duration")
	out := make([]api.InflightInfo, len(entries))
	for i, e := range entries {
		out[i] = e.Info()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decorate(info api.RouteInfo) api.RouteInfo {
	if s.cfg.Supervisor != nil {
		info.Supervised = s.cfg.Supervisor.IsSupervised(info.ID)
	}
	return info
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case api.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, errUnknownAction):
		status = http.StatusBadRequest
	case api.IsStartupOrderClash(err), api.IsMultipleConsumers(err):
		status = http.StatusConflict
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("AdminServer", "Failed to encode response: %v", err)
	}
}
