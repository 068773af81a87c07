// Package api exposes the dashboard's read endpoints and the cache admin
// surface over HTTP. Handlers are thin: they parse the request, call the
// store and encode JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/paddockdata/gridbase/internal/monitoring"
	"github.com/paddockdata/gridbase/internal/store"
)

type Server struct {
	store *store.Store
}

func NewServer(st *store.Store) *Server {
	return &Server{store: st}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /races", s.listRaces)
	mux.HandleFunc("GET /races/{season}/{round}", s.getRace)
	mux.HandleFunc("GET /races/{id}/sessions", s.listSessions)
	mux.HandleFunc("GET /races/{id}/results", s.listResults)
	mux.HandleFunc("GET /races/{id}/qualifying", s.listQualifying)
	mux.HandleFunc("GET /races/{id}/sprint", s.listSprint)
	mux.HandleFunc("GET /races/{id}/laps", s.listLaps)
	mux.HandleFunc("GET /races/{id}/stints", s.listStints)
	mux.HandleFunc("GET /races/{id}/predictions", s.listPredictions)
	mux.HandleFunc("GET /drivers", s.listDrivers)
	mux.HandleFunc("GET /teams", s.listTeams)
	mux.HandleFunc("GET /cache/stats", s.cacheStats)
	mux.HandleFunc("POST /cache/flush", s.cacheFlush)
	mux.HandleFunc("POST /cache/invalidate", s.cacheInvalidate)
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: encode response: %v", err)
	}
}

// writeError maps store errors onto HTTP statuses. A database outage is 503
// so the dashboard can distinguish "no data" from "data unavailable".
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrUnavailable):
		http.Error(w, "data unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return v, err == nil
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func (s *Server) listRaces(w http.ResponseWriter, r *http.Request) {
	races, err := s.store.GetRaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, races)
}

func (s *Server) getRace(w http.ResponseWriter, r *http.Request) {
	season, ok1 := pathInt64(r, "season")
	round, ok2 := pathInt64(r, "round")
	if !ok1 || !ok2 {
		http.Error(w, "season and round must be integers", http.StatusBadRequest)
		return
	}
	race, err := s.store.GetRace(r.Context(), int(season), int(round))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, race)
}

// raceScoped factors the shared shape of the per-race list endpoints.
func (s *Server) raceScoped(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, raceID int64) (interface{}, error)) {
	raceID, ok := pathInt64(r, "id")
	if !ok {
		http.Error(w, "race id must be an integer", http.StatusBadRequest)
		return
	}
	v, err := fetch(r.Context(), raceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, v)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetSessions(ctx, raceID)
	})
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetRaceResults(ctx, raceID)
	})
}

func (s *Server) listQualifying(w http.ResponseWriter, r *http.Request) {
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetQualifyingResults(ctx, raceID)
	})
}

func (s *Server) listSprint(w http.ResponseWriter, r *http.Request) {
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetSprintResults(ctx, raceID)
	})
}

func (s *Server) listLaps(w http.ResponseWriter, r *http.Request) {
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetLaps(ctx, store.LapFilter{
			RaceID:       raceID,
			SessionType:  r.URL.Query().Get("session"),
			DriverNumber: queryInt(r, "driver"),
		})
	})
}

func (s *Server) listStints(w http.ResponseWriter, r *http.Request) {
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetTyreStints(ctx, store.LapFilter{
			RaceID:       raceID,
			SessionType:  r.URL.Query().Get("session"),
			DriverNumber: queryInt(r, "driver"),
		})
	})
}

func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session == "" {
		session = "R"
	}
	s.raceScoped(w, r, func(ctx context.Context, raceID int64) (interface{}, error) {
		return s.store.GetPredictions(ctx, raceID, session)
	})
}

func (s *Server) listDrivers(w http.ResponseWriter, r *http.Request) {
	season := queryInt(r, "season")
	if season == 0 {
		http.Error(w, "season query parameter is required", http.StatusBadRequest)
		return
	}
	drivers, err := s.store.GetDrivers(r.Context(), season)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, drivers)
}

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	season := queryInt(r, "season")
	if season == 0 {
		http.Error(w, "season query parameter is required", http.StatusBadRequest)
		return
	}
	teams, err := s.store.GetTeams(r.Context(), season)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, teams)
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.store.CacheStats(r.Context()))
}

func (s *Server) cacheFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.store.FlushCache(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "flushed"})
}

func (s *Server) cacheInvalidate(w http.ResponseWriter, r *http.Request) {
	pattern := r.FormValue("pattern")
	if pattern == "" {
		http.Error(w, "pattern form value is required", http.StatusBadRequest)
		return
	}
	removed := s.store.Invalidate(r.Context(), pattern)
	writeJSON(w, map[string]int{"removed": removed})
}
