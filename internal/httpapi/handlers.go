package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/coordinator"
	"github.com/matchdesk/matchdesk/internal/match"
	"github.com/matchdesk/matchdesk/internal/store"
)

// maxTelemetryBody bounds a single GSI push. Payloads are a few tens
// of kilobytes; anything past this is garbage.
const maxTelemetryBody = 4 << 20

// defaultMaps is the active competitive map pool offered to the match
// form.
var defaultMaps = []string{
	"de_mirage",
	"de_dust2",
	"de_inferno",
	"de_nuke",
	"de_train",
	"de_overpass",
	"de_vertigo",
	"de_ancient",
	"de_anubis",
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// IngestTelemetry accepts the game client's push feed. It always
// answers 200: the feed fires at game-tick granularity and the client
// does nothing useful with an error.
func IngestTelemetry(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTelemetryBody))
		if err != nil {
			d.Logger.Warn("reading telemetry body", zap.Error(err))
			w.WriteHeader(http.StatusOK)
			return
		}
		d.Coord.IngestTelemetry(body)
		w.WriteHeader(http.StatusOK)
	}
}

func GetMaps(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, defaultMaps)
}

func ListMatches(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matches, err := d.Store.ListAll(r.Context())
		if err != nil {
			respondStoreError(d, w, err)
			return
		}
		respondJSON(w, http.StatusOK, matches)
	}
}

func GetMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := d.Store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondStoreError(d, w, err)
			return
		}
		respondJSON(w, http.StatusOK, m)
	}
}

func GetCurrentMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := d.Store.GetCurrent(r.Context())
		if err != nil {
			respondStoreError(d, w, err)
			return
		}
		if m == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		respondJSON(w, http.StatusOK, m)
	}
}

func CreateMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m match.Match
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			respondError(w, http.StatusBadRequest, "invalid match payload")
			return
		}
		if !match.ValidType(m.MatchType) {
			m.MatchType = match.FallbackType
		}
		if len(m.Vetos) == 0 {
			m.Vetos = match.DefaultVetos(m.MatchType)
		}
		id, err := d.Store.Create(r.Context(), m)
		if err != nil {
			respondStoreError(d, w, err)
			return
		}
		respondJSON(w, http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: id})
	}
}

func UpdateMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m match.Match
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			respondError(w, http.StatusBadRequest, "invalid match payload")
			return
		}
		m.ID = chi.URLParam(r, "id")
		if !match.ValidType(m.MatchType) {
			m.MatchType = match.FallbackType
		}

		// A match-type change re-derives the veto sequence shape while
		// keeping whatever the operator already entered, index-aligned.
		m.Vetos = match.MergeTemplate(m.Vetos, m.MatchType)

		// Re-derive side win counts from concluded vetos so a veto
		// edit and the series score cannot drift apart.
		if left, right, ok := match.SeriesWins(m.Vetos, m.Left.ID, m.Right.ID); ok {
			m.Left.Wins = left
			m.Right.Wins = right
		}

		if err := d.Store.Update(r.Context(), m); err != nil {
			respondStoreError(d, w, err)
			return
		}
		respondJSON(w, http.StatusOK, struct {
			ID string `json:"id"`
		}{ID: m.ID})
	}
}

func SetCurrentMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Current bool `json:"current"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		id := chi.URLParam(r, "id")
		if err := d.Store.SetCurrent(r.Context(), id, body.Current); err != nil {
			respondStoreError(d, w, err)
			return
		}
		respondJSON(w, http.StatusOK, struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		}{ID: id, Current: body.Current})
	}
}

func RemoveMatch(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
			respondStoreError(d, w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func CanReverseSides(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := d.Coord.CanReverseSides(r.Context())
		if err != nil {
			respondStoreError(d, w, err)
			return
		}
		respondJSON(w, http.StatusOK, struct {
			CanReverse bool `json:"canReverse"`
		}{CanReverse: ok})
	}
}

func ReverseSide(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.Coord.ReverseSide(r.Context(), chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, coordinator.ErrReverseUnavailable):
			respondError(w, http.StatusConflict, err.Error())
		case err != nil:
			respondStoreError(d, w, err)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

func respondStoreError(d Deps, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrCurrentConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		d.Logger.Error("store operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
