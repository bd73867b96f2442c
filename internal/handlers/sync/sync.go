// Package sync implements the user-triggered sync endpoint.
package sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bourbonchasers/gruppetto/internal/database"
	"github.com/bourbonchasers/gruppetto/internal/logger"
	"github.com/bourbonchasers/gruppetto/internal/sessions"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"github.com/bourbonchasers/gruppetto/internal/strava"
	"github.com/bourbonchasers/gruppetto/internal/syncer"
	"github.com/bourbonchasers/gruppetto/internal/token"
)

// SyncHandler runs a full incremental sync for one athlete and reports the
// counts. The sync runs in-request: per-record pacing means a large batch
// takes a while, which is intentional given the upstream rate limits.
func SyncHandler(w http.ResponseWriter, r *http.Request) {
	log := logger.NewLogger()

	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	athleteID, ok := requestedAthlete(r)
	if !ok {
		http.Error(w, "athlete_id missing", http.StatusBadRequest)
		return
	}

	db, err := database.InitDB()
	if err != nil {
		log.WithError(err).Error("unable to connect to database")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s := store.New(db)

	engine := syncer.New(s, token.NewManager(s, strava.OauthConfig), log)
	result, err := engine.SyncAthlete(r.Context(), athleteID)
	if err != nil {
		var refreshErr *token.RefreshError
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "athlete not connected", http.StatusNotFound)
		case errors.As(err, &refreshErr):
			log.WithError(err).Error("token refresh failed, athlete needs to reconnect")
			http.Error(w, "token refresh failed", http.StatusBadGateway)
		default:
			log.WithError(err).Error("sync failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.WithError(err).Error("encoding sync result")
	}
}

// requestedAthlete resolves the target athlete from the form, falling back
// to the signed-in session.
func requestedAthlete(r *http.Request) (int64, bool) {
	if err := r.ParseForm(); err == nil {
		if v := r.Form.Get("athlete_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err == nil && id > 0 {
				return id, true
			}
			return 0, false
		}
	}
	return sessions.CurrentAthlete(r)
}
