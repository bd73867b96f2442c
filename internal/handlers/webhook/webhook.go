// Package webhook implements the event ingress for Strava push
// notifications. New-activity events are synced through the same engine the
// polling path uses; everything else is acknowledged and ignored.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/bourbonchasers/gruppetto/internal/cache"
	"github.com/bourbonchasers/gruppetto/internal/database"
	"github.com/bourbonchasers/gruppetto/internal/logger"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"github.com/bourbonchasers/gruppetto/internal/strava"
	"github.com/bourbonchasers/gruppetto/internal/syncer"
	"github.com/bourbonchasers/gruppetto/internal/token"
	"github.com/sirupsen/logrus"
)

// EventHandler processes a webhook delivery. It always acknowledges with
// 200/"OK" so Strava never retries; processing failures stay internal.
func EventHandler(w http.ResponseWriter, r *http.Request) {
	log := logger.NewLogger()

	var event strava.WebhookPayload
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &event); err != nil {
		log.WithError(err).Error("unable to unmarshal webhook payload")
		ack(w)
		return
	}

	if ok := processEvent(r.Context(), log, &event); !ok {
		log.WithFields(logrus.Fields{
			"athlete_id":  event.OwnerID,
			"activity_id": event.ObjectID,
		}).Warn("webhook event not processed")
	}
	ack(w)
}

func processEvent(ctx context.Context, log logrus.FieldLogger, event *strava.WebhookPayload) bool {
	if event.ObjectType != "activity" || event.AspectType != "create" {
		log.WithFields(logrus.Fields{
			"object_type": event.ObjectType,
			"aspect_type": event.AspectType,
		}).Info("ignoring event")
		return true
	}

	db, err := database.InitDB()
	if err != nil {
		log.WithError(err).Error("unable to connect to database")
		return false
	}
	s := store.New(db)

	// Strava re-delivers events it thinks went unanswered; drop repeats early.
	che, cerr := cache.NewRedisCache(ctx, os.Getenv("REDIS_URL"))
	if cerr != nil {
		log.WithError(cerr).Warn("cache unavailable, processing without dedup")
	} else {
		last, _ := che.Get(ctx, dedupKey(event.OwnerID))
		if last == strconv.FormatInt(event.ObjectID, 10) {
			log.WithField("activity_id", event.ObjectID).Info("ignoring repeat event")
			return true
		}
	}

	if _, err := s.GetAthlete(event.OwnerID); err != nil {
		// The group may receive events for accounts that never connected.
		if errors.Is(err, store.ErrNotFound) {
			log.WithField("athlete_id", event.OwnerID).Warn("athlete not connected, skipping event")
			return false
		}
		log.WithError(err).Error("unable to look up athlete")
		return false
	}

	engine := syncer.New(s, token.NewManager(s, strava.OauthConfig), log)
	if err := engine.SyncActivity(ctx, event.OwnerID, event.ObjectID); err != nil {
		log.WithError(err).WithField("activity_id", event.ObjectID).Error("unable to sync activity")
		return false
	}

	if che != nil {
		if err := che.Set(ctx, dedupKey(event.OwnerID), strconv.FormatInt(event.ObjectID, 10)); err != nil {
			log.WithError(err).Warn("unable to record processed event")
		}
	}

	log.WithFields(logrus.Fields{
		"athlete_id":  event.OwnerID,
		"activity_id": event.ObjectID,
	}).Info("synced webhook activity")
	return true
}

func dedupKey(athleteID int64) string {
	return fmt.Sprintf("last_activity:%d", athleteID)
}

func ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK")) //nolint:errcheck
}
