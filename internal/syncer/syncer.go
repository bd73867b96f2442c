// Package syncer implements the incremental activity sync engine. It pulls
// new activities for one athlete at a time, fetching details serially and
// pacing requests to stay inside Strava's rate limits.
package syncer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bourbonchasers/gruppetto/internal/client"
	"github.com/bourbonchasers/gruppetto/internal/normalize"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"github.com/bourbonchasers/gruppetto/internal/strava"
	"github.com/bourbonchasers/gruppetto/internal/token"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	// perPage caps a single sync at one page of activities. A first sync of
	// an account with more history than this needs repeated runs.
	perPage = 100

	shortPause = 1 * time.Second
	longPause  = 5 * time.Second
)

// Result reports the outcome of a sync run.
type Result struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
}

// Engine performs incremental syncs. It is safe to run concurrently for
// different athletes; concurrent runs for the same athlete converge because
// all writes are idempotent upserts.
type Engine struct {
	store  *store.Store
	tokens *token.Manager
	log    logrus.FieldLogger

	baseURL string
	sleep   func(time.Duration)
}

func New(s *store.Store, tokens *token.Manager, log logrus.FieldLogger) *Engine {
	return &Engine{
		store:   s,
		tokens:  tokens,
		log:     log,
		baseURL: strava.BaseURL,
		sleep:   time.Sleep,
	}
}

// SyncAthlete fetches all activities that started after the athlete's most
// recent stored activity and persists them. A single bad record is skipped
// and counted, not fatal; token and listing failures abort the run for this
// athlete only.
func (e *Engine) SyncAthlete(ctx context.Context, athleteID int64) (*Result, error) {
	accessToken, err := e.tokens.EnsureValidToken(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	sc := e.apiClient(ctx, accessToken)

	// The cursor is exclusive: Strava's "after" filter returns activities
	// that started strictly later, so the boundary activity is not refetched.
	var after int64
	latest, ok, err := e.store.LatestActivityDate(athleteID)
	if err != nil {
		return nil, fmt.Errorf("reading sync cursor: %w", err)
	}
	if ok {
		after = latest.Unix()
	}

	summaries, err := strava.ListActivities(ctx, sc, after, perPage)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if len(summaries) == 0 {
		e.log.WithField("athlete_id", athleteID).Info("no new activities to sync")
		return result, nil
	}

	e.log.WithFields(logrus.Fields{
		"athlete_id": athleteID,
		"count":      len(summaries),
	}).Info("syncing new activities")

	for i, summary := range summaries {
		if err := e.syncOne(ctx, sc, athleteID, summary.ID); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"athlete_id":  athleteID,
				"activity_id": summary.ID,
			}).Warn("skipping activity")
			result.Skipped++
		} else {
			result.Synced++
		}

		// Pause between every activity and longer after every 10th.
		if (i+1)%10 == 0 {
			e.sleep(longPause)
		} else {
			e.sleep(shortPause)
		}
	}

	e.log.WithFields(logrus.Fields{
		"athlete_id": athleteID,
		"synced":     result.Synced,
		"skipped":    result.Skipped,
	}).Info("sync complete")

	return result, nil
}

// SyncActivity fetches and persists exactly one activity. This is the path
// the webhook ingress takes for push-delivered events.
func (e *Engine) SyncActivity(ctx context.Context, athleteID, activityID int64) error {
	accessToken, err := e.tokens.EnsureValidToken(ctx, athleteID)
	if err != nil {
		return err
	}
	return e.syncOne(ctx, e.apiClient(ctx, accessToken), athleteID, activityID)
}

// syncOne fetches, normalizes and upserts a single activity plus its heart
// rate zones. A zone fetch or zone write failure is logged and swallowed;
// the activity itself is already persisted at that point.
func (e *Engine) syncOne(ctx context.Context, sc *client.Client, athleteID, activityID int64) error {
	detail, err := strava.GetActivity(ctx, sc, activityID)
	if err != nil {
		return err
	}

	activity, err := normalize.Activity(athleteID, detail)
	if err != nil {
		return err
	}

	if err := e.store.UpsertActivity(activity); err != nil {
		return err
	}

	if !detail.HasHeartrate {
		return nil
	}

	zones, err := strava.GetActivityZones(ctx, sc, activityID)
	if err != nil {
		e.log.WithError(err).WithField("activity_id", activityID).Warn("could not fetch heart rate zones")
		return nil
	}
	if hrz := normalize.HeartRateZones(activityID, zones); hrz != nil {
		if err := e.store.UpsertHeartRateZones(hrz); err != nil {
			e.log.WithError(err).WithField("activity_id", activityID).Warn("could not save heart rate zones")
		}
	}

	return nil
}

func (e *Engine) apiClient(ctx context.Context, accessToken string) *client.Client {
	u, _ := url.Parse(e.baseURL)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return client.NewClient(u, oauth2.NewClient(ctx, ts))
}
