// Package strava implements the subset of the Strava API the tracker needs:
// OAuth configuration, activity listing and detail fetches, and heart rate
// zone distributions.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bourbonchasers/gruppetto/internal/client"
	"golang.org/x/oauth2"
)

var (
	BaseURL     = "https://www.strava.com/api/v3"
	OauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		ClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://www.strava.com/oauth/authorize",
			TokenURL: "https://www.strava.com/oauth/token",
		},
		RedirectURL: os.Getenv("STRAVA_REDIRECT_URI"),
		Scopes:      []string{"activity:read_all,profile:read_all,read_all"},
	}
)

// Athlete holds the profile fields we keep for the authenticated athlete.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// SummaryActivity is one entry from the paginated activity listing.
type SummaryActivity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	SportType      string    `json:"sport_type"`
	StartDateLocal time.Time `json:"start_date_local"`
}

// DetailedActivity holds only the fields we persist from a single-activity
// fetch. Heart rate and power metrics are pointers so an absent field is
// distinguishable from a reported zero. Durations are kept as json.Number
// because the API reports them as raw counts of seconds but the width is not
// guaranteed; normalization converts them.
type DetailedActivity struct {
	ID      int64 `json:"id"`
	Athlete struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
	Name               string      `json:"name"`
	SportType          string      `json:"sport_type"`
	Type               string      `json:"type"`
	StartDateLocal     time.Time   `json:"start_date_local"`
	Distance           float64     `json:"distance"`
	MovingTime         json.Number `json:"moving_time"`
	ElapsedTime        json.Number `json:"elapsed_time"`
	TotalElevationGain float64     `json:"total_elevation_gain"`
	AverageSpeed       float64     `json:"average_speed"`
	MaxSpeed           float64     `json:"max_speed"`
	HasHeartrate       bool        `json:"has_heartrate"`
	AverageHeartrate   *float64    `json:"average_heartrate"`
	MaxHeartrate       *float64    `json:"max_heartrate"`
	AverageWatts       *float64    `json:"average_watts"`
	Kilojoules         *float64    `json:"kilojoules"`
	Description        string      `json:"description"`
}

// Zone is one zone distribution from the activity zones endpoint. Strava
// returns one entry per zone type (heartrate, power, pace).
type Zone struct {
	Type                string               `json:"type"`
	DistributionBuckets []DistributionBucket `json:"distribution_buckets"`
}

type DistributionBucket struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Time int64   `json:"time"`
}

// WebhookPayload is the body of a webhook event delivery.
type WebhookPayload struct {
	AspectType     string `json:"aspect_type"`
	EventTime      int64  `json:"event_time"`
	ObjectID       int64  `json:"object_id"`
	ObjectType     string `json:"object_type"`
	OwnerID        int64  `json:"owner_id"`
	SubscriptionID int64  `json:"subscription_id"`
}

// GetAthlete returns the profile of the authenticated athlete.
func GetAthlete(ctx context.Context, c *client.Client) (*Athlete, error) {
	var a Athlete
	req, err := c.NewRequest(ctx, http.MethodGet, "/api/v3/athlete", nil)
	if err != nil {
		return nil, fmt.Errorf("creating get athlete request: %w", err)
	}

	resp, err := c.Do(req, &a)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("getting athlete: %w", err)
	}

	return &a, nil
}

// ListActivities returns up to perPage activity summaries for the
// authenticated athlete, oldest first. A non-zero after restricts the listing
// to activities that started strictly after that epoch timestamp.
func ListActivities(ctx context.Context, c *client.Client, after int64, perPage int) ([]SummaryActivity, error) {
	var activities []SummaryActivity
	path := fmt.Sprintf("/api/v3/athlete/activities?per_page=%d", perPage)
	if after > 0 {
		path = fmt.Sprintf("%s&after=%d", path, after)
	}
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating list activities request: %w", err)
	}

	resp, err := c.Do(req, &activities)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}

	return activities, nil
}

// GetActivity returns the detailed record for a single activity.
func GetActivity(ctx context.Context, c *client.Client, id int64) (*DetailedActivity, error) {
	var a DetailedActivity
	req, err := c.NewRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v3/activities/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("creating get activity request: %w", err)
	}

	resp, err := c.Do(req, &a)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("getting activity %d: %w", id, err)
	}

	return &a, nil
}

// GetActivityZones returns the zone distributions for a single activity.
func GetActivityZones(ctx context.Context, c *client.Client, id int64) ([]Zone, error) {
	var zones []Zone
	req, err := c.NewRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v3/activities/%d/zones", id), nil)
	if err != nil {
		return nil, fmt.Errorf("creating get activity zones request: %w", err)
	}

	resp, err := c.Do(req, &zones)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("getting zones for activity %d: %w", id, err)
	}

	return zones, nil
}
