package model

import (
	"time"

	"gorm.io/gorm"
)

// Athlete represents a group member in the database, including the OAuth
// credential used to act on their behalf. The credential fields are mutated
// in place on every token refresh; the record itself is never deleted.
type Athlete struct {
	gorm.Model
	StravaAthleteID int64 `gorm:"uniqueIndex"`
	Username        string
	FirstName       string
	LastName        string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       int64 // epoch seconds
}

// Activity represents a synced Strava activity, keyed by Strava's activity ID
// so re-syncing the same activity updates the existing row.
type Activity struct {
	ID                 int64 `gorm:"primaryKey"`
	AthleteID          int64 `gorm:"index"`
	Name               string
	SportType          string
	StartDateLocal     time.Time `gorm:"index"`
	Distance           float64
	MovingTime         int64 // seconds
	ElapsedTime        int64 // seconds
	TotalElevationGain float64
	AverageSpeed       float64
	MaxSpeed           float64
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	AverageWatts       *float64
	Kilojoules         *float64
	Description        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HeartRateZones represents the time-in-zone distribution for one activity.
// A row only exists when the activity reported heart rate data; absence of a
// row is meaningful and distinct from a zero-filled one.
type HeartRateZones struct {
	ActivityID int64 `gorm:"primaryKey"`
	Zone1Time  int64 // seconds
	Zone2Time  int64
	Zone3Time  int64
	Zone4Time  int64
	Zone5Time  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
