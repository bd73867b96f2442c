// Package store provides the database access layer for athletes, activities
// and heart rate zone records.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/bourbonchasers/gruppetto/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps a gorm database handle with the queries the sync core needs.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertAthlete inserts or updates the full athlete record keyed by the
// Strava athlete ID. The whole row is written so a token refresh never drops
// profile fields.
func (s *Store) UpsertAthlete(a *model.Athlete) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strava_athlete_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "first_name", "last_name",
			"access_token", "refresh_token", "expires_at", "updated_at",
		}),
	}).Create(a).Error
	if err != nil {
		return fmt.Errorf("upserting athlete %d: %w", a.StravaAthleteID, err)
	}
	return nil
}

// GetAthlete returns the athlete with the given Strava athlete ID.
func (s *Store) GetAthlete(stravaAthleteID int64) (*model.Athlete, error) {
	var athlete model.Athlete
	err := s.db.First(&athlete, "strava_athlete_id = ?", stravaAthleteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("athlete %d: %w", stravaAthleteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting athlete %d: %w", stravaAthleteID, err)
	}
	return &athlete, nil
}

// ListAthletes returns all connected athletes.
func (s *Store) ListAthletes() ([]model.Athlete, error) {
	var athletes []model.Athlete
	if err := s.db.Order("strava_athlete_id").Find(&athletes).Error; err != nil {
		return nil, fmt.Errorf("listing athletes: %w", err)
	}
	return athletes, nil
}

// UpsertActivity inserts or updates an activity keyed by its Strava activity
// ID. Re-syncing the same activity converges on a single row.
func (s *Store) UpsertActivity(a *model.Activity) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(a).Error
	if err != nil {
		return fmt.Errorf("upserting activity %d: %w", a.ID, err)
	}
	return nil
}

// ListActivities returns the most recent activities for an athlete, newest
// first.
func (s *Store) ListActivities(athleteID int64, limit int) ([]model.Activity, error) {
	var activities []model.Activity
	err := s.db.Where("athlete_id = ?", athleteID).
		Order("start_date_local desc").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("listing activities for athlete %d: %w", athleteID, err)
	}
	return activities, nil
}

// LatestActivityDate returns the start date of the most recent stored
// activity for an athlete. ok is false when the athlete has no activities.
func (s *Store) LatestActivityDate(athleteID int64) (latest time.Time, ok bool, err error) {
	var activity model.Activity
	err = s.db.Where("athlete_id = ?", athleteID).
		Order("start_date_local desc").
		First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("getting latest activity date for athlete %d: %w", athleteID, err)
	}
	return activity.StartDateLocal, true, nil
}

// YearTotals aggregates an athlete's activities for one calendar year.
type YearTotals struct {
	Distance      float64
	ElevationGain float64
	MovingTime    int64
	Activities    int64
}

// TotalsForYear sums distance, elevation gain and moving time over all of an
// athlete's activities that started in the given year.
func (s *Store) TotalsForYear(athleteID int64, year int) (*YearTotals, error) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var totals YearTotals
	err := s.db.Model(&model.Activity{}).
		Select("COALESCE(SUM(distance), 0) AS distance, "+
			"COALESCE(SUM(total_elevation_gain), 0) AS elevation_gain, "+
			"COALESCE(SUM(moving_time), 0) AS moving_time, "+
			"COUNT(*) AS activities").
		Where("athlete_id = ? AND start_date_local >= ? AND start_date_local < ?", athleteID, start, end).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("summing %d totals for athlete %d: %w", year, athleteID, err)
	}
	return &totals, nil
}

// UpsertHeartRateZones inserts or updates the zone distribution for an
// activity.
func (s *Store) UpsertHeartRateZones(z *model.HeartRateZones) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "activity_id"}},
		UpdateAll: true,
	}).Create(z).Error
	if err != nil {
		return fmt.Errorf("upserting heart rate zones for activity %d: %w", z.ActivityID, err)
	}
	return nil
}

// GetHeartRateZones returns the zone distribution for an activity, or
// ErrNotFound when the activity reported no heart rate data.
func (s *Store) GetHeartRateZones(activityID int64) (*model.HeartRateZones, error) {
	var zones model.HeartRateZones
	err := s.db.First(&zones, "activity_id = ?", activityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("heart rate zones for activity %d: %w", activityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting heart rate zones for activity %d: %w", activityID, err)
	}
	return &zones, nil
}
