// Package dashboard serves the group data the frontend renders: connected
// athletes, their recent activities, and aggregate time in heart rate zones.
package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/bourbonchasers/gruppetto/internal/database"
	"github.com/bourbonchasers/gruppetto/internal/logger"
	"github.com/bourbonchasers/gruppetto/internal/model"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// recentLimit caps how many activities per athlete the dashboard returns.
const recentLimit = 30

var titler = cases.Title(language.English)

type activityData struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Sport              string     `json:"sport"`
	SportType          string     `json:"sport_type"`
	StartDateLocal     time.Time  `json:"start_date_local"`
	Distance           float64    `json:"distance"`
	MovingTime         int64      `json:"moving_time"`
	ElapsedTime        int64      `json:"elapsed_time"`
	TotalElevationGain float64    `json:"total_elevation_gain"`
	AverageHeartrate   *float64   `json:"average_heartrate"`
	AverageWatts       *float64   `json:"average_watts"`
}

type zoneTotals struct {
	Zone1Time int64 `json:"zone_1_time"`
	Zone2Time int64 `json:"zone_2_time"`
	Zone3Time int64 `json:"zone_3_time"`
	Zone4Time int64 `json:"zone_4_time"`
	Zone5Time int64 `json:"zone_5_time"`
}

type yearTotals struct {
	Year          int     `json:"year"`
	Distance      float64 `json:"distance"`
	ElevationGain float64 `json:"elevation_gain"`
	MovingTime    int64   `json:"moving_time"`
	Activities    int64   `json:"activities"`
}

type athleteData struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Username   string         `json:"username"`
	Activities []activityData `json:"activities"`
	ZoneTotals zoneTotals     `json:"zone_totals"`
	YearTotals yearTotals     `json:"year_totals"`
}

// DashboardHandler returns the group dashboard data as JSON.
func DashboardHandler(w http.ResponseWriter, r *http.Request) {
	log := logger.NewLogger()

	db, err := database.InitDB()
	if err != nil {
		log.WithError(err).Error("unable to connect to database")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s := store.New(db)

	athletes, err := s.ListAthletes()
	if err != nil {
		log.WithError(err).Error("unable to list athletes")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data := make([]athleteData, 0, len(athletes))
	for _, athlete := range athletes {
		ad, err := athleteDashboard(s, &athlete)
		if err != nil {
			log.WithError(err).WithField("athlete_id", athlete.StravaAthleteID).Error("unable to load athlete data")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		data = append(data, *ad)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"athletes": data}); err != nil {
		log.WithError(err).Error("encoding dashboard data")
	}
}

func athleteDashboard(s *store.Store, athlete *model.Athlete) (*athleteData, error) {
	activities, err := s.ListActivities(athlete.StravaAthleteID, recentLimit)
	if err != nil {
		return nil, err
	}

	year := time.Now().Year()
	totals, err := s.TotalsForYear(athlete.StravaAthleteID, year)
	if err != nil {
		return nil, err
	}

	ad := &athleteData{
		ID:         athlete.StravaAthleteID,
		Name:       strings.TrimSpace(fmt.Sprintf("%s %s", athlete.FirstName, athlete.LastName)),
		Username:   athlete.Username,
		Activities: make([]activityData, 0, len(activities)),
		YearTotals: yearTotals{
			Year:          year,
			Distance:      totals.Distance,
			ElevationGain: totals.ElevationGain,
			MovingTime:    totals.MovingTime,
			Activities:    totals.Activities,
		},
	}

	for _, activity := range activities {
		ad.Activities = append(ad.Activities, activityData{
			ID:                 activity.ID,
			Name:               activity.Name,
			Sport:              sportLabel(activity.SportType),
			SportType:          activity.SportType,
			StartDateLocal:     activity.StartDateLocal,
			Distance:           activity.Distance,
			MovingTime:         activity.MovingTime,
			ElapsedTime:        activity.ElapsedTime,
			TotalElevationGain: activity.TotalElevationGain,
			AverageHeartrate:   activity.AverageHeartrate,
			AverageWatts:       activity.AverageWatts,
		})

		zones, err := s.GetHeartRateZones(activity.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ad.ZoneTotals.Zone1Time += zones.Zone1Time
		ad.ZoneTotals.Zone2Time += zones.Zone2Time
		ad.ZoneTotals.Zone3Time += zones.Zone3Time
		ad.ZoneTotals.Zone4Time += zones.Zone4Time
		ad.ZoneTotals.Zone5Time += zones.Zone5Time
	}

	return ad, nil
}

// sportLabel turns a sport type like "VirtualRide" into "Virtual Ride".
func sportLabel(sportType string) string {
	var b strings.Builder
	for i, r := range sportType {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return titler.String(b.String())
}
