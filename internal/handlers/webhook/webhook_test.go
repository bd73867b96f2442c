package webhook

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bourbonchasers/gruppetto/internal/database"
	"github.com/bourbonchasers/gruppetto/internal/model"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"github.com/jarcoal/httpmock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const detailURL = "https://www.strava.com/api/v3/activities/123"

const activityBody = `{
	"id": 123,
	"athlete": {"id": 42},
	"name": "Lunch Ride",
	"sport_type": "Ride",
	"start_date_local": "2024-06-01T12:00:00Z",
	"distance": 25000,
	"moving_time": 3600,
	"elapsed_time": 3900,
	"total_elevation_gain": 300,
	"average_speed": 6.9,
	"max_speed": 14.2,
	"has_heartrate": false
}`

func setupWebhookTest(t *testing.T) *store.Store {
	t.Helper()
	t.Setenv("ENV", "test")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&model.Athlete{}, &model.Activity{}, &model.HeartRateZones{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	database.SetTestDB(db)
	t.Cleanup(func() { database.SetTestDB(nil) })

	r := miniredis.RunT(t)
	t.Setenv("REDIS_URL", fmt.Sprintf("redis://%s", r.Addr()))

	s := store.New(db)
	err = s.UpsertAthlete(&model.Athlete{
		StravaAthleteID: 42,
		AccessToken:     "valid-access",
		RefreshToken:    "valid-refresh",
		ExpiresAt:       time.Now().Add(6 * time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func postEvent(t *testing.T, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	EventHandler(w, req)
	return w.Result()
}

func countActivities(t *testing.T, s *store.Store) int {
	t.Helper()
	activities, err := s.ListActivities(42, 100)
	if err != nil {
		t.Fatal(err)
	}
	return len(activities)
}

func TestEventHandlerCreateEvent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	s := setupWebhookTest(t)

	httpmock.RegisterResponder("GET", detailURL, httpmock.NewStringResponder(200, activityBody))

	res := postEvent(t, `{"object_type": "activity", "aspect_type": "create", "owner_id": 42, "object_id": 123}`)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "OK" {
		t.Errorf("expected body OK, got %q", body)
	}
	if got := countActivities(t, s); got != 1 {
		t.Errorf("expected 1 stored activity, got %d", got)
	}
}

func TestEventHandlerFiltersEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"update aspect ignored", `{"object_type": "activity", "aspect_type": "update", "owner_id": 42, "object_id": 123}`},
		{"delete aspect ignored", `{"object_type": "activity", "aspect_type": "delete", "owner_id": 42, "object_id": 123}`},
		{"athlete events ignored", `{"object_type": "athlete", "aspect_type": "create", "owner_id": 42, "object_id": 42}`},
		{"malformed body ignored", `{"object_type": `},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			httpmock.Activate()
			defer httpmock.DeactivateAndReset()
			s := setupWebhookTest(t)

			res := postEvent(t, tc.body)
			defer res.Body.Close()

			// Every delivery is acknowledged, processed or not.
			if res.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", res.StatusCode)
			}
			if got := countActivities(t, s); got != 0 {
				t.Errorf("expected zero store writes, got %d", got)
			}
			if calls := httpmock.GetTotalCallCount(); calls != 0 {
				t.Errorf("expected no remote calls, got %d", calls)
			}
		})
	}
}

func TestEventHandlerUnknownAthlete(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	s := setupWebhookTest(t)

	res := postEvent(t, `{"object_type": "activity", "aspect_type": "create", "owner_id": 999, "object_id": 123}`)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for unknown athlete, got %d", res.StatusCode)
	}
	if got := countActivities(t, s); got != 0 {
		t.Errorf("expected zero store writes, got %d", got)
	}
}

func TestEventHandlerRepeatEvent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	s := setupWebhookTest(t)

	httpmock.RegisterResponder("GET", detailURL, httpmock.NewStringResponder(200, activityBody))

	event := `{"object_type": "activity", "aspect_type": "create", "owner_id": 42, "object_id": 123}`
	for i := 0; i < 3; i++ {
		res := postEvent(t, event)
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, res.StatusCode)
		}
	}

	// Redeliveries are deduped: only the first fetches the activity.
	if calls := httpmock.GetCallCountInfo()["GET "+detailURL]; calls != 1 {
		t.Errorf("expected 1 detail fetch across redeliveries, got %d", calls)
	}
	if got := countActivities(t, s); got != 1 {
		t.Errorf("expected 1 stored activity, got %d", got)
	}
}

func TestEventHandlerSyncFailureStillAcknowledged(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	setupWebhookTest(t)

	httpmock.RegisterResponder("GET", detailURL,
		httpmock.NewStringResponder(500, `{"message":"server error"}`))

	res := postEvent(t, `{"object_type": "activity", "aspect_type": "create", "owner_id": 42, "object_id": 123}`)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200 despite sync failure, got %d", res.StatusCode)
	}
}
