package token

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bourbonchasers/gruppetto/internal/model"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"github.com/jarcoal/httpmock"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const tokenURL = "https://www.strava.com/oauth/token"

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&model.Athlete{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	s := store.New(db)
	config := &oauth2.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	return NewManager(s, config), s
}

func seedAthlete(t *testing.T, s *store.Store, expiresAt int64) {
	t.Helper()
	err := s.UpsertAthlete(&model.Athlete{
		StravaAthleteID: 42,
		FirstName:       "Bourbon",
		LastName:        "Chaser",
		AccessToken:     "stored-access",
		RefreshToken:    "stored-refresh",
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func refreshCalls() int {
	return httpmock.GetCallCountInfo()["POST "+tokenURL]
}

func TestEnsureValidTokenRefreshGating(t *testing.T) {
	tests := []struct {
		name          string
		expiresIn     time.Duration
		wantRefreshes int
		wantToken     string
	}{
		{"inside skew buffer triggers one refresh", 200 * time.Second, 1, "refreshed-access"},
		{"outside skew buffer triggers no refresh", 600 * time.Second, 0, "stored-access"},
		{"already expired triggers one refresh", -100 * time.Second, 1, "refreshed-access"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			httpmock.Activate()
			defer httpmock.DeactivateAndReset()

			httpmock.RegisterResponder("POST", tokenURL,
				httpmock.NewStringResponder(200, `{
					"access_token": "refreshed-access",
					"refresh_token": "refreshed-refresh",
					"expires_in": 21600,
					"token_type": "Bearer"
				}`))

			m, s := newTestManager(t)
			now := time.Now()
			m.now = func() time.Time { return now }
			seedAthlete(t, s, now.Add(tc.expiresIn).Unix())

			got, err := m.EnsureValidToken(context.Background(), 42)
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if got != tc.wantToken {
				t.Errorf("expected token %q, got %q", tc.wantToken, got)
			}
			if calls := refreshCalls(); calls != tc.wantRefreshes {
				t.Errorf("expected %d refresh calls, got %d", tc.wantRefreshes, calls)
			}
		})
	}
}

func TestEnsureValidTokenPersistsFullCredential(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", tokenURL,
		httpmock.NewStringResponder(200, `{
			"access_token": "refreshed-access",
			"refresh_token": "refreshed-refresh",
			"expires_in": 21600,
			"token_type": "Bearer"
		}`))

	m, s := newTestManager(t)
	seedAthlete(t, s, time.Now().Add(100*time.Second).Unix())

	if _, err := m.EnsureValidToken(context.Background(), 42); err != nil {
		t.Fatal(err)
	}

	athlete, err := s.GetAthlete(42)
	if err != nil {
		t.Fatal(err)
	}
	if athlete.AccessToken != "refreshed-access" || athlete.RefreshToken != "refreshed-refresh" {
		t.Errorf("credential not persisted: %+v", athlete)
	}
	if athlete.ExpiresAt <= time.Now().Unix() {
		t.Errorf("expected future expiry, got %d", athlete.ExpiresAt)
	}
	// The upsert must not drop profile fields.
	if athlete.FirstName != "Bourbon" || athlete.LastName != "Chaser" {
		t.Errorf("profile fields lost on refresh: %+v", athlete)
	}
}

func TestEnsureValidTokenUnknownAthlete(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.EnsureValidToken(context.Background(), 99)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnsureValidTokenRefreshFailure(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", tokenURL,
		httpmock.NewStringResponder(400, `{"message":"Bad Request","errors":[{"field":"refresh_token","code":"invalid"}]}`))

	m, s := newTestManager(t)
	seedAthlete(t, s, time.Now().Add(100*time.Second).Unix())

	_, err := m.EnsureValidToken(context.Background(), 42)
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected RefreshError, got %v", err)
	}
	if refreshErr.AthleteID != 42 {
		t.Errorf("expected athlete 42 in error, got %d", refreshErr.AthleteID)
	}

	// The stored credential must be untouched after a failed refresh.
	athlete, err := s.GetAthlete(42)
	if err != nil {
		t.Fatal(err)
	}
	if athlete.AccessToken != "stored-access" || athlete.RefreshToken != "stored-refresh" {
		t.Errorf("credential modified after failed refresh: %+v", athlete)
	}
}
