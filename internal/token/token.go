// Package token manages per-athlete OAuth credentials, refreshing access
// tokens proactively before they expire.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/bourbonchasers/gruppetto/internal/store"
	"golang.org/x/oauth2"
)

// RefreshSkew is the safety margin before expiry at which a token is
// refreshed rather than used as-is.
const RefreshSkew = 300 * time.Second

// RefreshError indicates the refresh call against the OAuth endpoint failed,
// for example because the grant was revoked. It is terminal for the current
// sync attempt and must not be retried silently.
type RefreshError struct {
	AthleteID int64
	Err       error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing token for athlete %d: %v", e.AthleteID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Manager hands out valid access tokens for athletes.
type Manager struct {
	store  *store.Store
	config *oauth2.Config

	now func() time.Time
}

func NewManager(s *store.Store, config *oauth2.Config) *Manager {
	return &Manager{store: s, config: config, now: time.Now}
}

// EnsureValidToken returns a non-expired access token for the athlete,
// refreshing and persisting the credential first if it expires within
// RefreshSkew. The refreshed credential is written back in full so profile
// fields survive the update; this is the only store write the call makes.
func (m *Manager) EnsureValidToken(ctx context.Context, athleteID int64) (string, error) {
	athlete, err := m.store.GetAthlete(athleteID)
	if err != nil {
		return "", err
	}

	if m.now().Unix() <= athlete.ExpiresAt-int64(RefreshSkew.Seconds()) {
		return athlete.AccessToken, nil
	}

	// Seeding the token source with only the refresh token forces a refresh
	// call rather than reusing the stale access token.
	src := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: athlete.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return "", &RefreshError{AthleteID: athleteID, Err: err}
	}

	athlete.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		athlete.RefreshToken = refreshed.RefreshToken
	}
	athlete.ExpiresAt = refreshed.Expiry.Unix()

	if err := m.store.UpsertAthlete(athlete); err != nil {
		return "", fmt.Errorf("persisting refreshed credential: %w", err)
	}

	return refreshed.AccessToken, nil
}
