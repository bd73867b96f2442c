package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func existingSubscription(ctx context.Context) bool {
	u := fmt.Sprintf("%s/push_subscriptions?client_id=%s&client_secret=%s",
		"https://www.strava.com/api/v3",
		os.Getenv("STRAVA_CLIENT_ID"),
		os.Getenv("STRAVA_CLIENT_SECRET"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logrus.WithError(err).Info("GET strava /push_subscriptions")
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.WithError(err).Error("Failed to read push_subscriptions body")
	}
	var subs []map[string]interface{}
	if err := json.Unmarshal(body, &subs); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal push_subscriptions body")
	}
	if len(subs) == 0 {
		return false
	}
	if subs[0]["callback_url"] == os.Getenv("STRAVA_CALLBACK_URI") {
		return true
	}
	return false
}

// Subscribe registers the webhook callback with Strava unless a subscription
// for our callback URL already exists.
func Subscribe(ctx context.Context) (bool, error) {
	if existingSubscription(ctx) {
		return false, nil
	}

	form := url.Values{
		"client_id":     {os.Getenv("STRAVA_CLIENT_ID")},
		"client_secret": {os.Getenv("STRAVA_CLIENT_SECRET")},
		"callback_url":  {os.Getenv("STRAVA_CALLBACK_URI")},
		"verify_token":  {os.Getenv("STRAVA_VERIFY_TOKEN")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://www.strava.com/api/v3/push_subscriptions", strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("subscription request returned %d: %s", resp.StatusCode, body)
	}

	var sub struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return false, err
	}
	logrus.WithField("subscription_id", sub.ID).Info("subscribed to strava webhook")

	return true, nil
}

// Unsubscribe deletes a push subscription by ID.
func Unsubscribe(ctx context.Context, id int64) error {
	u := fmt.Sprintf("https://www.strava.com/api/v3/push_subscriptions/%d?client_id=%s&client_secret=%s",
		id, os.Getenv("STRAVA_CLIENT_ID"), os.Getenv("STRAVA_CLIENT_SECRET"))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unsubscribe returned %d", resp.StatusCode)
	}
	return nil
}
