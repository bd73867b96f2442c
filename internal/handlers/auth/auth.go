// Package auth implements the OAuth connect flow: the authorize redirect,
// the code exchange, and persisting the resulting credential.
package auth

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/bourbonchasers/gruppetto/internal/client"
	"github.com/bourbonchasers/gruppetto/internal/database"
	"github.com/bourbonchasers/gruppetto/internal/model"
	"github.com/bourbonchasers/gruppetto/internal/sessions"
	"github.com/bourbonchasers/gruppetto/internal/store"
	"github.com/bourbonchasers/gruppetto/internal/strava"
	"golang.org/x/oauth2"
)

func AuthHandler(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		slog.Error("unable to parse form", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	state := r.Form.Get("state")
	stateToken := os.Getenv("STATE_TOKEN")

	if state == "" {
		if _, ok := sessions.CurrentAthlete(r); ok {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		u := strava.OauthConfig.AuthCodeURL(stateToken)
		slog.Info("redirecting to strava auth", "url", u)
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	if state != stateToken {
		http.Error(w, "state invalid", http.StatusBadRequest)
		return
	}
	code := r.Form.Get("code")
	if code == "" {
		http.Error(w, "code not found", http.StatusBadRequest)
		return
	}
	token, err := strava.OauthConfig.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("token exchange failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	athlete := athleteFromToken(token)
	if athlete == nil {
		// Older token responses omit the athlete summary; fetch the profile.
		athlete, err = fetchProfile(r, token)
		if err != nil {
			slog.Error("unable to get athlete info", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	athlete.AccessToken = token.AccessToken
	athlete.RefreshToken = token.RefreshToken
	athlete.ExpiresAt = token.Expiry.Unix()

	db, err := database.InitDB()
	if err != nil {
		slog.Error("unable to connect to database", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := store.New(db).UpsertAthlete(athlete); err != nil {
		slog.Error("unable to store credential", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	slog.Info("successfully authenticated", "username", athlete.Username)

	if err := sessions.SignIn(w, r, athlete.StravaAthleteID); err != nil {
		slog.Error("unable to save session", "error", err)
	}

	// Make sure the push subscription exists so new activities arrive
	// without polling. Not fatal: polling still works without it.
	if _, err := Subscribe(r.Context()); err != nil {
		slog.Error("failed to subscribe to strava webhook", "error", err)
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// LogoutHandler clears the browser session. The stored credential is kept so
// syncs keep working for the group.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := sessions.SignOut(w, r); err != nil {
		slog.Error("unable to clear session", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// athleteFromToken builds the athlete record from the summary Strava embeds
// in the token response, or nil when it is missing.
func athleteFromToken(token *oauth2.Token) *model.Athlete {
	info, ok := token.Extra("athlete").(map[string]any)
	if !ok {
		return nil
	}
	id, ok := info["id"].(float64)
	if !ok || id == 0 {
		return nil
	}
	str := func(key string) string {
		s, _ := info[key].(string)
		return s
	}
	return &model.Athlete{
		StravaAthleteID: int64(id),
		Username:        str("username"),
		FirstName:       str("firstname"),
		LastName:        str("lastname"),
	}
}

func fetchProfile(r *http.Request, token *oauth2.Token) (*model.Athlete, error) {
	surl, _ := url.Parse(strava.BaseURL)
	sc := client.NewClient(surl, oauth2.NewClient(r.Context(), oauth2.StaticTokenSource(token)))
	profile, err := strava.GetAthlete(r.Context(), sc)
	if err != nil {
		return nil, err
	}
	return &model.Athlete{
		StravaAthleteID: profile.ID,
		Username:        profile.Username,
		FirstName:       profile.FirstName,
		LastName:        profile.LastName,
	}, nil
}
