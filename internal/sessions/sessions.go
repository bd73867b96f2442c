// Package sessions tracks which athlete the browser session belongs to. The
// session is a client-side reference only; signing out never touches the
// stored credential.
package sessions

import (
	"crypto/rand"
	"net/http"
	"os"

	"github.com/gorilla/sessions"
)

const sessionName = "gruppetto-session"

var store = sessions.NewCookieStore(sessionKey())

func init() {
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 8, // 8 hours
		HttpOnly: true,
		Secure:   os.Getenv("ENV") != "dev" && os.Getenv("ENV") != "test",
		SameSite: http.SameSiteLaxMode,
	}
}

func sessionKey() []byte {
	if key := os.Getenv("SESSION_KEY"); key != "" {
		return []byte(key)
	}
	// Without a configured key, sessions only survive until restart.
	key := make([]byte, 32)
	rand.Read(key) //nolint:errcheck
	return key
}

// CurrentAthlete returns the Strava athlete ID stored in the session.
func CurrentAthlete(r *http.Request) (int64, bool) {
	session, err := store.Get(r, sessionName)
	if err != nil {
		return 0, false
	}
	id, ok := session.Values["athlete_id"].(int64)
	return id, ok
}

// SignIn records the athlete ID in the session cookie.
func SignIn(w http.ResponseWriter, r *http.Request, athleteID int64) error {
	session, _ := store.Get(r, sessionName)
	session.Values["athlete_id"] = athleteID
	return session.Save(r, w)
}

// SignOut clears the session cookie.
func SignOut(w http.ResponseWriter, r *http.Request) error {
	session, _ := store.Get(r, sessionName)
	delete(session.Values, "athlete_id")
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
