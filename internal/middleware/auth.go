package middleware

import (
	"net/http"

	"github.com/bourbonchasers/gruppetto/internal/sessions"
)

// RequireAthlete is a middleware that checks the request belongs to a
// signed-in athlete before letting it through.
func RequireAthlete(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sessions.CurrentAthlete(r); !ok {
			http.Redirect(w, r, "/auth", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}
