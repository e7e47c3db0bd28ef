package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/dome/adamant-tradebot/pkg/crypto"
)

// debugUsername and debugPasswordHash gate every API route: this is a
// single-operator bot, so Basic Auth over every route the router
// serves is the auth surface, not just /debug. DEBUG_PASSWORD_HASH holds a
// bcrypt hash produced offline with pkg/crypto.HashPassword, never the
// plaintext password itself.
var (
	debugUsername     = os.Getenv("DEBUG_USERNAME")
	debugPasswordHash = os.Getenv("DEBUG_PASSWORD_HASH")
)

// DebugAuth requires HTTP Basic credentials: the username must match
// DEBUG_USERNAME and the password must verify against the
// DEBUG_PASSWORD_HASH bcrypt hash. If either of the two is unset,
// requests pass through unauthenticated in development (ENV unset or
// "development"); any other ENV value without both configured is
// refused outright.
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || debugPasswordHash == "" {
			if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "auth disabled: set DEBUG_USERNAME and DEBUG_PASSWORD_HASH", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="tradebot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		passMatch := crypto.CheckPasswordMatch(pass, debugPasswordHash)
		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="tradebot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
