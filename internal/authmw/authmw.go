// Package authmw guards the triage API with a static bearer token shared
// with the chat frontend and the counselor dashboard.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const scheme = "Bearer "

// BearerToken returns middleware that rejects requests whose Authorization
// header does not carry the expected token. Comparison is constant-time.
func BearerToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, scheme) {
				deny(w, "missing or malformed authorization header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[len(scheme):]), expected) != 1 {
				deny(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
