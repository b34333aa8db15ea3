package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const CookieName = "JWTToken"

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Optional attaches the user when a valid token is present and lets
// anonymous requests through. An invalid token is treated as anonymous.
func (v *Verifier) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token != "" {
			if u, err := v.Verify(token); err == nil {
				r = r.WithContext(WithUser(r.Context(), u, token))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Required rejects requests without a valid token with 401.
func (v *Verifier) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		token := tokenFromRequest(r)
		u, err := v.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrMissingToken) {
				msg = "missing user authentication"
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u, token)))
	})
}

// RequireAdmin must run after Required.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromContext(r.Context())
		if u == nil || !u.IsAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin access required", "code": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
