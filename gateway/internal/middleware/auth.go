package middleware

import (
	"net/http"
	"strings"

	"user-platform/shared/authx"
	"user-platform/shared/errx"
	"user-platform/shared/httpx"
)

// AuthMiddleware verifies the bearer token at the edge. The raw credential
// still travels downstream in RPC metadata so the user service can run its
// own identity gate; this check just fails fast and puts the Identity on the
// request context.
type AuthMiddleware struct {
	Verifier authx.Verifier
	Skip     func(*http.Request) bool
}

func (m AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		if m.Verifier == nil {
			httpx.WriteError(w, http.StatusInternalServerError, "auth verifier not configured", "Internal Server Error")
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			httpx.WriteJSON(w, errx.ErrMissingCredential.StatusCode, errx.ErrMissingCredential)
			return
		}
		token := authHeader
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}
		id, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteJSON(w, errx.ErrInvalidCredential.StatusCode, errx.ErrInvalidCredential)
			return
		}

		next.ServeHTTP(w, r.WithContext(authx.WithIdentity(r.Context(), id)))
	})
}
