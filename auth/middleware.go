package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"chat-hub/errors"
)

// Middleware rejects requests without a valid token.
// Browsers cannot set headers on a WebSocket handshake, so a token query parameter is accepted too.
func (t *Tokens) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		userID, err := t.ValidateToken(token)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": errors.ErrUnauthenticated.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
