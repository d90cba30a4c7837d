package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is package-private so no other package can read or shadow the
// values stored under it.
type contextKey string

const nickKey contextKey = "nick"

// RequireInvite rejects requests without a valid invite token and stores the
// guest nickname in the request context.
//
// The token comes from the "token" query parameter, because browsers cannot
// set headers on a websocket handshake, or from an "Authorization: Bearer"
// header for other clients.
func RequireInvite(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nick, err := tokens.Validate(extractToken(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid invite required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), nickKey, nick)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NickFromContext returns the guest nickname set by RequireInvite.
func NickFromContext(ctx context.Context) (string, bool) {
	nick, ok := ctx.Value(nickKey).(string)
	return nick, ok && nick != ""
}

func extractToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
