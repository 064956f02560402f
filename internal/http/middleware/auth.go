package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const ClientIDKey contextKey = "client_id"

func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ClientIDKey, id)
}

// ClientID returns the client id stored on ctx, or ""
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(ClientIDKey).(string)
	return id
}

// RequireClient rejects requests that carry no client id
func RequireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClientID(r.Context()) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "no client session"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
