package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireClient(t *testing.T) {
	var seen string
	h := RequireClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stocks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"no client session"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/stocks", nil)
	req = req.WithContext(WithClientID(req.Context(), "abc"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc", seen)
}

func TestClientIDMissing(t *testing.T) {
	assert.Equal(t, "", ClientID(context.Background()))
	assert.Equal(t, "", ClientID(context.WithValue(context.Background(), ClientIDKey, 42)))
}
