package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/tickerscope/internal/apierr"
	"github.com/briangreenhill/tickerscope/internal/stocks"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeFirst reads the JSON document at the start of out
func decodeFirst(t *testing.T, out string, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(out)).Decode(v))
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tickerscope "+version+"\n", out)
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantType  apierr.Type
		wantRetry bool
		wantMsg   string
	}{
		{
			name:      "rate limited",
			args:      []string{"--status", "429", "--body", `{"error":"slow down"}`},
			wantType:  apierr.TypeRateLimit,
			wantRetry: true,
			wantMsg:   apierr.MsgRateLimit,
		},
		{
			name:     "bad key",
			args:     []string{"--status", "401", "--body", `{"error":"Unknown API Key"}`},
			wantType: apierr.TypeAuth,
			wantMsg:  apierr.MsgAuth,
		},
		{
			name:     "status without structured body",
			args:     []string{"--status", "404"},
			wantType: apierr.TypeOther,
			wantMsg:  "request failed with status code 404",
		},
		{
			name:      "network message",
			args:      []string{"--message", "dial tcp: connection refused"},
			wantType:  apierr.TypeNetwork,
			wantRetry: true,
			wantMsg:   apierr.MsgNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, append([]string{"classify"}, tt.args...)...)
			require.NoError(t, err)

			var info apierr.Info
			decodeFirst(t, out, &info)
			assert.Equal(t, tt.wantType, info.Type)
			assert.Equal(t, tt.wantRetry, info.Retryable)
			assert.Equal(t, tt.wantMsg, info.Message)
			assert.Contains(t, out, "[classify]")
		})
	}
}

func TestClassifyCommandNeedsInput(t *testing.T) {
	_, err := runCmd(t, "classify")
	assert.Error(t, err)
}

func mockPolygon(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("apiKey") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"ERROR","error":"Unknown API Key"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if q.Get("cursor") == "p2" {
			_, _ = w.Write([]byte(`{"results":[{"ticker":"AMZN","name":"Amazon.com Inc","market":"stocks"}],"count":1,"status":"OK"}`))
			return
		}
		resp := map[string]any{
			"results": []map[string]any{
				{"ticker": "AAPL", "name": "Apple Inc.", "market": q.Get("market"), "primary_exchange": "XNAS", "type": "CS"},
				{"ticker": "ABNB", "name": "Airbnb, Inc.", "market": q.Get("market"), "primary_exchange": "XNAS", "type": "CS"},
			},
			"count":    2,
			"next_url": srv.URL + "/v3/reference/tickers?cursor=p2",
			"status":   "OK",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setSearchEnv(t *testing.T, baseURL, key string) {
	t.Helper()
	t.Setenv("POLYGON_API_KEY", key)
	t.Setenv("POLYGON_BASE_URL", baseURL)
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
}

func TestSearchCommandFollowsPages(t *testing.T) {
	srv := mockPolygon(t)
	setSearchEnv(t, srv.URL, "test-key")

	out, err := runCmd(t, "search", "a", "--pages", "3", "--json")
	require.NoError(t, err)

	var view stocks.View
	decodeFirst(t, out, &view)
	require.Len(t, view.Items, 3)
	assert.Equal(t, "AAPL", view.Items[0].Ticker)
	assert.Equal(t, "AMZN", view.Items[2].Ticker)
	assert.False(t, view.HasMoreItems)
}

func TestSearchCommandTable(t *testing.T) {
	srv := mockPolygon(t)
	setSearchEnv(t, srv.URL, "test-key")

	out, err := runCmd(t, "search", "a", "--market", "crypto")
	require.NoError(t, err)
	assert.Contains(t, out, "TICKER")
	assert.Contains(t, out, "Apple Inc.")
	assert.Contains(t, out, "crypto")
	assert.Contains(t, out, "2 tickers, more available")
}

func TestSearchCommandRejectsFilters(t *testing.T) {
	srv := mockPolygon(t)
	setSearchEnv(t, srv.URL, "test-key")

	_, err := runCmd(t, "search", "a", "--order", "sideways")
	assert.ErrorIs(t, err, stocks.ErrInvalidFilters)
}

func TestSearchCommandReportsClassifiedError(t *testing.T) {
	srv := mockPolygon(t)
	setSearchEnv(t, srv.URL, "wrong-key")

	_, err := runCmd(t, "search", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), apierr.MsgAuth)
	assert.Contains(t, err.Error(), "[auth]")
}

func TestSearchCommandLimit(t *testing.T) {
	limits := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limits <- r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"ticker":"AAPL"}],"status":"OK"}`))
	}))
	t.Cleanup(srv.Close)
	setSearchEnv(t, srv.URL, "test-key")
	t.Setenv("PAGE_SIZE", "50")

	_, err := runCmd(t, "search", "a", "--limit", "7")
	require.NoError(t, err)
	assert.Equal(t, "7", <-limits)

	_, err = runCmd(t, "search", "b")
	require.NoError(t, err)
	assert.Equal(t, "50", <-limits)
}
