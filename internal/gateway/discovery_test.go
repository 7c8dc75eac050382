package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/pkg/exception"
)

// testContext stands in for testing.T.Context (Go 1.24+): the returned
// context is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func newDiscoveryServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v10/gateway/bot" || r.Header.Get("Authorization") != "Bot tok" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoveryFetch(t *testing.T) {
	srv := newDiscoveryServer(t, http.StatusOK,
		`{"url":"wss://gateway.test","shards":1,"session_start_limit":{"total":1000,"remaining":999,"reset_after":14400000,"max_concurrency":1}}`)
	d := &discovery{client: srv.Client(), apiURL: srv.URL + "/api/v10/", token: "tok", version: 10}

	bot, err := d.fetch(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway.test", bot.URL)
	assert.Equal(t, 1, bot.Shards)
	assert.Equal(t, 999, bot.SessionStartLimit.Remaining)
	assert.Equal(t, int64(14400000), bot.SessionStartLimit.ResetAfter)
}

func TestDiscoveryUnauthorized(t *testing.T) {
	srv := newDiscoveryServer(t, http.StatusUnauthorized, `{"message":"401: Unauthorized"}`)
	d := &discovery{client: srv.Client(), apiURL: srv.URL + "/api/v10", token: "tok", version: 10}

	_, err := d.fetch(testContext(t))
	assert.True(t, errors.Is(err, exception.ErrAuthFailed))
}

func TestDiscoveryFailures(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: ``},
		{name: "bad json", status: http.StatusOK, body: `{"url":`},
		{name: "empty url", status: http.StatusOK, body: `{"url":""}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newDiscoveryServer(t, tc.status, tc.body)
			d := &discovery{client: srv.Client(), apiURL: srv.URL + "/api/v10", token: "tok", version: 10}
			_, err := d.fetch(testContext(t))
			require.Error(t, err)
			assert.False(t, errors.Is(err, exception.ErrAuthFailed))
		})
	}
}

func TestGatewayURLFixesQuery(t *testing.T) {
	raw, err := gatewayURL("wss://gateway.test", 10)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/", u.Path)
	assert.Equal(t, "10", u.Query().Get("v"))
	assert.Equal(t, "json", u.Query().Get("encoding"))

	raw, err = gatewayURL("wss://gateway.test/?v=6&encoding=etf&compress=zlib-stream", 10)
	require.NoError(t, err)
	u, _ = url.Parse(raw)
	assert.Equal(t, "10", u.Query().Get("v"))
	assert.Equal(t, "json", u.Query().Get("encoding"))
	assert.Equal(t, "zlib-stream", u.Query().Get("compress"))

	_, err = gatewayURL("not a url", 10)
	assert.Error(t, err)
}
