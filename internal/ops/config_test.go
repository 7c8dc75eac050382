package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/gateway"
	"portal/pkg/exception"
	"portal/pkg/websocket"
)

func env(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestResolveRequiresToken(t *testing.T) {
	_, err := Resolve(FileConfig{}, env(nil))
	assert.ErrorIs(t, err, exception.ErrMissingToken)
}

func TestResolveEnvTokenOverridesFile(t *testing.T) {
	loaded, err := Resolve(FileConfig{Gateway: GatewayConfig{Token: "file"}}, env(map[string]string{TokenEnv: " env "}))
	require.NoError(t, err)
	assert.Equal(t, "env", loaded.Gateway.Identity.Token)

	loaded, err = Resolve(FileConfig{Gateway: GatewayConfig{Token: "file"}}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "file", loaded.Gateway.Identity.Token)
}

func TestResolveDefaults(t *testing.T) {
	loaded, err := Resolve(FileConfig{}, env(map[string]string{TokenEnv: "tok"}))
	require.NoError(t, err)

	gw := loaded.Gateway
	def := gateway.DefaultConfig()
	assert.Equal(t, def.APIURL, gw.APIURL)
	assert.Equal(t, def.Version, gw.Version)
	assert.Equal(t, def.Backoff, gw.Backoff)
	assert.Equal(t, def.ShutdownTimeout, gw.ShutdownTimeout)
	assert.Equal(t, def.Transport, gw.Transport)
	assert.Equal(t, "linux", gw.Identity.Properties.OS)
	assert.Empty(t, gw.Presence)
	assert.Nil(t, loaded.Postgres)
	assert.Equal(t, time.Minute, loaded.StatsInterval)
	assert.Empty(t, loaded.Profiling.Address)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatewayd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"gateway": {
			"token": "tok",
			"intents": 513,
			"gatewayUrl": "wss://gateway.test",
			"backoff": {"min": "500ms", "max": "30s", "factor": 1.5, "jitter": 0.2},
			"invalidSessionDelay": "2s",
			"shutdownTimeout": "3s",
			"shutdownResumable": true,
			"sendPerMinute": 60,
			"dispatchQueueSize": 16,
			"dispatchOverflow": "dropNewest",
			"sessionName": "bot-1"
		},
		"presence": {
			"status": "idle",
			"interval": "2m",
			"entries": [{"text": "a"}, {"text": "on call", "kind": "custom"}]
		},
		"postgres": {"host": "db", "database": "portal"},
		"profiling": {"address": "http://pyroscope:4040"},
		"statsInterval": "30s"
	}`), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)

	gw := loaded.Gateway
	assert.Equal(t, 513, gw.Identity.Intents)
	assert.Equal(t, "wss://gateway.test", gw.GatewayURL)
	assert.Equal(t, websocket.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 1.5, Jitter: 0.2}, gw.Backoff)
	assert.Equal(t, 2*time.Second, gw.InvalidSessionDelay)
	assert.Equal(t, 3*time.Second, gw.ShutdownTimeout)
	assert.True(t, gw.ShutdownResumable)
	assert.Equal(t, 60, gw.Transport.SendBurst)
	assert.Equal(t, 16, gw.DispatchQueueSize)
	assert.Equal(t, websocket.OverflowDropNewest, gw.DispatchOverflow)
	assert.Equal(t, "idle", gw.PresenceStatus)
	assert.Equal(t, 2*time.Minute, gw.PresenceInterval)
	assert.Equal(t, []gateway.PresenceEntry{
		{Text: "a", Kind: gateway.ActivityPlaying},
		{Text: "on call", Kind: gateway.ActivityCustom},
	}, gw.Presence)
	assert.Equal(t, "bot-1", loaded.SessionName)
	require.NotNil(t, loaded.Postgres)
	assert.Equal(t, "db", loaded.Postgres.Host)
	assert.Equal(t, "portal.gatewayd", loaded.Profiling.ApplicationName)
	assert.Equal(t, 30*time.Second, loaded.StatsInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestResolveRejectsInvalid(t *testing.T) {
	cases := map[string]FileConfig{
		"bad duration":    {Gateway: GatewayConfig{ShutdownTimeout: "soon"}},
		"negative":        {Gateway: GatewayConfig{InvalidSessionDelay: "-1s"}},
		"min over max":    {Gateway: GatewayConfig{Backoff: BackoffConfig{Min: "1m", Max: "1s"}}},
		"factor":          {Gateway: GatewayConfig{Backoff: BackoffConfig{Factor: 0.5}}},
		"overflow":        {Gateway: GatewayConfig{DispatchOverflow: "spill"}},
		"status":          {Presence: PresenceConfig{Status: "busy"}},
		"kind":            {Presence: PresenceConfig{Entries: []PresenceEntryConfig{{Text: "a", Kind: "dancing"}}}},
		"empty entry":     {Presence: PresenceConfig{Entries: []PresenceEntryConfig{{Text: " "}}}},
		"negative intent": {Gateway: GatewayConfig{Intents: -1}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(cfg, env(map[string]string{TokenEnv: "tok"}))
			assert.Error(t, err)
		})
	}
}
