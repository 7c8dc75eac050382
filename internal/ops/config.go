package ops

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"portal/internal/gateway"
	"portal/pkg/conn"
	"portal/pkg/exception"
	"portal/pkg/websocket"
)

// TokenEnv overrides the token of the config file.
const TokenEnv = "DISCORD_BOT_TOKEN"

const defaultStatsInterval = time.Minute

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Presence  PresenceConfig  `json:"presence"`
	Postgres  *PostgresConfig `json:"postgres"`
	Profiling ProfilingConfig `json:"profiling"`
	// StatsInterval is how often metrics are logged, e.g. "1m". "0" disables.
	StatsInterval string `json:"statsInterval"`
}

// GatewayConfig describes the gateway connection. Durations use
// time.ParseDuration syntax.
type GatewayConfig struct {
	Token               string         `json:"token"`
	Intents             int            `json:"intents"`
	APIURL              string         `json:"apiUrl"`
	GatewayURL          string         `json:"gatewayUrl"`
	Version             int            `json:"version"`
	Properties          PropertyConfig `json:"properties"`
	Backoff             BackoffConfig  `json:"backoff"`
	InvalidSessionDelay string         `json:"invalidSessionDelay"`
	MaxProtocolErrors   int            `json:"maxProtocolErrors"`
	ShutdownTimeout     string         `json:"shutdownTimeout"`
	ShutdownResumable   bool           `json:"shutdownResumable"`
	SendPerMinute       int            `json:"sendPerMinute"`
	DispatchQueueSize   int            `json:"dispatchQueueSize"`
	DispatchOverflow    string         `json:"dispatchOverflow"`
	SessionName         string         `json:"sessionName"`
}

// PropertyConfig is sent as connection properties on Identify.
type PropertyConfig struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// BackoffConfig describes the reconnect backoff.
type BackoffConfig struct {
	Min    string  `json:"min"`
	Max    string  `json:"max"`
	Factor float64 `json:"factor"`
	Jitter float64 `json:"jitter"`
}

// PresenceConfig describes the presence rotation.
type PresenceConfig struct {
	Status   string                `json:"status"`
	Interval string                `json:"interval"`
	Entries  []PresenceEntryConfig `json:"entries"`
}

// PresenceEntryConfig is one rotation entry. Kind is one of playing,
// streaming, listening, watching, custom, competing.
type PresenceEntryConfig struct {
	Text string `json:"text"`
	Kind string `json:"kind"`
}

// PostgresConfig enables the session checkpoint store.
type PostgresConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
}

// ProfilingConfig enables continuous profiling when Address is set.
type ProfilingConfig struct {
	Address         string `json:"address"`
	ApplicationName string `json:"applicationName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Gateway       gateway.Config
	SessionName   string
	Postgres      *conn.Option
	Profiling     ProfilingConfig
	StatsInterval time.Duration
}

// Load reads a JSON config file. An empty path uses defaults only, so the
// token must then come from TokenEnv.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := sonic.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return Resolve(cfg, os.Getenv)
}

// Resolve validates cfg and fills defaults. getenv supplies secrets.
func Resolve(cfg FileConfig, getenv func(string) string) (Loaded, error) {
	gw, err := resolveGateway(cfg.Gateway, getenv)
	if err != nil {
		return Loaded{}, err
	}
	if err := resolvePresence(cfg.Presence, &gw); err != nil {
		return Loaded{}, err
	}

	stats, err := parseDuration("statsInterval", cfg.StatsInterval, defaultStatsInterval)
	if err != nil {
		return Loaded{}, err
	}

	profiling := cfg.Profiling
	if profiling.Address != "" && profiling.ApplicationName == "" {
		profiling.ApplicationName = "portal.gatewayd"
	}

	return Loaded{
		Gateway:       gw,
		SessionName:   cfg.Gateway.SessionName,
		Postgres:      resolvePostgres(cfg.Postgres),
		Profiling:     profiling,
		StatsInterval: stats,
	}, nil
}

func resolveGateway(cfg GatewayConfig, getenv func(string) string) (gateway.Config, error) {
	gw := gateway.DefaultConfig()

	token := strings.TrimSpace(cfg.Token)
	if getenv != nil {
		if env := strings.TrimSpace(getenv(TokenEnv)); env != "" {
			token = env
		}
	}
	if token == "" {
		return gw, exception.ErrMissingToken
	}
	if cfg.Intents < 0 {
		return gw, fmt.Errorf("gateway intents must be >= 0")
	}
	gw.Identity = gateway.Identity{
		Token:   token,
		Intents: cfg.Intents,
		Properties: gateway.IdentifyProperties{
			OS:      orDefault(cfg.Properties.OS, "linux"),
			Browser: orDefault(cfg.Properties.Browser, "portal"),
			Device:  orDefault(cfg.Properties.Device, "portal"),
		},
	}

	if cfg.APIURL != "" {
		gw.APIURL = cfg.APIURL
	}
	gw.GatewayURL = cfg.GatewayURL
	if cfg.Version > 0 {
		gw.Version = cfg.Version
	}
	if cfg.MaxProtocolErrors > 0 {
		gw.MaxProtocolErrors = cfg.MaxProtocolErrors
	}
	gw.ShutdownResumable = cfg.ShutdownResumable

	var err error
	if gw.Backoff, err = resolveBackoff(cfg.Backoff, gw.Backoff); err != nil {
		return gw, err
	}
	if gw.InvalidSessionDelay, err = parseDuration("invalidSessionDelay", cfg.InvalidSessionDelay, gw.InvalidSessionDelay); err != nil {
		return gw, err
	}
	if gw.ShutdownTimeout, err = parseDuration("shutdownTimeout", cfg.ShutdownTimeout, gw.ShutdownTimeout); err != nil {
		return gw, err
	}

	if cfg.SendPerMinute < 0 {
		return gw, fmt.Errorf("gateway sendPerMinute must be >= 0")
	}
	if cfg.SendPerMinute > 0 {
		gw.Transport.SendLimit = rate.Every(time.Minute / time.Duration(cfg.SendPerMinute))
		gw.Transport.SendBurst = cfg.SendPerMinute
	}

	if cfg.DispatchQueueSize > 0 {
		gw.DispatchQueueSize = cfg.DispatchQueueSize
	}
	if gw.DispatchOverflow, err = parseOverflow(cfg.DispatchOverflow, gw.DispatchOverflow); err != nil {
		return gw, err
	}
	return gw, nil
}

func resolveBackoff(cfg BackoffConfig, def websocket.Backoff) (websocket.Backoff, error) {
	b := def
	var err error
	if b.Min, err = parseDuration("backoff.min", cfg.Min, def.Min); err != nil {
		return b, err
	}
	if b.Max, err = parseDuration("backoff.max", cfg.Max, def.Max); err != nil {
		return b, err
	}
	if b.Min > b.Max {
		return b, fmt.Errorf("backoff.min %s exceeds backoff.max %s", b.Min, b.Max)
	}
	if cfg.Factor != 0 {
		if cfg.Factor <= 1 {
			return b, fmt.Errorf("backoff.factor must be > 1")
		}
		b.Factor = cfg.Factor
	}
	if cfg.Jitter != 0 {
		if cfg.Jitter < 0 {
			return b, fmt.Errorf("backoff.jitter must be >= 0")
		}
		b.Jitter = cfg.Jitter
	}
	return b, nil
}

func resolvePresence(cfg PresenceConfig, gw *gateway.Config) error {
	if cfg.Status != "" {
		switch cfg.Status {
		case "online", "dnd", "idle", "invisible", "offline":
		default:
			return fmt.Errorf("presence status unknown: %s", cfg.Status)
		}
		gw.PresenceStatus = cfg.Status
	}
	interval, err := parseDuration("presence.interval", cfg.Interval, gw.PresenceInterval)
	if err != nil {
		return err
	}
	gw.PresenceInterval = interval

	entries := make([]gateway.PresenceEntry, 0, len(cfg.Entries))
	for i, e := range cfg.Entries {
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("presence entry %d has no text", i)
		}
		kind, err := parseActivityKind(e.Kind)
		if err != nil {
			return fmt.Errorf("presence entry %d: %w", i, err)
		}
		entries = append(entries, gateway.PresenceEntry{Text: e.Text, Kind: kind})
	}
	gw.Presence = entries
	return nil
}

func resolvePostgres(cfg *PostgresConfig) *conn.Option {
	if cfg == nil {
		return nil
	}
	return &conn.Option{
		Host:       cfg.Host,
		Port:       cfg.Port,
		User:       cfg.User,
		Password:   cfg.Password,
		Database:   cfg.Database,
		SSLMode:    cfg.SSLMode,
		Params:     cfg.Params,
		ConnString: cfg.ConnString,
	}
}

func parseActivityKind(s string) (gateway.ActivityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "playing":
		return gateway.ActivityPlaying, nil
	case "streaming":
		return gateway.ActivityStreaming, nil
	case "listening":
		return gateway.ActivityListening, nil
	case "watching":
		return gateway.ActivityWatching, nil
	case "custom":
		return gateway.ActivityCustom, nil
	case "competing":
		return gateway.ActivityCompeting, nil
	default:
		return 0, fmt.Errorf("activity kind unknown: %s", s)
	}
}

func parseOverflow(s string, def websocket.OverflowPolicy) (websocket.OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "block":
		return websocket.OverflowBlock, nil
	case "dropnewest", "drop_newest":
		return websocket.OverflowDropNewest, nil
	case "dropoldest", "drop_oldest":
		return websocket.OverflowDropOldest, nil
	default:
		return def, fmt.Errorf("dispatch overflow unknown: %s", s)
	}
}

func parseDuration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return def, fmt.Errorf("%s must be >= 0", name)
	}
	return d, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
