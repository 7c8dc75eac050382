package gateway

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"portal/internal/obs"
	"portal/pkg/exception"
	"portal/pkg/websocket"
)

const (
	DefaultPresenceInterval  = 5 * time.Minute
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultDispatchQueueSize = 1024
	checkpointTimeout        = 5 * time.Second
)

// Config defines the gateway client runtime configuration.
type Config struct {
	Identity Identity
	// APIURL is the REST base used for endpoint discovery.
	APIURL  string
	Version int
	// GatewayURL skips discovery when set.
	GatewayURL string

	PresenceStatus   string
	Presence         []PresenceEntry
	PresenceInterval time.Duration

	Backoff             websocket.Backoff
	InvalidSessionDelay time.Duration
	MaxProtocolErrors   int

	ShutdownTimeout time.Duration
	// ShutdownResumable closes with CloseResumable on shutdown so the
	// checkpointed session can be resumed by the next process.
	ShutdownResumable bool

	Transport         websocket.Option
	DispatchQueueSize int
	DispatchOverflow  websocket.OverflowPolicy
}

// DefaultConfig returns a Config with every default filled in except the
// identity.
func DefaultConfig() Config {
	return Config{
		APIURL:              DefaultAPIURL,
		Version:             DefaultVersion,
		PresenceStatus:      DefaultPresenceStatus,
		PresenceInterval:    DefaultPresenceInterval,
		Backoff:             websocket.DefaultBackoff(),
		InvalidSessionDelay: DefaultInvalidSessionDelay,
		MaxProtocolErrors:   DefaultMaxProtocolErrors,
		ShutdownTimeout:     DefaultShutdownTimeout,
		Transport:           websocket.DefaultOption(),
		DispatchQueueSize:   DefaultDispatchQueueSize,
		DispatchOverflow:    websocket.OverflowDropOldest,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.APIURL == "" {
		cfg.APIURL = def.APIURL
	}
	if cfg.Version <= 0 {
		cfg.Version = def.Version
	}
	if cfg.Backoff == (websocket.Backoff{}) {
		cfg.Backoff = def.Backoff
	}
	if cfg.InvalidSessionDelay == 0 {
		cfg.InvalidSessionDelay = def.InvalidSessionDelay
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Transport == (websocket.Option{}) {
		cfg.Transport = def.Transport
	}
	if cfg.DispatchQueueSize <= 0 {
		cfg.DispatchQueueSize = def.DispatchQueueSize
	}
	return cfg
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHTTPClient replaces the client used for endpoint discovery.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.discovery.client = hc
	}
}

// WithHandler sets the receiver of dispatch events.
func WithHandler(h Handler) Option {
	return func(c *Client) {
		c.handler = h
	}
}

// WithStore enables session checkpoints.
func WithStore(s SessionStore) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithRand makes jitter deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(c *Client) {
		c.rng = rng
	}
}

// WithMetrics shares a metrics container.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client keeps one gateway session alive until its context is cancelled.
type Client struct {
	cfg       Config
	dialer    websocket.Dialer
	discovery *discovery
	session   *Session
	presence  *Presence
	rotator   *rotator
	policy    *policy
	handshake *handshake
	metrics   *obs.Metrics
	store     SessionStore
	handler   Handler
	queue     *dispatchQueue
	rng       *rand.Rand

	state          atomic.Uint32
	running        atomic.Bool
	gatewayURL     string
	closedNormally bool

	saves     chan SessionState
	saverDone chan struct{}
}

// NewClient validates cfg and builds a client. A missing token is refused.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.Identity.Token = strings.TrimSpace(cfg.Identity.Token)
	if cfg.Identity.Token == "" {
		return nil, exception.ErrMissingToken
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		dialer:  websocket.NewDialer(),
		session: NewSession(),
		metrics: obs.NewMetrics(),
		discovery: &discovery{
			client:  http.DefaultClient,
			apiURL:  cfg.APIURL,
			token:   cfg.Identity.Token,
			version: cfg.Version,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		return nil, websocket.ErrNilDialer
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	c.presence = NewPresence(cfg.PresenceStatus, cfg.Presence...)
	c.rotator = newRotator(c.presence, cfg.PresenceInterval)
	c.policy = newPolicy(cfg.Backoff, cfg.InvalidSessionDelay, c.rng)
	c.handshake = newHandshake(c.session, cfg.Identity, c.presence, cfg.MaxProtocolErrors)
	return c, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Session returns a snapshot of the session state.
func (c *Client) Session() SessionState {
	return c.session.Snapshot()
}

// Presence returns the process-wide presence rotation.
func (c *Client) Presence() *Presence {
	return c.presence
}

// Metrics returns a snapshot of the client metrics.
func (c *Client) Metrics() obs.Snapshot {
	return c.metrics.Snapshot()
}

func (c *Client) setState(s State) {
	c.state.Store(uint32(s))
}

// Run connects and keeps reconnecting until ctx is cancelled, which closes
// the connection gracefully and returns nil. Only an authentication failure
// ends Run early, as a *Error of KindAuth.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return exception.ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.restore(ctx)

	var wg sync.WaitGroup
	if c.handler != nil {
		c.queue = newDispatchQueue(c.cfg.DispatchQueueSize, c.cfg.DispatchOverflow)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.queue.serve(ctx, c.handler)
		}()
		defer func() {
			c.queue.Close()
			wg.Wait()
			c.queue = nil
		}()
	}
	c.startCheckpoints(ctx)
	defer c.finish(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		gerr := c.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if gerr == nil {
			continue
		}
		if gerr.Fatal() {
			logs.Errorf("gateway: giving up: %v", gerr)
			c.handshake.forget()
			return gerr
		}

		mode, delay := c.policy.next(gerr)
		if mode == ModeIdentify {
			c.handshake.forget()
			c.checkpoint()
		}
		c.metrics.Inc(obs.CounterReconnects)
		if gerr.Kind == KindInvalidSession {
			c.metrics.Inc(obs.CounterInvalidSessions)
		}
		logs.Warnf("gateway: connection ended: %v, reconnect (%s) in %s", gerr, mode, delay)

		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// connect runs one connection from dial to close.
func (c *Client) connect(ctx context.Context) *Error {
	resuming := c.session.Resumable()
	url, err := c.endpoint(ctx)
	if err != nil {
		if err == exception.ErrAuthFailed {
			return authError(0)
		}
		return transportError(0, err)
	}

	conn, err := websocket.Open(ctx, c.dialer, url, c.cfg.Transport)
	if err != nil {
		c.metrics.Inc(obs.CounterDialFailures)
		if !resuming {
			c.gatewayURL = ""
		}
		return transportError(0, err)
	}
	c.metrics.Inc(obs.CounterConnects)
	logs.Infof("gateway: connected %s (resume=%t) id=%s", url, resuming, conn.ID())

	l := &connLink{c: c, conn: conn}
	return l.run(ctx)
}

// endpoint returns the URL for the next connection: the resume endpoint
// when a session can be resumed, the discovered gateway otherwise.
func (c *Client) endpoint(ctx context.Context) (string, error) {
	if state := c.session.Snapshot(); state.Resumable() {
		return gatewayURL(state.ResumeURL, c.cfg.Version)
	}
	if c.gatewayURL == "" {
		if c.cfg.GatewayURL != "" {
			c.gatewayURL = c.cfg.GatewayURL
		} else {
			bot, err := c.discovery.fetch(ctx)
			if err != nil {
				return "", err
			}
			limit := bot.SessionStartLimit
			if limit.Total > 0 && limit.Remaining <= 0 && limit.ResetAfter > 0 {
				wait := time.Duration(limit.ResetAfter) * time.Millisecond
				logs.Warnf("gateway: session start limit exhausted, waiting %s", wait)
				if !sleep(ctx, wait) {
					return "", ctx.Err()
				}
			}
			c.gatewayURL = bot.URL
		}
	}
	return gatewayURL(c.gatewayURL, c.cfg.Version)
}

func (c *Client) restore(ctx context.Context) {
	if c.store == nil {
		return
	}
	state, err := c.store.Load(ctx)
	if err != nil {
		logs.Warnf("gateway: load session checkpoint: %v", err)
		return
	}
	c.session.Restore(state)
	if state.Resumable() {
		logs.Infof("gateway: restored session %s", state.ID)
	}
}

// startCheckpoints runs the single saver goroutine. Saves never block the
// connection loop; only the latest pending snapshot is kept.
func (c *Client) startCheckpoints(ctx context.Context) {
	if c.store == nil {
		return
	}
	saves := make(chan SessionState, 1)
	done := make(chan struct{})
	c.saves, c.saverDone = saves, done
	go func() {
		defer close(done)
		for state := range saves {
			c.save(ctx, state)
		}
	}()
}

// checkpoint queues a snapshot of the session for the saver.
func (c *Client) checkpoint() {
	if c.saves == nil {
		return
	}
	state := c.session.Snapshot()
	for {
		select {
		case c.saves <- state:
			return
		default:
		}
		select {
		case <-c.saves:
		default:
		}
	}
}

func (c *Client) stopCheckpoints() {
	if c.saves == nil {
		return
	}
	close(c.saves)
	<-c.saverDone
	c.saves, c.saverDone = nil, nil
}

func (c *Client) save(ctx context.Context, state SessionState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()
	if err := c.store.Save(ctx, state); err != nil {
		logs.Warnf("gateway: save session checkpoint: %v", err)
	}
}

// finish runs once Run stops and writes the final checkpoint after any
// pending save. A normal close or an auth failure leaves nothing to resume.
func (c *Client) finish(ctx context.Context) {
	c.stopCheckpoints()
	if c.closedNormally {
		c.session.Clear()
	}
	if c.store != nil {
		c.save(ctx, c.session.Snapshot())
	}
	c.setState(StateDisconnected)
}

func sleep(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
