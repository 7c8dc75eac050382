package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"portal/pkg/exception"
)

const (
	DefaultAPIURL   = "https://discord.com/api/v10"
	DefaultVersion  = 10
	DefaultEncoding = "json"

	discoveryTimeout = 15 * time.Second
)

// SessionStartLimit is the identify budget reported by discovery.
type SessionStartLimit struct {
	Total          int   `json:"total"`
	Remaining      int   `json:"remaining"`
	ResetAfter     int64 `json:"reset_after"`
	MaxConcurrency int   `json:"max_concurrency"`
}

// GatewayBot is the discovery response. Shards is unused; this client
// never shards.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

type discovery struct {
	client  *http.Client
	apiURL  string
	token   string
	version int
}

// fetch asks the REST API where the gateway lives.
func (d *discovery) fetch(ctx context.Context) (GatewayBot, error) {
	var bot GatewayBot

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()
	r, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		strings.TrimRight(d.apiURL, "/")+"/gateway/bot",
		nil,
	)
	if err != nil {
		return bot, err
	}
	r.Header.Set("Authorization", "Bot "+d.token)
	r.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(r)
	if err != nil {
		return bot, errors.Wrap(exception.ErrDiscovery, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return bot, exception.ErrAuthFailed
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return bot, errors.Wrap(exception.ErrDiscovery, "status "+strconv.Itoa(resp.StatusCode))
	}

	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&bot); err != nil {
		return bot, errors.Wrap(exception.ErrDiscovery, err.Error())
	}
	if bot.URL == "" {
		return bot, errors.Wrap(exception.ErrDiscovery, "empty gateway url")
	}
	return bot, nil
}

// gatewayURL fixes protocol version and encoding in the query of raw.
func gatewayURL(raw string, version int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Wrap(exception.ErrDiscovery, "invalid gateway url "+raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(version))
	q.Set("encoding", DefaultEncoding)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
