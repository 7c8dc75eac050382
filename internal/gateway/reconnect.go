package gateway

import (
	"math/rand"
	"time"

	"portal/pkg/exception"
	"portal/pkg/websocket"
)

// Gateway close codes.
const (
	CloseUnknownError         websocket.CloseCode = 4000
	CloseUnknownOpcode        websocket.CloseCode = 4001
	CloseDecodeError          websocket.CloseCode = 4002
	CloseNotAuthenticated     websocket.CloseCode = 4003
	CloseAuthenticationFailed websocket.CloseCode = 4004
	CloseAlreadyAuthenticated websocket.CloseCode = 4005
	CloseInvalidSeq           websocket.CloseCode = 4007
	CloseRateLimited          websocket.CloseCode = 4008
	CloseSessionTimedOut      websocket.CloseCode = 4009
	CloseInvalidShard         websocket.CloseCode = 4010
	CloseShardingRequired     websocket.CloseCode = 4011
	CloseInvalidAPIVersion    websocket.CloseCode = 4012
	CloseInvalidIntents       websocket.CloseCode = 4013
	CloseDisallowedIntents    websocket.CloseCode = 4014

	// CloseResumable is sent by the client itself when it closes a
	// connection it intends to resume; 1000 and 1001 would end the session.
	CloseResumable websocket.CloseCode = 4900
)

// DefaultInvalidSessionDelay bounds the random wait after Invalid Session.
const DefaultInvalidSessionDelay = 5 * time.Second

// Mode is how the next connection re-enters the handshake.
type Mode uint8

const (
	ModeResume Mode = iota
	ModeIdentify
)

func (m Mode) String() string {
	if m == ModeIdentify {
		return "identify"
	}
	return "resume"
}

// classifyClose maps a server close to the error taxonomy.
func classifyClose(ev websocket.CloseEvent) *Error {
	switch ev.Code {
	case CloseAuthenticationFailed:
		return authError(ev.Code)
	case CloseInvalidSeq, CloseSessionTimedOut:
		return &Error{Kind: KindInvalidSession, Code: ev.Code, Err: exception.ErrInvalidSession}
	default:
		return transportError(ev.Code, ev)
	}
}

// policy decides how and when to reconnect after a connection ended.
type policy struct {
	backoff      websocket.Backoff
	invalidDelay time.Duration
	attempt      int
	rng          *rand.Rand
}

func newPolicy(backoff websocket.Backoff, invalidDelay time.Duration, rng *rand.Rand) *policy {
	return &policy{backoff: backoff, invalidDelay: invalidDelay, rng: rng}
}

// next returns the handshake mode and the delay before the next attempt.
// err must not be fatal.
func (p *policy) next(err *Error) (Mode, time.Duration) {
	mode := ModeResume
	var delay time.Duration
	switch err.Kind {
	case KindReconnect:
		return ModeResume, 0
	case KindInvalidSession:
		if !err.Resumable {
			mode = ModeIdentify
		}
		delay = p.random(p.invalidDelay)
	}
	p.attempt++
	return mode, delay + p.backoff.Next(p.attempt, p.rng)
}

// reset is called on every entry into Ready.
func (p *policy) reset() {
	p.attempt = 0
}

func (p *policy) random(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if p.rng != nil {
		return time.Duration(p.rng.Int63n(int64(max)))
	}
	return time.Duration(rand.Int63n(int64(max)))
}
