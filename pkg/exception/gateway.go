package exception

import "github.com/yanun0323/errors"

// Gateway errors
var (
	// ErrMissingToken is returned when no bot credential is configured.
	ErrMissingToken = errors.New("gateway: missing bot token")

	// ErrAuthFailed is returned when the credential is rejected.
	ErrAuthFailed = errors.New("gateway: authentication failed")

	// ErrInvalidSession is reported when the server invalidates the session.
	ErrInvalidSession = errors.New("gateway: invalid session")

	// ErrHeartbeatTimeout is reported when acks stop arriving.
	ErrHeartbeatTimeout = errors.New("gateway: heartbeat ack timeout")

	// ErrReconnectRequested is reported when the server asks for a reconnect.
	ErrReconnectRequested = errors.New("gateway: reconnect requested")

	// ErrMalformedFrame is reported for a frame that cannot be decoded.
	ErrMalformedFrame = errors.New("gateway: malformed frame")

	// ErrHandshakeFailed is reported when repeated protocol errors prevent the handshake.
	ErrHandshakeFailed = errors.New("gateway: handshake failed")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("gateway: client already running")

	// ErrDiscovery is returned when the gateway endpoint cannot be discovered.
	ErrDiscovery = errors.New("gateway: endpoint discovery failed")
)
