package gateway

import (
	"strconv"

	"portal/pkg/exception"
	"portal/pkg/websocket"
)

// Kind classifies why a connection ended.
type Kind uint8

const (
	// KindTransport covers network failures and abrupt disconnects.
	KindTransport Kind = iota + 1
	// KindProtocol covers malformed or unexpected frames.
	KindProtocol
	// KindAuth is the only fatal kind: the credential was rejected.
	KindAuth
	// KindInvalidSession is the server telling the client its session is gone.
	KindInvalidSession
	// KindHeartbeatTimeout is a zombied connection.
	KindHeartbeatTimeout
	// KindReconnect is a server-requested reconnect.
	KindReconnect
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindInvalidSession:
		return "invalid_session"
	case KindHeartbeatTimeout:
		return "heartbeat_timeout"
	case KindReconnect:
		return "reconnect"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Error is the classified reason a connection ended.
type Error struct {
	Kind Kind
	// Code is the close code observed, zero when the connection never opened
	// or was ended locally.
	Code websocket.CloseCode
	// Resumable is only meaningful for KindInvalidSession.
	Resumable bool
	Err       error
}

func (e *Error) Error() string {
	msg := "gateway: " + e.Kind.String()
	if e.Code != 0 {
		msg += " (close " + strconv.Itoa(int(e.Code)) + ")"
	}
	if e.Err != nil {
		msg += ", err: " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether reconnecting is pointless.
func (e *Error) Fatal() bool {
	return e != nil && e.Kind == KindAuth
}

func transportError(code websocket.CloseCode, err error) *Error {
	return &Error{Kind: KindTransport, Code: code, Err: err}
}

func authError(code websocket.CloseCode) *Error {
	return &Error{Kind: KindAuth, Code: code, Err: exception.ErrAuthFailed}
}
