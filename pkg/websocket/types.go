package websocket

import (
	"strconv"
	"time"
)

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal indicates a normal closure.
	CloseNormal CloseCode = 1000
	// CloseGoingAway indicates the endpoint is going away.
	CloseGoingAway CloseCode = 1001
	// CloseNetworkFailure is the synthetic code reported when the connection
	// drops without a close frame (RFC 6455 abnormal closure).
	CloseNetworkFailure CloseCode = 1006
	// CloseServiceRestart indicates the server is restarting.
	CloseServiceRestart CloseCode = 1012
)

// CloseEvent describes why a connection ended.
type CloseEvent struct {
	Code   CloseCode
	Reason string
}

func (e CloseEvent) Error() string {
	if e.Reason == "" {
		return "websocket: closed with code " + strconv.Itoa(int(e.Code))
	}
	return "websocket: closed with code " + strconv.Itoa(int(e.Code)) + ": " + e.Reason
}

// Event is one item of the ordered inbound stream of a Connection.
// Exactly one of Payload or Close is meaningful.
type Event struct {
	Payload []byte
	Close   *CloseEvent
}

// OverflowPolicy defines queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowBlock blocks until space is available.
	OverflowBlock OverflowPolicy = iota
	// OverflowDropNewest drops the incoming item if the queue is full.
	OverflowDropNewest
	// OverflowDropOldest drops the oldest item to make room.
	OverflowDropOldest
)

// Backoff defines reconnect backoff behavior.
type Backoff struct {
	// Min is the minimum backoff duration.
	Min time.Duration
	// Max is the maximum backoff duration.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	// It is clamped below Factor-1 so delays keep growing until Max.
	Jitter float64
}
