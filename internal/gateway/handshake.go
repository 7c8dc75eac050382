package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"portal/pkg/exception"
)

// State is the lifecycle state of the gateway connection.
type State uint8

const (
	StateDisconnected State = iota
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateReady:
		return "ready"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// DefaultMaxProtocolErrors bounds dropped frames per connection before the
// connection is given up as a transport failure.
const DefaultMaxProtocolErrors = 3

// Dispatch is an application event handed to the Handler.
type Dispatch struct {
	Type string
	Seq  int64
	Data json.RawMessage
}

// Identity is what the client presents in Identify and Resume.
type Identity struct {
	Token      string
	Intents    int
	Properties IdentifyProperties
}

// link is the per-connection side the handshake acts through.
type link interface {
	send(op Opcode, d any) error
	startHeartbeat(interval time.Duration)
	heartbeatNow() error
	ackHeartbeat()
	ready(resumed bool)
	deliver(d Dispatch)
	dropped(op Opcode)
	url() string
}

// handshake is the connection state machine. It owns the Session: sequence
// numbers, session id and resume endpoint only change here.
type handshake struct {
	state             State
	session           *Session
	identity          Identity
	presence          *Presence
	maxProtocolErrors int
	protocolErrors    int
}

func newHandshake(session *Session, identity Identity, presence *Presence, maxProtocolErrors int) *handshake {
	if maxProtocolErrors <= 0 {
		maxProtocolErrors = DefaultMaxProtocolErrors
	}
	return &handshake{
		state:             StateDisconnected,
		session:           session,
		identity:          identity,
		presence:          presence,
		maxProtocolErrors: maxProtocolErrors,
	}
}

// connected is called for every new transport connection.
func (h *handshake) connected() {
	h.state = StateAwaitingHello
	h.protocolErrors = 0
}

// disconnected is called when the transport connection ended.
func (h *handshake) disconnected() {
	h.state = StateDisconnected
}

// forget clears the session before a fresh Identify.
func (h *handshake) forget() {
	h.session.Clear()
}

// handle processes one inbound frame. A non-nil error ends the connection.
func (h *handshake) handle(l link, f Frame) *Error {
	if f.Op == OpDispatch {
		return h.handleDispatch(l, f)
	}
	if h.state == StateAwaitingHello && f.Op != OpHello {
		return h.protocolError(l, f, "first frame is not hello")
	}

	switch f.Op {
	case OpHello:
		return h.handleHello(l, f)
	case OpHeartbeatAck:
		l.ackHeartbeat()
	case OpHeartbeat:
		if err := l.heartbeatNow(); err != nil {
			return transportError(0, err)
		}
	case OpReconnect:
		return &Error{Kind: KindReconnect, Err: exception.ErrReconnectRequested}
	case OpInvalidSession:
		var resumable bool
		if len(f.D) > 0 {
			_ = sonic.ConfigFastest.Unmarshal(f.D, &resumable)
		}
		if !resumable {
			h.forget()
		}
		return &Error{Kind: KindInvalidSession, Resumable: resumable, Err: exception.ErrInvalidSession}
	default:
		return h.protocolError(l, f, "unknown opcode")
	}
	return nil
}

func (h *handshake) handleHello(l link, f Frame) *Error {
	if h.state != StateAwaitingHello {
		return h.protocolError(l, f, "hello after handshake started")
	}
	var hello Hello
	if err := decodePayload(f, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		return h.protocolError(l, f, "hello without heartbeat interval")
	}
	l.startHeartbeat(time.Duration(hello.HeartbeatInterval) * time.Millisecond)

	if h.session.Resumable() {
		state := h.session.Snapshot()
		var seq int64
		if state.Sequence != nil {
			seq = *state.Sequence
		}
		if err := l.send(OpResume, Resume{
			Token:     h.identity.Token,
			SessionID: state.ID,
			Seq:       seq,
		}); err != nil {
			return transportError(0, err)
		}
		h.state = StateResuming
		return nil
	}

	if err := l.send(OpIdentify, Identify{
		Token:      h.identity.Token,
		Intents:    h.identity.Intents,
		Properties: h.identity.Properties,
		Presence:   h.presence.Current(),
	}); err != nil {
		return transportError(0, err)
	}
	h.state = StateIdentifying
	return nil
}

func (h *handshake) handleDispatch(l link, f Frame) *Error {
	event := f.EventType()
	handshaking := h.state == StateIdentifying || h.state == StateResuming

	if event == EventReady && handshaking {
		var ready Ready
		if err := decodePayload(f, &ready); err != nil || ready.SessionID == "" {
			if f.S != nil {
				h.session.ObserveSequence(*f.S)
			}
			return h.protocolError(l, f, "ready without session id")
		}
		h.session.Establish(ready.SessionID, ready.ResumeGatewayURL, l.url())
	}
	if f.S != nil {
		h.session.ObserveSequence(*f.S)
	}
	if h.state == StateAwaitingHello {
		return h.protocolError(l, f, "dispatch before hello")
	}

	if handshaking && (event == EventReady || event == EventResumed) {
		h.state = StateReady
		l.ready(event == EventResumed)
	}

	d := Dispatch{Type: event, Data: f.D}
	if f.S != nil {
		d.Seq = *f.S
	}
	l.deliver(d)
	return nil
}

// protocolError drops f. Only errors before Ready count towards giving up
// the connection.
func (h *handshake) protocolError(l link, f Frame, reason string) *Error {
	logs.Warnf("gateway: drop frame op=%d t=%s in state %s: %s", f.Op, f.EventType(), h.state, reason)
	l.dropped(f.Op)
	if h.state == StateReady {
		return nil
	}
	h.protocolErrors++
	if h.protocolErrors >= h.maxProtocolErrors {
		return transportError(0, exception.ErrHandshakeFailed)
	}
	return nil
}
