package gateway

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"portal/pkg/exception"
)

// Opcode is the gateway operation code of a frame.
type Opcode int

const (
	OpDispatch       Opcode = 0
	OpHeartbeat      Opcode = 1
	OpIdentify       Opcode = 2
	OpPresenceUpdate Opcode = 3
	OpResume         Opcode = 6
	OpReconnect      Opcode = 7
	OpInvalidSession Opcode = 9
	OpHello          Opcode = 10
	OpHeartbeatAck   Opcode = 11
)

// Dispatch event names that complete a handshake.
const (
	EventReady   = "READY"
	EventResumed = "RESUMED"
)

// Frame is one inbound gateway message.
type Frame struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  *string         `json:"t"`
}

// EventType returns the dispatch event name or "".
func (f Frame) EventType() string {
	if f.T == nil {
		return ""
	}
	return *f.T
}

type outboundFrame struct {
	Op Opcode `json:"op"`
	D  any    `json:"d"`
}

// Hello is the payload of OpHello.
type Hello struct {
	// HeartbeatInterval is in milliseconds.
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// IdentifyProperties describe the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify is the payload of OpIdentify.
type Identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties IdentifyProperties `json:"properties"`
	Presence   *PresenceUpdate    `json:"presence,omitempty"`
}

// Resume is the payload of OpResume.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// ActivityKind is the activity type shown next to the status text.
type ActivityKind int

const (
	ActivityPlaying   ActivityKind = 0
	ActivityStreaming ActivityKind = 1
	ActivityListening ActivityKind = 2
	ActivityWatching  ActivityKind = 3
	ActivityCustom    ActivityKind = 4
	ActivityCompeting ActivityKind = 5
)

// Activity is one entry of a presence update.
type Activity struct {
	Name  string       `json:"name"`
	Type  ActivityKind `json:"type"`
	State string       `json:"state,omitempty"`
}

// PresenceUpdate is the payload of OpPresenceUpdate.
type PresenceUpdate struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// Ready carries the fields of the READY dispatch the client keeps.
type Ready struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

func decodeFrame(payload []byte) (Frame, error) {
	var f Frame
	if err := sonic.ConfigFastest.Unmarshal(payload, &f); err != nil {
		return Frame{}, errors.Wrap(exception.ErrMalformedFrame, err.Error())
	}
	return f, nil
}

func decodePayload(f Frame, v any) error {
	if len(f.D) == 0 {
		return exception.ErrMalformedFrame
	}
	if err := sonic.ConfigFastest.Unmarshal(f.D, v); err != nil {
		return errors.Wrap(exception.ErrMalformedFrame, err.Error())
	}
	return nil
}

func encodeFrame(op Opcode, d any) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(outboundFrame{Op: op, D: d})
}
