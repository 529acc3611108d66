package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MethodHandShake is the only method allowed through before trust is established.
	MethodHandShake = "handShake"

	// TargetAny is the unrestricted destination, used only for the outbound handshake.
	TargetAny = "*"
)

// Envelope is one message on the channel.
type Envelope struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ID      uint64          `json:"id,omitempty"`
	Origin  string          `json:"origin,omitempty"`
}

// NewEnvelope builds a call envelope; a nil payload is left off the wire.
func NewEnvelope(method string, payload any) (Envelope, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return Envelope{}, ErrMissingMethod
	}
	env := Envelope{Method: method}
	if payload == nil {
		return env, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		env.Payload = raw
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode %s payload: %w", method, err)
	}
	env.Payload = raw
	return env, nil
}

// HandShakeEnvelope advertises own origin to the peer.
func HandShakeEnvelope(own string) Envelope {
	return Envelope{Method: MethodHandShake, Origin: own}
}

// Reply builds the response to a call, echoing its id.
func Reply(call Envelope, payload any) (Envelope, error) {
	env, err := NewEnvelope(call.Method, payload)
	if err != nil {
		return Envelope{}, err
	}
	env.ID = call.ID
	return env, nil
}

func (e Envelope) IsHandShake() bool {
	return e.Method == MethodHandShake
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Method) == "" {
		return ErrMissingMethod
	}
	if e.IsHandShake() {
		if strings.TrimSpace(e.Origin) == "" {
			return ErrMissingOrigin
		}
		return nil
	}
	if e.Origin != "" {
		return ErrUnexpectedOrigin
	}
	return nil
}

// Encode serialises env for the wire.
func Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses raw data into an envelope. Absent data yields the empty envelope. Size limits
// belong to the transport that carried the data.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Message is one delivery from a channel: the raw data plus the sender origin the transport
// vouches for. Origin is never taken from Data.
type Message struct {
	Data   json.RawMessage
	Origin string
}

// NewMessage encodes env into a delivery attributed to sender.
func NewMessage(env Envelope, sender string) (Message, error) {
	data, err := Encode(env)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data, Origin: sender}, nil
}
