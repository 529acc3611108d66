package protocol

import "encoding/json"

// Inbound is the closed set of message kinds the block dispatcher acts on.
type Inbound interface {
	inbound()
}

// HandShake is a peer advertising its origin. Advertised is what the peer claims; Sender is
// what the transport observed.
type HandShake struct {
	Advertised string
	Sender     string
}

// Response answers an earlier call. ID is zero when the message carried no identifier.
type Response struct {
	ID      uint64
	Method  string
	Payload json.RawMessage
	Sender  string
}

func (HandShake) inbound() {}
func (Response) inbound()  {}

// Classify maps a raw delivery onto the inbound variant. Fields that fail to decode are left
// empty without discarding the others, so a handshake with a malformed extra field is still a
// handshake. Data that is not a JSON object classifies as a Response without id.
func Classify(msg Message) Inbound {
	env, err := Decode(msg.Data)
	if err != nil {
		env = decodeFields(msg.Data)
	}
	if env.IsHandShake() {
		return HandShake{Advertised: env.Origin, Sender: msg.Origin}
	}
	return Response{
		ID:      env.ID,
		Method:  env.Method,
		Payload: env.Payload,
		Sender:  msg.Origin,
	}
}

// decodeFields decodes each envelope field on its own.
func decodeFields(data []byte) Envelope {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}
	}
	var env Envelope
	_ = json.Unmarshal(fields["method"], &env.Method)
	_ = json.Unmarshal(fields["origin"], &env.Origin)
	_ = json.Unmarshal(fields["id"], &env.ID)
	if raw, ok := fields["payload"]; ok {
		env.Payload = raw
	}
	return env
}
