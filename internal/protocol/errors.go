package protocol

import "errors"

var (
	ErrMissingMethod    = errors.New("protocol: missing method")
	ErrMissingOrigin    = errors.New("protocol: handshake missing origin")
	ErrUnexpectedOrigin = errors.New("protocol: origin only allowed on handshake")
)
