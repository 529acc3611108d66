// Package protocol owns the block<->editor wire contract.
//
// Ownership boundary:
// - envelope shape and JSON codec
// - raw inbound message as delivered by a channel (data + transport-verified sender origin)
// - the closed inbound variant seen by the session dispatcher (HandShake, Response)
package protocol
