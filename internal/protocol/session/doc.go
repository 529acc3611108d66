// Package session owns the block side of the block<->editor channel.
//
// Ownership boundary:
// - handshake state (trusted parent origin, set once)
// - pending-call table (id allocation, single-shot resolution, optional expiry)
// - outbound sender with bounded retry while the handshake is outstanding
// - inbound dispatcher (handshake capture, origin gate, callback resolution)
//
// All state lives on one Session; nothing is shared between sessions.
package session
