// Package gateway serves the chat backend: the conversation/message REST
// API backed by the durable store, and the room-keyed websocket hub that
// fans persisted messages out to connected peers in real time.
//
// The REST path is the source of truth. A message only exists once the
// store has accepted it; the hub re-broadcasts what clients echo after a
// successful store write, so peers see new messages without polling.
package gateway
