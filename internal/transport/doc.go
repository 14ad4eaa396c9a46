// Package transport implements the socket side of the messaging core: one
// live websocket connection per session, partitioned into per-conversation
// rooms. It is an acceleration path only — the transport never guarantees
// ordering or delivery, and sends never fail solely because it is down.
package transport
