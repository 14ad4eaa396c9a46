// Package chat defines the domain model shared by the messaging core:
// conversations, messages as tagged variants (text or structured
// attachment), the local/durable message id sum type, and the wire types
// used by both the gateway and the client transport.
package chat
