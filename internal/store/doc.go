// Package store provides durable persistence for conversations and
// messages, backed by SQLite. It is the source of truth the rest of the
// system converges on: the socket transport only accelerates delivery,
// it never replaces a write here.
package store
