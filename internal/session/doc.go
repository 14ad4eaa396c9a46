// ABOUTME: Package doc for the conversation session layer
// ABOUTME: Controller, composer, and reconciler for one open 1:1 conversation

// Package session implements the client-side conversation session: a
// controller that opens exactly one conversation at a time, a composer
// that runs the optimistic send pipeline against the durable store, and
// a reconciler that merges history, optimistic inserts, and realtime
// pushes into a single stably-ordered message list.
//
// The durable store is the source of truth. The realtime transport only
// accelerates delivery; every message a user sends goes through the REST
// path and is reconciled by durable id or temp-id confirmation, so
// duplicate delivery across the two paths collapses to one entry.
package session
