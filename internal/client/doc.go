// Package client implements the REST side of the messaging core: the
// durable-store operations the session controller and send pipeline call.
package client
