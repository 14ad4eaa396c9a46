// ABOUTME: Error taxonomy for conversation session operations
// ABOUTME: All failures are local to the triggering operation and never corrupt list state

package session

import "errors"

var (
	// ErrMissingTarget means no counterpart identity was available when
	// opening a conversation. The open is aborted.
	ErrMissingTarget = errors.New("missing target participant")

	// ErrCreateFailed means the durable store rejected or failed the
	// conversation create request. Retryable.
	ErrCreateFailed = errors.New("conversation create failed")

	// ErrFetchFailed means the message history could not be loaded. No room
	// subscription is established. Retryable.
	ErrFetchFailed = errors.New("history fetch failed")

	// ErrSendFailed means the message create request failed. The pending
	// entry is marked failed in place and stays visible for manual retry.
	ErrSendFailed = errors.New("send failed")

	// ErrSendInFlight rejects a send while another is in flight for the
	// same composer. The duplicate submission is dropped, never queued.
	ErrSendInFlight = errors.New("send already in flight")

	// ErrEmptyBody rejects a message whose body is empty after trimming.
	ErrEmptyBody = errors.New("empty message body")

	// ErrNoConversation rejects a send before a conversation id has been
	// resolved.
	ErrNoConversation = errors.New("conversation not resolved")
)
