// ABOUTME: Message list reconciler merging history, optimistic sends, and realtime pushes
// ABOUTME: Single merge path keeps ordering stable and makes repeated delivery idempotent

package session

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/Hashimp6/beeeuu-chat/internal/chat"
)

// entry pairs a message with its insertion sequence. The sequence breaks
// ordering ties between messages that share a timestamp, so re-sorting
// never reorders them relative to each other.
type entry struct {
	msg chat.Message
	seq int
}

// Reconciler owns the ordered message list for one open conversation.
// Messages reach it from three sources: the initial history load,
// optimistic pending inserts from the composer, and realtime pushes from
// the transport. All three funnel through the same merge rules, so
// duplicate delivery across sources collapses to a single entry.
//
// All methods are safe for concurrent use.
type Reconciler struct {
	conversationID string
	logger         *slog.Logger

	mu       sync.Mutex
	entries  []entry
	nextSeq  int
	onAppend func(chat.Message)
}

// NewReconciler creates a reconciler bound to a single conversation.
// Messages for any other conversation are dropped on merge.
func NewReconciler(conversationID string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		conversationID: conversationID,
		logger:         logger.With("component", "reconciler", "conversation_id", conversationID),
	}
}

// OnAppend registers a hook invoked whenever a merge grows the list: a
// new incoming message or an optimistic insert. In-place updates
// (confirmation, idempotent re-delivery, failure marks) do not fire it,
// which lets a view scroll to bottom only when there is something new.
func (r *Reconciler) OnAppend(fn func(chat.Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAppend = fn
}

// Load replaces the list with a fetched history snapshot. Invalid and
// foreign-conversation messages are dropped.
func (r *Reconciler) Load(history []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = r.entries[:0]
	r.nextSeq = 0
	for _, m := range history {
		if !r.acceptLocked(m) {
			continue
		}
		r.entries = append(r.entries, entry{msg: m, seq: r.nextSeq})
		r.nextSeq++
	}
	r.sortLocked()
}

// InsertPending appends an optimistic entry for a message the composer
// is about to send. The append hook fires so the view follows it.
func (r *Reconciler) InsertPending(m chat.Message) {
	r.mu.Lock()
	r.appendLocked(m)
	hook := r.onAppend
	r.mu.Unlock()

	if hook != nil {
		hook(m)
	}
}

// Merge folds one durable message into the list. In order:
//
//  1. malformed or foreign messages are dropped
//  2. a message whose durable id is already present updates that entry
//     in place
//  3. a message that confirms a pending optimistic entry replaces it in
//     place, preserving its position
//  4. otherwise the message is appended and the list re-sorted
func (r *Reconciler) Merge(m chat.Message) {
	r.mu.Lock()
	appended := r.mergeLocked(m)
	hook := r.onAppend
	r.mu.Unlock()

	if appended && hook != nil {
		hook(m)
	}
}

// Confirm resolves the pending entry created for a send once the durable
// copy comes back on the request path. If a realtime echo already
// replaced the pending entry, this degrades to an idempotent merge.
func (r *Reconciler) Confirm(localID chat.MessageID, durable chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].msg.ID.Equal(localID) {
			r.entries[i].msg = durable
			r.sortLocked()
			return
		}
	}
	r.mergeLocked(durable)
}

// Fail marks the pending entry with the given temp id as failed. The
// entry stays in place so the view can offer a retry. Reports whether an
// entry was marked; a miss means the send was already confirmed through
// another path and the failure is stale.
func (r *Reconciler) Fail(localID chat.MessageID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].msg.ID.Equal(localID) && r.entries[i].msg.State == chat.StatePending {
			r.entries[i].msg.State = chat.StateFailed
			return true
		}
	}
	return false
}

// Get returns the message with the given id, local or durable.
func (r *Reconciler) Get(id chat.MessageID) (chat.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].msg.ID.Equal(id) {
			return r.entries[i].msg, true
		}
	}
	return chat.Message{}, false
}

// Messages returns the current ordered list as a copy.
func (r *Reconciler) Messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]chat.Message, len(r.entries))
	for i := range r.entries {
		out[i] = r.entries[i].msg
	}
	return out
}

// Len returns the number of entries in the list.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Reconciler) mergeLocked(m chat.Message) bool {
	if !r.acceptLocked(m) {
		return false
	}

	// Durable id already present: idempotent in-place update.
	for i := range r.entries {
		if r.entries[i].msg.ID.Equal(m.ID) {
			r.entries[i].msg = m
			r.sortLocked()
			return false
		}
	}

	// Confirmation of an optimistic entry: replace in place.
	for i := range r.entries {
		if m.ConfirmationOf(r.entries[i].msg) {
			r.entries[i].msg = m
			r.sortLocked()
			return false
		}
	}

	r.appendLocked(m)
	return true
}

func (r *Reconciler) acceptLocked(m chat.Message) bool {
	if m.ConversationID != r.conversationID {
		r.logger.Debug("dropping message for foreign conversation", "message_conversation_id", m.ConversationID)
		return false
	}
	if !m.Valid() {
		r.logger.Debug("dropping malformed message", "message_id", m.ID.String())
		return false
	}
	return true
}

func (r *Reconciler) appendLocked(m chat.Message) {
	r.entries = append(r.entries, entry{msg: m, seq: r.nextSeq})
	r.nextSeq++
	r.sortLocked()
}

func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
			return a.seq < b.seq
		}
		return a.msg.CreatedAt.Before(b.msg.CreatedAt)
	})
}
