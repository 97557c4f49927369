package congregate

import (
	"go.uber.org/zap"
)

// Order is the display order of a collection.
type Order int

const (
	// NewestFirst puts new items at the head (comments, replies).
	NewestFirst Order = iota
	// Chronological puts new items at the tail (chat).
	Chronological
)

// Merger applies push events and local optimistic inserts to one
// collection. It performs no I/O.
type Merger[T Record] struct {
	coll    *Collection[T]
	order   Order
	extract func(Event) (T, bool)
	log     *zap.Logger
}

// NewMerger returns a merger feeding coll. extract selects the events that
// belong to the collection's scope and returns their record.
func NewMerger[T Record](coll *Collection[T], order Order, extract func(Event) (T, bool), log *zap.Logger) *Merger[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger[T]{coll: coll, order: order, extract: extract, log: log}
}

// Collection returns the collection the merger writes to.
func (m *Merger[T]) Collection() *Collection[T] { return m.coll }

// Handle applies ev if it is a creation event for this scope.
func (m *Merger[T]) Handle(ev Event) {
	item, ok := m.extract(ev)
	if !ok {
		return
	}
	outcome := m.coll.insertPushed(item, m.order == NewestFirst)
	MergeOutcomes.WithLabelValues(outcome).Inc()
	m.log.Debug("push merged",
		zap.String("type", string(ev.Type())),
		zap.Int64("id", item.RecordID()),
		zap.String("outcome", outcome))
}

// InsertLocal shows item before the server has confirmed it and returns the
// client id used to Confirm or Discard it.
func (m *Merger[T]) InsertLocal(item T) string {
	clientID := m.coll.insertLocal(item, m.order == NewestFirst)
	MergeOutcomes.WithLabelValues("local").Inc()
	return clientID
}

// Confirm replaces a pending entry with the server's record. If the push
// for the same id was already merged, the pending entry is dropped.
func (m *Merger[T]) Confirm(clientID string, item T) {
	outcome := m.coll.confirm(clientID, item, m.order == NewestFirst)
	MergeOutcomes.WithLabelValues(outcome).Inc()
	m.log.Debug("local insert confirmed", zap.String("client_id", clientID), zap.Int64("id", item.RecordID()), zap.String("outcome", outcome))
}

// Discard removes a pending entry whose create request failed.
func (m *Merger[T]) Discard(clientID string) {
	if m.coll.discard(clientID) {
		MergeOutcomes.WithLabelValues("discarded").Inc()
	}
}

// ============================================================================
// Scope filters
// ============================================================================

// PostComments selects top-level comments created on postID.
func PostComments(postID int64) func(Event) (Comment, bool) {
	return func(ev Event) (Comment, bool) {
		e, ok := ev.(NewComment)
		if !ok || !e.Comment.TopLevel() {
			return Comment{}, false
		}
		// The channel is already keyed by post; records may omit post_id.
		if e.Comment.PostID != 0 && e.Comment.PostID != postID {
			return Comment{}, false
		}
		return e.Comment, true
	}
}

// CommentReplies selects replies to commentID.
func CommentReplies(commentID int64) func(Event) (Comment, bool) {
	return func(ev Event) (Comment, bool) {
		e, ok := ev.(NewReply)
		if !ok || e.Parent() != commentID {
			return Comment{}, false
		}
		r := e.Reply
		if r.ParentID == 0 {
			r.ParentID = commentID
		}
		return r, true
	}
}

// ChatMessages selects messages posted to chatID.
func ChatMessages(chatID int64) func(Event) (ChatMessage, bool) {
	return func(ev Event) (ChatMessage, bool) {
		e, ok := ev.(NewMessage)
		if !ok || e.Message.ChatID != chatID {
			return ChatMessage{}, false
		}
		return e.Message, true
	}
}
