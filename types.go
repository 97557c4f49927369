package congregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError is a request the server answered but rejected.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	if e.Status != 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// Result is the response envelope shared by every REST endpoint.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Total   *int            `json:"total,omitempty"`
}

// Decode unmarshals the Data field into v.
func (r *Result) Decode(v any) error {
	if len(r.Data) == 0 || bytes.Equal(r.Data, []byte("null")) {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns nil for a successful envelope and an *APIError otherwise.
func (r *Result) Err(status int) error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = r.Message
	}
	if msg == "" {
		msg = "request rejected"
	}
	return &APIError{Status: status, Message: msg}
}

// FlexID is an integer id that the server sometimes sends as a string.
type FlexID int64

func (id *FlexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("id %q: %w", s, err)
		}
		*id = FlexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = FlexID(n)
	return nil
}

// ============================================================================
// Scopes
// ============================================================================

type ScopeKind string

const (
	ScopePost    ScopeKind = "post"
	ScopeComment ScopeKind = "comment"
	ScopeChat    ScopeKind = "chat"
)

// Scope identifies the parent a collection and its channel belong to.
type Scope struct {
	Kind ScopeKind
	ID   int64
}

func (s Scope) String() string {
	return string(s.Kind) + "/" + strconv.FormatInt(s.ID, 10)
}

// ============================================================================
// Records
// ============================================================================

// Record is an item that can live in a Collection.
type Record interface {
	RecordID() int64
	RecordAuthor() int64
	RecordContent() string
}

// Comment is a top-level comment on a post or a reply to one.
type Comment struct {
	ID           int64  `json:"id"`
	PostID       int64  `json:"post_id"`
	ParentID     int64  `json:"parent_id"`
	AuthorID     int64  `json:"author_id"`
	AuthorName   string `json:"author_name,omitempty"`
	AuthorPfp    string `json:"author_pfp,omitempty"`
	Content      string `json:"content"`
	CreatedAt    string `json:"created_at,omitempty"`
	ReplyCount   int    `json:"reply_count"`
	LikeCount    int    `json:"like_count"`
	DislikeCount int    `json:"dislike_count"`
	UserLiked    bool   `json:"user_liked"`
	UserDisliked bool   `json:"user_disliked"`
}

func (c Comment) RecordID() int64 { return c.ID }
func (c Comment) RecordAuthor() int64 { return c.AuthorID }
func (c Comment) RecordContent() string { return c.Content }

// TopLevel reports whether replies can be attached to c.
func (c Comment) TopLevel() bool { return c.ParentID == 0 }

// Reactions returns the like/dislike baseline of the comment.
func (c Comment) Reactions() ToggleSnapshot {
	return ToggleSnapshot{
		Like:    Baseline{Count: c.LikeCount, On: c.UserLiked},
		Dislike: Baseline{Count: c.DislikeCount, On: c.UserDisliked},
	}
}

type Reaction struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Emoji  string `json:"reaction"`
}

type ChatMessage struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	SenderID  int64      `json:"sender_id"`
	Content   string     `json:"content"`
	CreatedAt string     `json:"created_at,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

func (m ChatMessage) RecordID() int64 { return m.ID }
func (m ChatMessage) RecordAuthor() int64 { return m.SenderID }
func (m ChatMessage) RecordContent() string { return m.Content }

// EventRecord is the attendance view of an event post.
type EventRecord struct {
	ID              int64 `json:"id"`
	GoingCount      int   `json:"going_count"`
	InterestedCount int   `json:"interested_count"`
	UserGoing       bool  `json:"user_going"`
	UserInterested  bool  `json:"user_interested"`
}

// Attendance returns the going/interested baseline of the event.
func (e EventRecord) Attendance() ToggleSnapshot {
	return ToggleSnapshot{
		Going:      Baseline{Count: e.GoingCount, On: e.UserGoing},
		Interested: Baseline{Count: e.InterestedCount, On: e.UserInterested},
	}
}

// Page is one slice of history returned by a list endpoint.
type Page[T Record] struct {
	Items []T
	// Total is the server-reported size of the whole collection, if any.
	Total *int
}
