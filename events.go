package congregate

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// Event Vocabulary
// ============================================================================

type EventType string

const (
	TypeConnectionEstablished EventType = "connection_established"
	TypeNewComment            EventType = "new_comment"
	TypeNewReply              EventType = "new_reply"
	TypeNewMessage            EventType = "new_message"
)

// Event is a decoded push-channel frame. The set of implementations is
// closed: ConnectionEstablished, NewComment, NewReply, NewMessage and Unknown.
type Event interface {
	Type() EventType
	isEvent()
}

// ConnectionEstablished is the server greeting sent after the socket joins
// its group.
type ConnectionEstablished struct {
	Message string `json:"message"`
	Group   string `json:"group"`
}

// NewComment announces a top-level comment on a post.
type NewComment struct {
	Comment   Comment         `json:"comment"`
	User      json.RawMessage `json:"user,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewReply announces a reply to a top-level comment.
type NewReply struct {
	Reply     Comment         `json:"reply"`
	User      json.RawMessage `json:"user,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ParentID  FlexID          `json:"parent_id"`
}

// NewMessage announces a chat message.
type NewMessage struct {
	Message ChatMessage `json:"message"`
}

// Unknown carries a well-formed frame whose type this package does not
// handle. Channels drop it.
type Unknown struct {
	Kind EventType
	Raw  json.RawMessage
}

func (ConnectionEstablished) Type() EventType { return TypeConnectionEstablished }
func (NewComment) Type() EventType { return TypeNewComment }
func (NewReply) Type() EventType { return TypeNewReply }
func (NewMessage) Type() EventType { return TypeNewMessage }
func (u Unknown) Type() EventType { return u.Kind }

func (ConnectionEstablished) isEvent() {}
func (NewComment) isEvent() {}
func (NewReply) isEvent() {}
func (NewMessage) isEvent() {}
func (Unknown) isEvent() {}

// Parent returns the id of the comment the reply belongs to, preferring the
// envelope's parent_id over the embedded record.
func (e NewReply) Parent() int64 {
	if e.ParentID != 0 {
		return int64(e.ParentID)
	}
	return e.Reply.ParentID
}

var errMissingType = errors.New("envelope has no type")

// DecodeEvent parses one frame. It fails on invalid JSON, a missing type,
// or a creation event without a record id.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch head.Type {
	case "":
		return nil, errMissingType
	case TypeConnectionEstablished:
		var e ConnectionEstablished
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return e, nil
	case TypeNewComment:
		var e NewComment
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		if e.Comment.ID == 0 {
			return nil, fmt.Errorf("decode %s: comment without id", head.Type)
		}
		return e, nil
	case TypeNewReply:
		var e NewReply
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		if e.Reply.ID == 0 {
			return nil, fmt.Errorf("decode %s: reply without id", head.Type)
		}
		return e, nil
	case TypeNewMessage:
		var e NewMessage
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		if e.Message.ID == 0 {
			return nil, fmt.Errorf("decode %s: message without id", head.Type)
		}
		return e, nil
	default:
		return Unknown{Kind: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
