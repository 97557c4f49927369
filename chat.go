package congregate

import "context"

// ChatRoom is the chronological message history of one chat, kept live by
// the chat channel.
type ChatRoom struct {
	*feed[ChatMessage]
	client *Client
	chatID int64
}

// NewChatRoom creates the room of chatID. cfg may be nil.
func NewChatRoom(client *Client, chatID int64, cfg *ChannelConfig) *ChatRoom {
	return &ChatRoom{
		feed:   newFeed(client, Scope{Kind: ScopeChat, ID: chatID}, client.MessagePages(chatID), Chronological, ChatMessages(chatID), cfg),
		client: client,
		chatID: chatID,
	}
}

func (r *ChatRoom) ChatID() int64 { return r.chatID }

// LoadMore fetches the next page of history.
func (r *ChatRoom) LoadMore(ctx context.Context) (int, error) {
	return r.coll.LoadMore(ctx, ChatPageSize)
}

// Send posts content as the client's user, showing it before the server
// confirms.
func (r *ChatRoom) Send(ctx context.Context, content string) (ChatMessage, error) {
	local := ChatMessage{ChatID: r.chatID, SenderID: r.client.UserID(), Content: content}
	return r.create(ctx, local, func(ctx context.Context) (*ChatMessage, error) {
		return r.client.SendMessage(ctx, r.chatID, content)
	})
}
