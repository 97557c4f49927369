package congregate

import (
	"context"
	"sync"
)

// ============================================================================
// CommentThread
// ============================================================================

// CommentThread is the newest-first list of top-level comments on a post,
// kept live by the post's comment channel.
type CommentThread struct {
	*feed[Comment]
	client *Client
	postID int64
}

// NewCommentThread creates the thread of postID. Nothing is fetched or
// dialed until Load or Subscribe. cfg may be nil.
func NewCommentThread(client *Client, postID int64, cfg *ChannelConfig) *CommentThread {
	return &CommentThread{
		feed:   newFeed(client, Scope{Kind: ScopePost, ID: postID}, client.CommentPages(postID), NewestFirst, PostComments(postID), cfg),
		client: client,
		postID: postID,
	}
}

func (t *CommentThread) PostID() int64 { return t.postID }

// SetCommentCount seeds the known total from the post's comment count.
func (t *CommentThread) SetCommentCount(n int) { t.coll.SetKnownCount(n) }

// Load fetches the small first page, or the next page once the first one
// is in.
func (t *CommentThread) Load(ctx context.Context) (int, error) {
	if !t.coll.Loaded() {
		return t.coll.LoadMore(ctx, InitialPageSize)
	}
	return t.ShowMore(ctx)
}

// ShowMore fetches the next page of older comments.
func (t *CommentThread) ShowMore(ctx context.Context) (int, error) {
	return t.coll.LoadMore(ctx, MorePageSize)
}

// Post creates a comment as the client's user. It is visible immediately
// and withdrawn if the server rejects it.
func (t *CommentThread) Post(ctx context.Context, content string) (Comment, error) {
	local := Comment{PostID: t.postID, AuthorID: t.client.UserID(), Content: content}
	return t.create(ctx, local, func(ctx context.Context) (*Comment, error) {
		return t.client.CreateComment(ctx, t.postID, 0, content)
	})
}

// ============================================================================
// CommentNode
// ============================================================================

// CommentNode is a top-level comment with its reply panel. Replies are
// plain comments: one level deep only.
type CommentNode struct {
	*feed[Comment]
	client  *Client
	comment Comment

	mu       sync.Mutex
	expanded bool
}

// NewCommentNode returns the reply panel of c, seeded with its reply
// count. It fails with ErrNotTopLevel when c is itself a reply.
func NewCommentNode(client *Client, c Comment, cfg *ChannelConfig) (*CommentNode, error) {
	if !c.TopLevel() {
		return nil, ErrNotTopLevel
	}
	n := &CommentNode{
		feed:    newFeed(client, Scope{Kind: ScopeComment, ID: c.ID}, client.ReplyPages(c.ID), NewestFirst, CommentReplies(c.ID), cfg),
		client:  client,
		comment: c,
	}
	n.coll.SetKnownCount(c.ReplyCount)
	return n, nil
}

// Comment returns the parent comment with its reply count kept current.
func (n *CommentNode) Comment() Comment {
	c := n.comment
	c.ReplyCount = n.coll.KnownCount()
	return c
}

func (n *CommentNode) Expanded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.expanded
}

// Expand opens the reply channel and, the first time only, fetches
// replies if the comment has any.
func (n *CommentNode) Expand(ctx context.Context) error {
	n.mu.Lock()
	n.expanded = true
	n.mu.Unlock()

	if err := n.Subscribe(); err != nil {
		return err
	}
	if n.coll.Loaded() || n.coll.KnownCount() == 0 {
		return nil
	}
	_, err := n.coll.LoadMore(ctx, ReplyPageSize)
	return err
}

// Collapse closes the reply channel and keeps the loaded replies.
func (n *CommentNode) Collapse() error {
	n.mu.Lock()
	n.expanded = false
	n.mu.Unlock()
	return n.Unsubscribe()
}

// ShowMore fetches the next page of replies.
func (n *CommentNode) ShowMore(ctx context.Context) (int, error) {
	return n.coll.LoadMore(ctx, ReplyPageSize)
}

// Reply creates a reply to the comment as the client's user.
func (n *CommentNode) Reply(ctx context.Context, content string) (Comment, error) {
	local := Comment{
		PostID:   n.comment.PostID,
		ParentID: n.comment.ID,
		AuthorID: n.client.UserID(),
		Content:  content,
	}
	return n.create(ctx, local, func(ctx context.Context) (*Comment, error) {
		return n.client.CreateComment(ctx, n.comment.PostID, n.comment.ID, content)
	})
}

// Close collapses the node for good.
func (n *CommentNode) Close() error {
	n.mu.Lock()
	n.expanded = false
	n.mu.Unlock()
	return n.feed.Close()
}
