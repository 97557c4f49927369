// Package congregate is the Go client for the Congregate social API.
//
// It keeps paginated history of comments, replies and chat messages in
// sync with the server's push channels, and applies likes and attendance
// optimistically.
//
// Example:
//
//	client := congregate.NewClient(42, congregate.WithBaseURL("https://congregate.example"))
//
//	thread := congregate.NewCommentThread(client, postID, nil)
//	thread.Subscribe()
//	defer thread.Close()
//	thread.Load(ctx)
//
//	node, _ := congregate.NewCommentNode(client, thread.Items()[0], nil)
//	node.Expand(ctx)
//
//	room := congregate.NewChatRoom(client, chatID, nil)
//	room.Send(ctx, "hello")
package congregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	userID     int64
	token      string
	baseURL    string
	channelURL string
	httpClient *http.Client
	log        *zap.Logger
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithChannelURL overrides the push-channel origin, which otherwise is the
// base URL with its scheme switched to ws or wss.
func WithChannelURL(url string) ClientOption {
	return func(c *Client) { c.channelURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client acting as userID.
func NewClient(userID int64, opts ...ClientOption) *Client {
	c := &Client{
		userID:  userID,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// UserID returns the acting user.
func (c *Client) UserID() int64 { return c.userID }

// BaseURL returns the REST origin requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// Logger returns the logger the client and its composites write to.
func (c *Client) Logger() *zap.Logger { return c.log }

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// call performs a request and unwraps the response envelope.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, status, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	res, err := decodeJSON[Result](data)
	if err != nil {
		if status >= http.StatusBadRequest {
			return nil, &APIError{Status: status, Message: http.StatusText(status)}
		}
		return nil, err
	}
	if status >= http.StatusBadRequest && res.Success {
		res.Success = false
	}
	if err := res.Err(status); err != nil {
		c.log.Debug("request rejected", zap.String("method", method), zap.String("path", path), zap.Int("status", status), zap.Error(err))
		return res, err
	}
	return res, nil
}

func paginationQuery(offset, limit int) map[string]string {
	return map[string]string{
		"offset": strconv.Itoa(offset),
		"limit":  strconv.Itoa(limit),
	}
}

func decodePage[T Record](res *Result) (*Page[T], error) {
	var items []T
	if err := res.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &Page[T]{Items: items, Total: res.Total}, nil
}

// ============================================================================
// History
// ============================================================================

// Comments lists top-level comments of postID, newest first.
func (c *Client) Comments(ctx context.Context, postID int64, offset, limit int) (*Page[Comment], error) {
	res, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d/posts/%d/comments/", c.userID, postID), nil, paginationQuery(offset, limit))
	if err != nil {
		return nil, err
	}
	return decodePage[Comment](res)
}

// Replies lists replies to commentID.
func (c *Client) Replies(ctx context.Context, commentID int64, offset, limit int) (*Page[Comment], error) {
	res, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d/comments/%d/replies/", c.userID, commentID), nil, paginationQuery(offset, limit))
	if err != nil {
		return nil, err
	}
	return decodePage[Comment](res)
}

// Messages lists messages of chatID in chronological order.
func (c *Client) Messages(ctx context.Context, chatID int64, offset, limit int) (*Page[ChatMessage], error) {
	res, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages/", chatID), nil, paginationQuery(offset, limit))
	if err != nil {
		return nil, err
	}
	return decodePage[ChatMessage](res)
}

func (c *Client) GetComment(ctx context.Context, commentID int64) (*Comment, error) {
	res, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/comments/%d/", commentID), nil, nil)
	if err != nil {
		return nil, err
	}
	var cm Comment
	if err := res.Decode(&cm); err != nil {
		return nil, fmt.Errorf("decode comment: %w", err)
	}
	return &cm, nil
}

// CommentPages returns a FetchFunc over the comments of postID.
func (c *Client) CommentPages(postID int64) FetchFunc[Comment] {
	return func(ctx context.Context, offset, limit int) (*Page[Comment], error) {
		return c.Comments(ctx, postID, offset, limit)
	}
}

// ReplyPages returns a FetchFunc over the replies to commentID.
func (c *Client) ReplyPages(commentID int64) FetchFunc[Comment] {
	return func(ctx context.Context, offset, limit int) (*Page[Comment], error) {
		return c.Replies(ctx, commentID, offset, limit)
	}
}

// MessagePages returns a FetchFunc over the messages of chatID.
func (c *Client) MessagePages(chatID int64) FetchFunc[ChatMessage] {
	return func(ctx context.Context, offset, limit int) (*Page[ChatMessage], error) {
		return c.Messages(ctx, chatID, offset, limit)
	}
}

// ============================================================================
// Writes
// ============================================================================

type createCommentRequest struct {
	PostID   int64  `json:"post_id"`
	ParentID int64  `json:"parent_id"`
	AuthorID int64  `json:"author_id"`
	Content  string `json:"content"`
}

// CreateComment posts a comment on postID, or a reply when parentID is set.
func (c *Client) CreateComment(ctx context.Context, postID, parentID int64, content string) (*Comment, error) {
	res, err := c.call(ctx, http.MethodPost, "/api/comments/", &createCommentRequest{
		PostID:   postID,
		ParentID: parentID,
		AuthorID: c.userID,
		Content:  content,
	}, nil)
	if err != nil {
		return nil, err
	}
	var cm Comment
	if err := res.Decode(&cm); err != nil {
		return nil, fmt.Errorf("decode comment: %w", err)
	}
	return &cm, nil
}

type sendMessageRequest struct {
	SenderID int64  `json:"sender_id"`
	Content  string `json:"content"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, content string) (*ChatMessage, error) {
	res, err := c.call(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages/create/", chatID), &sendMessageRequest{
		SenderID: c.userID,
		Content:  content,
	}, nil)
	if err != nil {
		return nil, err
	}
	var m ChatMessage
	if err := res.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

// SetToggle sends one like/dislike or going/interested request.
func (c *Client) SetToggle(ctx context.Context, kind ToggleKind, itemID, actorID int64, on bool) error {
	var resource string
	switch kind {
	case Like, Dislike:
		resource = "posts"
	case Going, Interested:
		resource = "events"
	default:
		return fmt.Errorf("%w: %q", ErrUnknownToggle, kind)
	}
	path := fmt.Sprintf("/api/%s/%d/%s/%d/", resource, itemID, kind, actorID)
	if !on {
		path += "remove/"
	}
	_, err := c.call(ctx, http.MethodPost, path, nil, nil)
	return err
}

// ============================================================================
// Push channels
// ============================================================================

// ChannelOrigin returns the origin push channels are dialed on: the
// WithChannelURL override, or the base URL with its scheme switched to ws or
// wss.
func (c *Client) ChannelOrigin() string {
	if c.channelURL != "" {
		return c.channelURL
	}
	u := strings.Replace(c.baseURL, "https://", "wss://", 1)
	return strings.Replace(u, "http://", "ws://", 1)
}

func (c *Client) CommentsChannelURL(postID int64) string {
	return fmt.Sprintf("%s/ws/comments/%d/", c.ChannelOrigin(), postID)
}

func (c *Client) RepliesChannelURL(commentID int64) string {
	return fmt.Sprintf("%s/ws/replies/%d/", c.ChannelOrigin(), commentID)
}

func (c *Client) ChatChannelURL(chatID int64) string {
	return fmt.Sprintf("%s/ws/chat/%d/", c.ChannelOrigin(), chatID)
}

// ChannelURL returns the push address of scope.
func (c *Client) ChannelURL(scope Scope) string {
	switch scope.Kind {
	case ScopeComment:
		return c.RepliesChannelURL(scope.ID)
	case ScopeChat:
		return c.ChatChannelURL(scope.ID)
	default:
		return c.CommentsChannelURL(scope.ID)
	}
}
