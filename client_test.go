package congregate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
	Auth   string
}

// recordingServer answers every request with reply and records it.
func recordingServer(t *testing.T, status int, reply string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
			Auth:   r.Header.Get("Authorization"),
		}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			json.Unmarshal(b, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestClientComments(t *testing.T) {
	srv, reqs := recordingServer(t, http.StatusOK, `{"success":true,"message":"Comments retrieved successfully","total":9,"data":[
		{"id":3,"post_id":1,"parent_id":0,"author_id":2,"content":"a","reply_count":2,"like_count":1,"user_liked":true},
		{"id":2,"post_id":1,"parent_id":0,"author_id":4,"content":"b"}]}`)
	client := NewClient(42, WithBaseURL(srv.URL+"/"), WithToken("tok"))

	page, err := client.Comments(context.Background(), 1, 2, 8)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].ID)
	assert.Equal(t, 2, page.Items[0].ReplyCount)
	assert.Equal(t, ToggleSnapshot{Like: {Count: 1, On: true}, Dislike: {}}, page.Items[0].Reactions())
	require.NotNil(t, page.Total)
	assert.Equal(t, 9, *page.Total)

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodGet, got[0].Method)
	assert.Equal(t, "/api/users/42/posts/1/comments/", got[0].Path)
	assert.Equal(t, map[string]string{"offset": "2", "limit": "8"}, got[0].Query)
	assert.Equal(t, "Bearer tok", got[0].Auth)
}

func TestClientHistoryPaths(t *testing.T) {
	srv, reqs := recordingServer(t, http.StatusOK, `{"success":true,"data":[]}`)
	client := NewClient(42, WithBaseURL(srv.URL))
	ctx := context.Background()

	_, err := client.Replies(ctx, 5, 0, ReplyPageSize)
	require.NoError(t, err)
	_, err = client.Messages(ctx, 7, 20, ChatPageSize)
	require.NoError(t, err)

	got := reqs()
	require.Len(t, got, 2)
	assert.Equal(t, "/api/users/42/comments/5/replies/", got[0].Path)
	assert.Equal(t, "/api/chats/7/messages/", got[1].Path)
	assert.Equal(t, "20", got[1].Query["offset"])
}

func TestClientGetComment(t *testing.T) {
	srv, reqs := recordingServer(t, http.StatusOK, `{"success":true,"data":{"id":5,"post_id":1,"parent_id":0,"author_id":2,"content":"top","reply_count":3}}`)
	client := NewClient(42, WithBaseURL(srv.URL))

	c, err := client.GetComment(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.ID)
	assert.Equal(t, 3, c.ReplyCount)
	assert.True(t, c.TopLevel())

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodGet, got[0].Method)
	assert.Equal(t, "/api/comments/5/", got[0].Path)
}

func TestClientCreate(t *testing.T) {
	t.Run("comment", func(t *testing.T) {
		srv, reqs := recordingServer(t, http.StatusCreated, `{"success":true,"id":11,"data":{"id":11,"post_id":1,"parent_id":5,"author_id":42,"content":"hi"}}`)
		client := NewClient(42, WithBaseURL(srv.URL))

		c, err := client.CreateComment(context.Background(), 1, 5, "hi")
		require.NoError(t, err)
		assert.Equal(t, int64(11), c.ID)

		got := reqs()[0]
		assert.Equal(t, http.MethodPost, got.Method)
		assert.Equal(t, "/api/comments/", got.Path)
		assert.Equal(t, map[string]any{"post_id": 1.0, "parent_id": 5.0, "author_id": 42.0, "content": "hi"}, got.Body)
	})

	t.Run("message", func(t *testing.T) {
		srv, reqs := recordingServer(t, http.StatusOK, `{"success":true,"data":{"id":70,"chat_id":7,"sender_id":42,"content":"yo"}}`)
		client := NewClient(42, WithBaseURL(srv.URL))

		m, err := client.SendMessage(context.Background(), 7, "yo")
		require.NoError(t, err)
		assert.Equal(t, int64(70), m.ID)

		got := reqs()[0]
		assert.Equal(t, "/api/chats/7/messages/create/", got.Path)
		assert.Equal(t, map[string]any{"sender_id": 42.0, "content": "yo"}, got.Body)
	})
}

func TestClientSetToggle(t *testing.T) {
	srv, reqs := recordingServer(t, http.StatusOK, `{"success":true,"message":"ok"}`)
	client := NewClient(42, WithBaseURL(srv.URL))
	ctx := context.Background()

	require.NoError(t, client.SetToggle(ctx, Like, 3, 42, true))
	require.NoError(t, client.SetToggle(ctx, Dislike, 3, 42, false))
	require.NoError(t, client.SetToggle(ctx, Going, 8, 42, true))
	require.NoError(t, client.SetToggle(ctx, Interested, 8, 42, false))
	assert.ErrorIs(t, client.SetToggle(ctx, ToggleKind("x"), 8, 42, false), ErrUnknownToggle)

	var paths []string
	for _, r := range reqs() {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{
		"/api/posts/3/like/42/",
		"/api/posts/3/dislike/42/remove/",
		"/api/events/8/going/42/",
		"/api/events/8/interested/42/remove/",
	}, paths)
}

func TestClientErrors(t *testing.T) {
	t.Run("rejected envelope", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusBadRequest, `{"success":false,"message":"Failed to like post - user has disliked"}`)
		client := NewClient(42, WithBaseURL(srv.URL))

		err := client.SetToggle(context.Background(), Like, 3, 42, true)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Contains(t, apiErr.Message, "disliked")
	})

	t.Run("error field", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusMethodNotAllowed, `{"error":"Method not allowed"}`)
		client := NewClient(42, WithBaseURL(srv.URL))

		_, err := client.Comments(context.Background(), 1, 0, 2)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Method not allowed", apiErr.Message)
	})

	t.Run("not json", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
		client := NewClient(42, WithBaseURL(srv.URL))

		_, err := client.Messages(context.Background(), 1, 0, 20)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	})

	t.Run("success false with 200", func(t *testing.T) {
		srv, _ := recordingServer(t, http.StatusOK, `{"success":false,"message":"Failed to fetch"}`)
		client := NewClient(42, WithBaseURL(srv.URL))

		_, err := client.Replies(context.Background(), 1, 0, 8)
		assert.Error(t, err)
	})

	t.Run("transport", func(t *testing.T) {
		client := NewClient(42, WithBaseURL("http://127.0.0.1:1"))
		_, err := client.Comments(context.Background(), 1, 0, 2)
		require.Error(t, err)
		var apiErr *APIError
		assert.False(t, errors.As(err, &apiErr), "transport failures are not API errors")
	})
}

func TestClientChannelURLs(t *testing.T) {
	c := NewClient(1, WithBaseURL("https://congregate.example"))
	assert.Equal(t, "wss://congregate.example/ws/comments/4/", c.CommentsChannelURL(4))
	assert.Equal(t, "wss://congregate.example/ws/replies/5/", c.ChannelURL(Scope{Kind: ScopeComment, ID: 5}))
	assert.Equal(t, "wss://congregate.example/ws/chat/6/", c.ChannelURL(Scope{Kind: ScopeChat, ID: 6}))

	c = NewClient(1, WithBaseURL("http://localhost:8000"))
	assert.Equal(t, "ws://localhost:8000/ws/comments/4/", c.ChannelURL(Scope{Kind: ScopePost, ID: 4}))

	c = NewClient(1, WithBaseURL("http://api.local"), WithChannelURL("ws://push.local/"))
	assert.Equal(t, "ws://push.local/ws/chat/6/", c.ChatChannelURL(6))
	assert.Equal(t, "ws://push.local", c.ChannelOrigin())
	assert.Equal(t, "http://api.local", c.BaseURL())
}
