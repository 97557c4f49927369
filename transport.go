package congregate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

// Close codes used by channels.
const (
	StatusNormalClosure   = 1000
	StatusGoingAway       = 1001
	StatusAbnormalClosure = 1006
)

// Conn is one live push-channel connection. Read blocks until a frame
// arrives and reports the end of the connection as a *CloseError.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close(code int, reason string) error
}

// Dialer opens push-channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// ============================================================================
// WebSocket
// ============================================================================

// WebSocketDialer dials channels over WebSocket.
type WebSocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	// ReadLimit caps the size of a single frame; zero keeps the library default.
	ReadLimit int64
}

func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return nil, &CloseError{Code: StatusAbnormalClosure, Reason: err.Error()}
	}
	return data, nil
}

func (c *wsConn) Close(code int, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

// ============================================================================
// Server-Sent Events
// ============================================================================

// SSEDialer reads channels from a text/event-stream endpoint. Each
// "data: " line is one frame; comment lines are heartbeats.
type SSEDialer struct {
	HTTPClient *http.Client
	Header     http.Header
}

func (d *SSEDialer) Dial(ctx context.Context, url string) (Conn, error) {
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("SSE connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("SSE HTTP %d", resp.StatusCode)
	}

	return &sseConn{
		resp:    resp,
		scanner: bufio.NewScanner(resp.Body),
		cancel:  cancel,
	}, nil
}

type sseConn struct {
	resp    *http.Response
	scanner *bufio.Scanner
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed *CloseError
}

func (c *sseConn) Read(ctx context.Context) ([]byte, error) {
	for c.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, c.endErr(err.Error())
		}
		line := c.scanner.Text()
		if strings.HasPrefix(line, ":") {
			continue // heartbeat comment
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return []byte(data), nil
		}
	}
	reason := "stream ended"
	if err := c.scanner.Err(); err != nil {
		reason = err.Error()
	}
	return nil, c.endErr(reason)
}

// endErr prefers the code given to Close over the read failure it caused.
func (c *sseConn) endErr(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed != nil {
		return c.closed
	}
	return &CloseError{Code: StatusAbnormalClosure, Reason: reason}
}

func (c *sseConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed != nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = &CloseError{Code: code, Reason: reason}
	c.mu.Unlock()

	c.cancel()
	return c.resp.Body.Close()
}
