package congregate

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// ============================================================================
// Configuration
// ============================================================================

// Timer is the handle returned by ChannelConfig.AfterFunc.
type Timer interface {
	Stop() bool
}

// ChannelConfig configures a push channel. The zero value is usable.
type ChannelConfig struct {
	Dialer Dialer
	// StartupDelay postpones the first dial; negative dials immediately.
	StartupDelay time.Duration
	// BaseDelay is the wait before the first reconnect; each further
	// attempt doubles it.
	BaseDelay time.Duration
	// MaxAttempts bounds reconnects between two successful opens;
	// negative disables reconnecting.
	MaxAttempts int
	Logger      *zap.Logger
	// AfterFunc schedules f after d. It must not call f synchronously.
	AfterFunc func(d time.Duration, f func()) Timer

	// Hooks installed before the first dial. More can be added with the
	// Channel's On* methods.
	OnOpen         func()
	OnClose        func(code int, reason string)
	OnReconnecting func(attempt int, delay time.Duration)
	OnDegraded     func()
}

const (
	DefaultStartupDelay = 500 * time.Millisecond
	DefaultBaseDelay    = 1 * time.Second
	DefaultMaxAttempts  = 5
)

func (c *ChannelConfig) defaults() {
	if c.Dialer == nil {
		c.Dialer = &WebSocketDialer{}
	}
	switch {
	case c.StartupDelay == 0:
		c.StartupDelay = DefaultStartupDelay
	case c.StartupDelay < 0:
		c.StartupDelay = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.AfterFunc == nil {
		c.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
}

// ChannelState represents the connection state.
type ChannelState string

const (
	ChannelConnecting   ChannelState = "connecting"
	ChannelOpen         ChannelState = "open"
	ChannelReconnecting ChannelState = "reconnecting"
	ChannelClosed       ChannelState = "closed"
	ChannelDegraded     ChannelState = "degraded"
)

// ============================================================================
// Reconnect schedule
// ============================================================================

// newReconnectBackoff yields base, 2·base, 4·base, ... and then
// backoff.Stop once maxAttempts delays have been handed out.
func newReconnectBackoff(base time.Duration, maxAttempts int) backoff.BackOff {
	if maxAttempts < 0 {
		return &backoff.StopBackOff{}
	}
	ceiling := base
	for i := 0; i < maxAttempts && ceiling < time.Duration(math.MaxInt64/4); i++ {
		ceiling *= 2
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         ceiling,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(maxAttempts))
}

// ============================================================================
// Hooks
// ============================================================================

// EventHandler receives every decoded event of a channel, in arrival order.
type EventHandler func(Event)

type channelHooks struct {
	onOpen         []func()
	onClose        []func(code int, reason string)
	onReconnecting []func(attempt int, delay time.Duration)
	onDegraded     []func()
}

// ============================================================================
// Channel
// ============================================================================

// Channel is a subscription to one push scope that reconnects on abnormal
// closure. Create it with OpenChannel and release it with Close.
type Channel struct {
	url     string
	cfg     ChannelConfig
	handler EventHandler
	log     *zap.Logger

	mu         sync.Mutex
	state      ChannelState
	subscribed bool
	attempt    int
	schedule   backoff.BackOff
	timer      Timer
	conn       Conn
	cancelFn   context.CancelFunc
	hooks      channelHooks
}

// OpenChannel subscribes to url and returns immediately; the first dial
// happens after the configured startup delay. cfg may be nil.
func OpenChannel(url string, onEvent EventHandler, cfg *ChannelConfig) *Channel {
	var c ChannelConfig
	if cfg != nil {
		c = *cfg
	}
	c.defaults()

	ch := &Channel{
		url:        url,
		cfg:        c,
		handler:    onEvent,
		log:        c.Logger.With(zap.String("channel", url)),
		state:      ChannelConnecting,
		subscribed: true,
		schedule:   newReconnectBackoff(c.BaseDelay, c.MaxAttempts),
	}
	if c.OnOpen != nil {
		ch.hooks.onOpen = append(ch.hooks.onOpen, c.OnOpen)
	}
	if c.OnClose != nil {
		ch.hooks.onClose = append(ch.hooks.onClose, c.OnClose)
	}
	if c.OnReconnecting != nil {
		ch.hooks.onReconnecting = append(ch.hooks.onReconnecting, c.OnReconnecting)
	}
	if c.OnDegraded != nil {
		ch.hooks.onDegraded = append(ch.hooks.onDegraded, c.OnDegraded)
	}

	ch.mu.Lock()
	ch.timer = c.AfterFunc(c.StartupDelay, ch.dial)
	ch.mu.Unlock()
	return ch
}

// URL returns the scope address the channel is subscribed to.
func (ch *Channel) URL() string { return ch.url }

// State returns the current connection state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Attempts returns the number of reconnects scheduled since the last
// successful open.
func (ch *Channel) Attempts() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.attempt
}

// OnOpen registers a handler for every successful open.
func (ch *Channel) OnOpen(h func()) {
	ch.mu.Lock()
	ch.hooks.onOpen = append(ch.hooks.onOpen, h)
	ch.mu.Unlock()
}

// OnClose registers a handler for every connection end, including failed dials.
func (ch *Channel) OnClose(h func(code int, reason string)) {
	ch.mu.Lock()
	ch.hooks.onClose = append(ch.hooks.onClose, h)
	ch.mu.Unlock()
}

// OnReconnecting registers a handler called when a reconnect is scheduled.
func (ch *Channel) OnReconnecting(h func(attempt int, delay time.Duration)) {
	ch.mu.Lock()
	ch.hooks.onReconnecting = append(ch.hooks.onReconnecting, h)
	ch.mu.Unlock()
}

// OnDegraded registers a handler called once reconnects are exhausted.
func (ch *Channel) OnDegraded(h func()) {
	ch.mu.Lock()
	ch.hooks.onDegraded = append(ch.hooks.onDegraded, h)
	ch.mu.Unlock()
}

// Close unsubscribes: it cancels any pending dial, and closes the live
// connection with a normal closure. It is safe to call more than once.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	if !ch.subscribed {
		ch.mu.Unlock()
		return nil
	}
	ch.subscribed = false
	if ch.timer != nil {
		ch.timer.Stop()
		ch.timer = nil
	}
	conn := ch.conn
	ch.conn = nil
	cancel := ch.cancelFn
	ch.cancelFn = nil
	ch.state = ChannelClosed
	ch.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(StatusNormalClosure, "unsubscribe")
		ChannelsActive.Dec()
	}
	if cancel != nil {
		cancel()
	}
	ch.log.Debug("channel closed by client")
	return err
}

func (ch *Channel) dial() {
	ch.mu.Lock()
	if !ch.subscribed {
		ch.mu.Unlock()
		return
	}
	ch.timer = nil
	ch.state = ChannelConnecting
	ctx, cancel := context.WithCancel(context.Background())
	ch.cancelFn = cancel
	ch.mu.Unlock()

	conn, err := ch.cfg.Dialer.Dial(ctx, ch.url)
	if err != nil {
		ch.log.Warn("channel dial failed", zap.Error(err))
		ch.closed(nil, err)
		return
	}

	ch.mu.Lock()
	if !ch.subscribed {
		ch.mu.Unlock()
		conn.Close(StatusNormalClosure, "unsubscribe")
		cancel()
		return
	}
	ch.conn = conn
	ch.state = ChannelOpen
	ch.attempt = 0
	ch.schedule.Reset()
	hooks := append([]func(){}, ch.hooks.onOpen...)
	ch.mu.Unlock()

	ChannelOpens.Inc()
	ChannelsActive.Inc()
	ch.log.Info("channel open")
	for _, h := range hooks {
		ch.safely("open hook", h)
	}

	go ch.readLoop(ctx, conn)
}

func (ch *Channel) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			ch.closed(conn, err)
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			FramesDropped.WithLabelValues("malformed").Inc()
			ch.log.Warn("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if u, ok := ev.(Unknown); ok {
			FramesDropped.WithLabelValues("unknown").Inc()
			ch.log.Debug("ignoring unknown event", zap.String("type", string(u.Kind)))
			continue
		}

		EventsReceived.WithLabelValues(string(ev.Type())).Inc()
		if ch.handler != nil {
			ch.safely("event handler", func() { ch.handler(ev) })
		}
	}
}

// closed handles the end of conn (nil for a failed dial) and decides
// whether to reconnect.
func (ch *Channel) closed(conn Conn, err error) {
	code, reason := closeStatus(err)

	ch.mu.Lock()
	if conn != nil && ch.conn != conn {
		// Close already released this connection.
		ch.mu.Unlock()
		return
	}
	if conn != nil {
		ChannelsActive.Dec()
	}
	ch.conn = nil
	if ch.cancelFn != nil {
		ch.cancelFn()
		ch.cancelFn = nil
	}
	if !ch.subscribed {
		ch.mu.Unlock()
		return
	}

	closeHooks := append([]func(int, string){}, ch.hooks.onClose...)
	var (
		reconnectHooks []func(int, time.Duration)
		degradedHooks  []func()
		attempt        int
		delay          time.Duration
	)

	switch {
	case code == StatusNormalClosure:
		ch.state = ChannelClosed
	default:
		delay = ch.schedule.NextBackOff()
		if delay == backoff.Stop {
			ch.state = ChannelDegraded
			degradedHooks = append(degradedHooks, ch.hooks.onDegraded...)
			break
		}
		ch.attempt++
		attempt = ch.attempt
		ch.state = ChannelReconnecting
		ch.timer = ch.cfg.AfterFunc(delay, ch.dial)
		reconnectHooks = append(reconnectHooks, ch.hooks.onReconnecting...)
	}
	state := ch.state
	ch.mu.Unlock()

	ch.log.Info("channel closed", zap.Int("code", code), zap.String("reason", reason))
	for _, h := range closeHooks {
		ch.safely("close hook", func() { h(code, reason) })
	}

	switch state {
	case ChannelReconnecting:
		ReconnectAttempts.Inc()
		ch.log.Info("channel reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		for _, h := range reconnectHooks {
			ch.safely("reconnecting hook", func() { h(attempt, delay) })
		}
	case ChannelDegraded:
		ChannelsDegraded.Inc()
		ch.log.Warn("channel degraded, reconnect attempts exhausted", zap.Int("max_attempts", ch.cfg.MaxAttempts))
		for _, h := range degradedHooks {
			ch.safely("degraded hook", h)
		}
	}
}

// safely runs f, logging instead of propagating a panic.
func (ch *Channel) safely(what string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			ch.log.Error("recovered panic", zap.String("in", what), zap.Any("panic", r))
		}
	}()
	f()
}
