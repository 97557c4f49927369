package congregate

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// feed pairs one collection with the push channel of its scope. The
// channel exists only between Subscribe and Unsubscribe.
type feed[T Record] struct {
	scope  Scope
	url    string
	coll   *Collection[T]
	merger *Merger[T]
	chCfg  ChannelConfig
	log    *zap.Logger

	mu      sync.Mutex
	channel *Channel
	closed  bool
}

func newFeed[T Record](client *Client, scope Scope, fetch FetchFunc[T], order Order, extract func(Event) (T, bool), cfg *ChannelConfig) *feed[T] {
	var chCfg ChannelConfig
	if cfg != nil {
		chCfg = *cfg
	}
	if chCfg.Logger == nil {
		chCfg.Logger = client.Logger()
	}
	log := chCfg.Logger.With(zap.Stringer("scope", scope))
	chCfg.Logger = log

	coll := NewCollection(fetch, log)
	return &feed[T]{
		scope:  scope,
		url:    client.ChannelURL(scope),
		coll:   coll,
		merger: NewMerger(coll, order, extract, log),
		chCfg:  chCfg,
		log:    log,
	}
}

// Scope returns the parent the feed belongs to.
func (f *feed[T]) Scope() Scope { return f.scope }

// Collection exposes the underlying collection.
func (f *feed[T]) Collection() *Collection[T] { return f.coll }

func (f *feed[T]) Items() []T { return f.coll.Items() }
func (f *feed[T]) Entries() []Entry[T] { return f.coll.Entries() }
func (f *feed[T]) KnownCount() int { return f.coll.KnownCount() }
func (f *feed[T]) VisibleCount() int { return f.coll.VisibleCount() }
func (f *feed[T]) HasMore() bool { return f.coll.HasMore() }
func (f *feed[T]) Handle(ev Event) { f.merger.Handle(ev) }
func (f *feed[T]) Merger() *Merger[T] { return f.merger }

// Subscribe opens the scope's push channel if it is not already open.
func (f *feed[T]) Subscribe() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.channel == nil {
		f.channel = OpenChannel(f.url, f.merger.Handle, &f.chCfg)
	}
	return nil
}

// Unsubscribe closes the push channel. Loaded history is kept.
func (f *feed[T]) Unsubscribe() error {
	f.mu.Lock()
	ch := f.channel
	f.channel = nil
	f.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

// Channel returns the live channel, or nil while unsubscribed.
func (f *feed[T]) Channel() *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

// ChannelState reports the push channel health; closed while unsubscribed.
func (f *feed[T]) ChannelState() ChannelState {
	if ch := f.Channel(); ch != nil {
		return ch.State()
	}
	return ChannelClosed
}

// Close tears down the channel; later Subscribe calls fail with ErrClosed.
func (f *feed[T]) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.Unsubscribe()
}

// create shows local immediately and reconciles it with the record returned
// by do, or withdraws it when do fails.
func (f *feed[T]) create(ctx context.Context, local T, do func(context.Context) (*T, error)) (T, error) {
	clientID := f.merger.InsertLocal(local)
	created, err := do(ctx)
	if err != nil {
		f.merger.Discard(clientID)
		f.log.Warn("create failed, local entry withdrawn", zap.String("client_id", clientID), zap.Error(err))
		var zero T
		return zero, err
	}
	f.merger.Confirm(clientID, *created)
	return *created, nil
}
