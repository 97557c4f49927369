package congregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Page sizes used by the composites.
const (
	InitialPageSize = 2
	MorePageSize    = 8
	ReplyPageSize   = 8
	ChatPageSize    = 20
)

// FetchFunc loads limit items starting at offset.
type FetchFunc[T Record] func(ctx context.Context, offset, limit int) (*Page[T], error)

// Entry is one displayed item. Pending entries were inserted locally and
// have no server id yet.
type Entry[T Record] struct {
	Item     T
	ClientID string
	Pending  bool

	seq uint64
}

// Collection is a paginated, de-duplicated list of records. The visible
// count is the number of entries held, and never exceeds the known count.
type Collection[T Record] struct {
	fetch FetchFunc[T]
	log   *zap.Logger

	mu        sync.Mutex
	entries   []Entry[T]
	ids       map[int64]struct{}
	known     int
	reported  bool
	exhausted bool
	loading   bool
	pages     int
	seq       uint64
}

// NewCollection returns an empty collection paging through fetch.
func NewCollection[T Record](fetch FetchFunc[T], log *zap.Logger) *Collection[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collection[T]{
		fetch: fetch,
		log:   log,
		ids:   make(map[int64]struct{}),
	}
}

// Items returns a copy of the displayed records in display order.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Item
	}
	return out
}

// Entries returns a copy of the displayed entries, pending ones included.
func (c *Collection[T]) Entries() []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry[T](nil), c.entries...)
}

func (c *Collection[T]) KnownCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.known
}

func (c *Collection[T]) VisibleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Loaded reports whether at least one page has been fetched.
func (c *Collection[T]) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages > 0
}

// HasMore reports whether LoadMore may still append anything.
func (c *Collection[T]) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.doneLocked()
}

// SetKnownCount seeds the server total, typically from the parent's
// reply or comment count.
func (c *Collection[T]) SetKnownCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known = n
	c.reported = true
	c.clampLocked()
}

func (c *Collection[T]) doneLocked() bool {
	if c.exhausted {
		return true
	}
	return c.reported && len(c.entries) >= c.known
}

// LoadMore fetches the next page at offset len(items) and appends the
// records not already present. It returns the number appended. When the
// whole collection is already visible it returns 0 without fetching.
func (c *Collection[T]) LoadMore(ctx context.Context, pageSize int) (int, error) {
	if pageSize <= 0 {
		return 0, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return 0, ErrLoadInProgress
	}
	if c.doneLocked() {
		c.mu.Unlock()
		return 0, nil
	}
	c.loading = true
	offset := len(c.entries)
	c.mu.Unlock()

	page, err := c.fetch(ctx, offset, pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.log.Warn("page fetch failed", zap.Int("offset", offset), zap.Int("limit", pageSize), zap.Error(err))
		return 0, err
	}
	if page == nil {
		page = &Page[T]{}
	}

	appended := 0
	for _, item := range page.Items {
		id := item.RecordID()
		if _, dup := c.ids[id]; dup {
			continue
		}
		c.ids[id] = struct{}{}
		c.entries = append(c.entries, Entry[T]{Item: item})
		appended++
	}
	c.pages++

	if page.Total != nil {
		c.known = *page.Total
		c.reported = true
	}
	if len(page.Items) < pageSize {
		c.exhausted = true
		if !c.reported {
			c.known = len(c.entries)
		}
	}
	c.clampLocked()

	c.log.Debug("page loaded",
		zap.Int("offset", offset),
		zap.Int("received", len(page.Items)),
		zap.Int("appended", appended),
		zap.Int("visible", len(c.entries)),
		zap.Int("known", c.known))
	return appended, nil
}

func (c *Collection[T]) clampLocked() {
	if c.known < len(c.entries) {
		c.known = len(c.entries)
	}
}

func (c *Collection[T]) placeLocked(e Entry[T], front bool) {
	c.seq++
	e.seq = c.seq
	if front {
		c.entries = append([]Entry[T]{e}, c.entries...)
	} else {
		c.entries = append(c.entries, e)
	}
}

// ============================================================================
// Mutations driven by Merger
// ============================================================================

// insertPushed adds a server-confirmed record that arrived by push. It
// returns "duplicate", "adopted" or "inserted".
func (c *Collection[T]) insertPushed(item T, front bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := item.RecordID()
	if _, dup := c.ids[id]; dup {
		return "duplicate"
	}
	c.ids[id] = struct{}{}

	if i := c.oldestPendingLocked(item); i >= 0 {
		c.entries[i].Item = item
		c.entries[i].Pending = false
		return "adopted"
	}

	c.placeLocked(Entry[T]{Item: item}, front)
	c.known++
	c.clampLocked()
	return "inserted"
}

func (c *Collection[T]) oldestPendingLocked(item T) int {
	best := -1
	for i, e := range c.entries {
		if !e.Pending {
			continue
		}
		if e.Item.RecordAuthor() != item.RecordAuthor() || e.Item.RecordContent() != item.RecordContent() {
			continue
		}
		if best < 0 || e.seq < c.entries[best].seq {
			best = i
		}
	}
	return best
}

func (c *Collection[T]) insertLocal(item T, front bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	clientID := uuid.NewString()
	c.placeLocked(Entry[T]{Item: item, ClientID: clientID, Pending: true}, front)
	c.known++
	c.clampLocked()
	return clientID
}

func (c *Collection[T]) indexOfClientLocked(clientID string) int {
	for i, e := range c.entries {
		if e.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) removeLocked(i int) {
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
}

// confirm resolves a pending entry with the record the server created.
// front places the record when it has to be inserted as a new entry.
func (c *Collection[T]) confirm(clientID string, item T, front bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := item.RecordID()
	i := c.indexOfClientLocked(clientID)
	if i < 0 {
		return "unknown"
	}
	if !c.entries[i].Pending {
		// A push already adopted the entry. If it adopted a different
		// record, the confirmed one is merged in on its own.
		if c.entries[i].Item.RecordID() == id {
			c.entries[i].Item = item
			return "duplicate"
		}
		if _, dup := c.ids[id]; dup {
			return "duplicate"
		}
		c.ids[id] = struct{}{}
		c.placeLocked(Entry[T]{Item: item}, front)
		c.known++
		c.clampLocked()
		return "inserted"
	}

	if _, dup := c.ids[id]; dup {
		c.removeLocked(i)
		c.known--
		c.clampLocked()
		return "duplicate"
	}
	c.ids[id] = struct{}{}
	c.entries[i].Item = item
	c.entries[i].Pending = false
	return "confirmed"
}

// discard withdraws a pending entry whose create request failed.
func (c *Collection[T]) discard(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOfClientLocked(clientID)
	if i < 0 || !c.entries[i].Pending {
		return false
	}
	c.removeLocked(i)
	c.known--
	c.clampLocked()
	return true
}
