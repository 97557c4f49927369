package congregate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ToggleKind names one boolean of a mutually exclusive pair.
type ToggleKind string

const (
	Like       ToggleKind = "like"
	Dislike    ToggleKind = "dislike"
	Going      ToggleKind = "going"
	Interested ToggleKind = "interested"
)

// Opposite returns the other half of k's pair.
func (k ToggleKind) Opposite() (ToggleKind, bool) {
	switch k {
	case Like:
		return Dislike, true
	case Dislike:
		return Like, true
	case Going:
		return Interested, true
	case Interested:
		return Going, true
	}
	return "", false
}

func (k ToggleKind) pair() string {
	switch k {
	case Like, Dislike:
		return "reaction"
	case Going, Interested:
		return "attendance"
	}
	return ""
}

// ParseToggleKind validates a kind read from user input.
func ParseToggleKind(s string) (ToggleKind, error) {
	k := ToggleKind(s)
	if _, ok := k.Opposite(); !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownToggle, s)
	}
	return k, nil
}

// Baseline is the server-confirmed state of one toggle.
type Baseline struct {
	Count int
	On    bool
}

// ToggleSnapshot holds the baselines loaded with a record.
type ToggleSnapshot map[ToggleKind]Baseline

// ToggleView is what a toggle control displays.
type ToggleView struct {
	On      bool
	Count   int
	Pending bool
}

// ToggleSender issues toggle requests to the server.
type ToggleSender interface {
	SetToggle(ctx context.Context, kind ToggleKind, itemID, actorID int64, on bool) error
}

// ToggleSenderFunc adapts a function to ToggleSender.
type ToggleSenderFunc func(ctx context.Context, kind ToggleKind, itemID, actorID int64, on bool) error

func (f ToggleSenderFunc) SetToggle(ctx context.Context, kind ToggleKind, itemID, actorID int64, on bool) error {
	return f(ctx, kind, itemID, actorID, on)
}

type toggleKey struct {
	item int64
	kind ToggleKind
}

type pairKey struct {
	item int64
	pair string
}

type toggleState struct {
	baseline Baseline
	on       bool
}

func (s *toggleState) view() ToggleView {
	v := ToggleView{On: s.on, Count: s.baseline.Count}
	switch {
	case s.on && !s.baseline.On:
		v.Count++
	case !s.on && s.baseline.On:
		v.Count--
	}
	if v.Count < 0 {
		v.Count = 0
	}
	return v
}

// Toggles keeps optimistic like/dislike and going/interested state for any
// number of items. At most one toggle of a pair is on.
type Toggles struct {
	send ToggleSender
	log  *zap.Logger

	mu       sync.Mutex
	states   map[toggleKey]*toggleState
	inFlight map[pairKey]bool
}

func NewToggles(send ToggleSender, log *zap.Logger) *Toggles {
	if log == nil {
		log = zap.NewNop()
	}
	return &Toggles{
		send:     send,
		log:      log,
		states:   make(map[toggleKey]*toggleState),
		inFlight: make(map[pairKey]bool),
	}
}

func (t *Toggles) stateLocked(item int64, kind ToggleKind) *toggleState {
	k := toggleKey{item, kind}
	s, ok := t.states[k]
	if !ok {
		s = &toggleState{}
		t.states[k] = s
	}
	return s
}

// Track replaces the baselines of itemID with snap. Toggles with a request
// in flight keep their local state.
func (t *Toggles) Track(itemID int64, snap ToggleSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind, b := range snap {
		if _, ok := kind.Opposite(); !ok {
			continue
		}
		s := t.stateLocked(itemID, kind)
		s.baseline = b
		if !t.inFlight[pairKey{itemID, kind.pair()}] {
			s.on = b.On
		}
	}
}

// State returns the displayed state of one toggle.
func (t *Toggles) State(itemID int64, kind ToggleKind) ToggleView {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.stateLocked(itemID, kind).view()
	v.Pending = t.inFlight[pairKey{itemID, kind.pair()}]
	return v
}

// Pending reports whether kind on itemID is disabled by an in-flight request.
func (t *Toggles) Pending(itemID int64, kind ToggleKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight[pairKey{itemID, kind.pair()}]
}

// Toggle flips kind on itemID for actorID. The local state changes before
// the request is sent and is rolled back if the server rejects it. Toggle
// blocks until the server answers.
func (t *Toggles) Toggle(ctx context.Context, kind ToggleKind, itemID, actorID int64) error {
	opposite, ok := kind.Opposite()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownToggle, kind)
	}
	pk := pairKey{itemID, kind.pair()}

	t.mu.Lock()
	if t.inFlight[pk] {
		t.mu.Unlock()
		return ErrTogglePending
	}
	a := t.stateLocked(itemID, kind)
	b := t.stateLocked(itemID, opposite)
	t.inFlight[pk] = true

	if a.on {
		a.on = false
		t.mu.Unlock()

		err := t.send.SetToggle(ctx, kind, itemID, actorID, false)

		t.mu.Lock()
		delete(t.inFlight, pk)
		if err != nil {
			a.on = true
		}
		t.mu.Unlock()
		t.record(kind, itemID, false, err)
		if err != nil {
			return fmt.Errorf("%s off: %w", kind, err)
		}
		return nil
	}

	clearedOpposite := b.on
	b.on = false
	a.on = true
	t.mu.Unlock()

	var offErr error
	if clearedOpposite {
		offErr = t.send.SetToggle(ctx, opposite, itemID, actorID, false)
		t.record(opposite, itemID, false, offErr)
	}
	onErr := t.send.SetToggle(ctx, kind, itemID, actorID, true)

	t.mu.Lock()
	delete(t.inFlight, pk)
	if onErr != nil {
		a.on = false
		if clearedOpposite && offErr != nil {
			b.on = true
		}
	}
	t.mu.Unlock()
	t.record(kind, itemID, true, onErr)

	if onErr != nil {
		return fmt.Errorf("%s on: %w", kind, onErr)
	}
	return nil
}

func (t *Toggles) record(kind ToggleKind, itemID int64, on bool, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
		t.log.Warn("toggle request failed",
			zap.String("kind", string(kind)),
			zap.Int64("item", itemID),
			zap.Bool("on", on),
			zap.Error(err))
	}
	ToggleRequests.WithLabelValues(string(kind), result).Inc()
}
