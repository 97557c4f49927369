package congregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toggleCall struct {
	kind ToggleKind
	on   bool
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []toggleCall
	fail    map[toggleCall]bool
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeSender) SetToggle(ctx context.Context, kind ToggleKind, itemID, actorID int64, on bool) error {
	s.mu.Lock()
	call := toggleCall{kind, on}
	s.calls = append(s.calls, call)
	fail := s.fail[call]
	block, entered := s.block, s.entered
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if fail {
		return &APIError{Status: 400, Message: fmt.Sprintf("%s rejected", kind)}
	}
	return nil
}

func assertExclusive(t *testing.T, tg *Toggles, item int64) {
	t.Helper()
	for _, pair := range [][2]ToggleKind{{Like, Dislike}, {Going, Interested}} {
		a, b := tg.State(item, pair[0]), tg.State(item, pair[1])
		assert.False(t, a.On && b.On, "%s and %s both on", pair[0], pair[1])
	}
}

func TestToggleOn(t *testing.T) {
	s := &fakeSender{}
	tg := NewToggles(s, nil)
	tg.Track(1, ToggleSnapshot{Like: {Count: 4}, Dislike: {Count: 2}})

	require.NoError(t, tg.Toggle(context.Background(), Like, 1, 42))
	v := tg.State(1, Like)
	assert.True(t, v.On)
	assert.Equal(t, 5, v.Count)
	assert.False(t, v.Pending)
	assert.Equal(t, []toggleCall{{Like, true}}, s.calls)
}

func TestToggleSwitchesPartner(t *testing.T) {
	s := &fakeSender{}
	tg := NewToggles(s, nil)
	tg.Track(1, ToggleSnapshot{Like: {Count: 4}, Dislike: {Count: 2, On: true}})

	require.NoError(t, tg.Toggle(context.Background(), Like, 1, 42))
	assert.Equal(t, []toggleCall{{Dislike, false}, {Like, true}}, s.calls, "partner off is sent first")

	like, dislike := tg.State(1, Like), tg.State(1, Dislike)
	assert.True(t, like.On)
	assert.Equal(t, 5, like.Count)
	assert.False(t, dislike.On)
	assert.Equal(t, 1, dislike.Count)
	assertExclusive(t, tg, 1)
}

func TestToggleRollback(t *testing.T) {
	t.Run("on fails", func(t *testing.T) {
		s := &fakeSender{fail: map[toggleCall]bool{{Going, true}: true}}
		tg := NewToggles(s, nil)
		tg.Track(7, ToggleSnapshot{Going: {Count: 10}, Interested: {Count: 3}})

		err := tg.Toggle(context.Background(), Going, 7, 42)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)

		v := tg.State(7, Going)
		assert.False(t, v.On)
		assert.Equal(t, 10, v.Count, "count returns to the baseline")
	})

	t.Run("on fails after partner off succeeded", func(t *testing.T) {
		s := &fakeSender{fail: map[toggleCall]bool{{Like, true}: true}}
		tg := NewToggles(s, nil)
		tg.Track(1, ToggleSnapshot{Like: {Count: 4}, Dislike: {Count: 2, On: true}})

		require.Error(t, tg.Toggle(context.Background(), Like, 1, 42))
		assert.False(t, tg.State(1, Like).On)
		assert.Equal(t, 4, tg.State(1, Like).Count)
		assert.False(t, tg.State(1, Dislike).On, "the server accepted the partner off")
	})

	t.Run("both requests fail", func(t *testing.T) {
		s := &fakeSender{fail: map[toggleCall]bool{{Like, true}: true, {Dislike, false}: true}}
		tg := NewToggles(s, nil)
		tg.Track(1, ToggleSnapshot{Like: {Count: 4}, Dislike: {Count: 2, On: true}})

		require.Error(t, tg.Toggle(context.Background(), Like, 1, 42))
		like, dislike := tg.State(1, Like), tg.State(1, Dislike)
		assert.False(t, like.On)
		assert.Equal(t, 4, like.Count)
		assert.True(t, dislike.On)
		assert.Equal(t, 2, dislike.Count)
	})

	t.Run("partner off fails alone", func(t *testing.T) {
		s := &fakeSender{fail: map[toggleCall]bool{{Dislike, false}: true}}
		tg := NewToggles(s, nil)
		tg.Track(1, ToggleSnapshot{Like: {Count: 4}, Dislike: {Count: 2, On: true}})

		require.NoError(t, tg.Toggle(context.Background(), Like, 1, 42))
		assert.True(t, tg.State(1, Like).On)
		assert.False(t, tg.State(1, Dislike).On)
	})

	t.Run("off fails", func(t *testing.T) {
		s := &fakeSender{fail: map[toggleCall]bool{{Like, false}: true}}
		tg := NewToggles(s, nil)
		tg.Track(1, ToggleSnapshot{Like: {Count: 4, On: true}})

		require.Error(t, tg.Toggle(context.Background(), Like, 1, 42))
		v := tg.State(1, Like)
		assert.True(t, v.On)
		assert.Equal(t, 4, v.Count)
	})

	t.Run("off succeeds", func(t *testing.T) {
		s := &fakeSender{}
		tg := NewToggles(s, nil)
		tg.Track(1, ToggleSnapshot{Like: {Count: 4, On: true}})

		require.NoError(t, tg.Toggle(context.Background(), Like, 1, 42))
		v := tg.State(1, Like)
		assert.False(t, v.On)
		assert.Equal(t, 3, v.Count)
	})
}

func TestTogglePending(t *testing.T) {
	s := &fakeSender{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	block := s.block
	tg := NewToggles(s, nil)

	done := make(chan error, 1)
	go func() { done <- tg.Toggle(context.Background(), Like, 1, 42) }()
	<-s.entered

	assert.True(t, tg.Pending(1, Like))
	assert.True(t, tg.State(1, Like).On, "optimistic state is visible while pending")
	assert.ErrorIs(t, tg.Toggle(context.Background(), Like, 1, 42), ErrTogglePending)
	assert.ErrorIs(t, tg.Toggle(context.Background(), Dislike, 1, 42), ErrTogglePending)

	// Other items are independent.
	s.mu.Lock()
	s.block = nil
	s.entered = nil
	s.mu.Unlock()
	require.NoError(t, tg.Toggle(context.Background(), Like, 2, 42))

	close(block)
	require.NoError(t, <-done)
	assert.False(t, tg.Pending(1, Like))
}

func TestToggleSequences(t *testing.T) {
	seq := []ToggleKind{Like, Dislike, Dislike, Like, Like, Dislike, Going, Interested, Interested, Going}
	for seed := 0; seed < 4; seed++ {
		t.Run(fmt.Sprintf("failures %d", seed), func(t *testing.T) {
			s := &fakeSender{fail: map[toggleCall]bool{}}
			switch seed {
			case 1:
				s.fail[toggleCall{Like, true}] = true
			case 2:
				s.fail[toggleCall{Dislike, false}] = true
				s.fail[toggleCall{Interested, true}] = true
			case 3:
				s.fail[toggleCall{Going, false}] = true
				s.fail[toggleCall{Like, false}] = true
			}
			tg := NewToggles(s, nil)
			tg.Track(1, ToggleSnapshot{Like: {Count: 1}, Dislike: {Count: 1}, Going: {}, Interested: {}})
			for _, k := range seq {
				_ = tg.Toggle(context.Background(), k, 1, 42)
				assertExclusive(t, tg, 1)
			}
		})
	}
}

func TestToggleUnknownKind(t *testing.T) {
	tg := NewToggles(&fakeSender{}, nil)
	err := tg.Toggle(context.Background(), ToggleKind("love"), 1, 42)
	assert.True(t, errors.Is(err, ErrUnknownToggle))

	_, err = ParseToggleKind("interested")
	assert.NoError(t, err)
	_, err = ParseToggleKind("meh")
	assert.ErrorIs(t, err, ErrUnknownToggle)
}

func TestToggleTrackKeepsInFlight(t *testing.T) {
	s := &fakeSender{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	block := s.block
	tg := NewToggles(s, nil)

	done := make(chan error, 1)
	go func() { done <- tg.Toggle(context.Background(), Going, 3, 42) }()
	<-s.entered

	tg.Track(3, ToggleSnapshot{Going: {Count: 8}})
	assert.True(t, tg.State(3, Going).On)
	assert.Equal(t, 9, tg.State(3, Going).Count)

	close(block)
	require.NoError(t, <-done)
}
