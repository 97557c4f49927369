package congregate

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadInProgress is returned by LoadMore while another page request
	// for the same collection is outstanding.
	ErrLoadInProgress = errors.New("congregate: load already in progress")

	// ErrTogglePending is returned by Toggle while a request for the same
	// item and pair (like/dislike or going/interested) is in flight.
	ErrTogglePending = errors.New("congregate: toggle already pending")

	// ErrNotTopLevel is returned when replies are requested for a reply.
	ErrNotTopLevel = errors.New("congregate: comment is not top-level")

	// ErrClosed is returned by operations on a closed composite.
	ErrClosed = errors.New("congregate: closed")

	ErrUnknownToggle = errors.New("congregate: unknown toggle kind")
)

// CloseError describes how a push channel connection ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("channel closed: code=%d reason=%q", e.Code, e.Reason)
}

// Normal reports whether the close was an explicit teardown.
func (e *CloseError) Normal() bool { return e.Code == StatusNormalClosure }

// closeStatus extracts the close code carried by err, treating anything
// that is not a CloseError as an abnormal closure.
func closeStatus(err error) (int, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	if err == nil {
		return StatusAbnormalClosure, ""
	}
	return StatusAbnormalClosure, err.Error()
}
