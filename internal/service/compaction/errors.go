package compaction

import (
	"errors"
	"fmt"
)

// ErrSummarization means the summarizer failed and the session was left untouched.
var ErrSummarization = errors.New("summarization failed")

// Error reports a failed compaction step for one session.
type Error struct {
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compaction %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
