package memory_service

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable classifies embedding failures. AddMemory degrades to a
	// zero vector and retrieval degrades to no results; callers never receive it directly.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("memory persistence failed")
	// ErrInvalidK is returned when fewer than one result is requested.
	ErrInvalidK = errors.New("k must be at least 1")
	// ErrSnapshotUnreadable is wrapped by a save refused because the stored
	// snapshot could not be read and would be overwritten.
	ErrSnapshotUnreadable = errors.New("stored snapshot unreadable, not overwriting it")
	// ErrInvalidUserID is returned for an empty user identifier.
	ErrInvalidUserID = errors.New("user id must not be empty")
)

// PersistenceError reports a failed snapshot read or write. In-memory state is
// still usable when it is returned.
type PersistenceError struct {
	UserID string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s snapshot for user %q: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPersistence) true for any PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
