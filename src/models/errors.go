package models

import "errors"

// Failure taxonomy. Callers wrap these with fmt.Errorf("%w: ...") so
// handlers can map them onto responses with errors.Is.
var (
	// ErrSourceUnavailable marks transient connection/auth failures against
	// an upstream source. Retryable.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrBatchInvalid marks a batch-level validation failure (empty file,
	// unreadable encoding). Fatal to that batch only.
	ErrBatchInvalid = errors.New("batch validation failed")

	// ErrStoreConflict marks a concurrent-write race in the store.
	// Retryable by the caller.
	ErrStoreConflict = errors.New("store conflict")

	// ErrCommitConflict means the master file changed after the ChangeSet
	// was computed. The caller must recompute and retry.
	ErrCommitConflict = errors.New("master file changed since comparison")
)
