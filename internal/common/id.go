package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewWorkerID generates a unique worker identity with the "worker_" prefix.
// Format: worker_<uuid>
func NewWorkerID() string {
	return "worker_" + uuid.New().String()
}

// NewIdempotencyKey generates a key for provider batch dispatch so a
// re-delivered activity does not double-submit the same batch.
func NewIdempotencyKey() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewRunID generates a unique id for one workflow run record.
func NewRunID() string {
	return "run_" + uuid.New().String()
}
