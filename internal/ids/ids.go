// Package ids mints the identifiers the orchestrator treats as stable
// natural keys: job/deployment ids, lock owner tokens and idempotent
// RemoteExecutor command ids.
package ids

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// New mints a fresh k-sortable unique id (ULID-equivalent: lexically sortable,
// time-ordered, collision-resistant across processes without coordination).
func New() string {
	return ksuid.New().String()
}

// NewOwnerToken mints a fresh lock owner id, unique per acquisition attempt
// (§3 Lock.owner_id).
func NewOwnerToken() string {
	return "owner-" + ksuid.New().String()
}

// CommandID derives the RemoteExecutor command id from deployment_id, phase
// and attempt (§4.1): deterministic so a retry with the same inputs reuses the
// same id and the executor's at-most-once semantics apply.
func CommandID(deploymentID, phase string, attempt int) string {
	return fmt.Sprintf("dep-%s-%s-%d", deploymentID, phase, attempt)
}
