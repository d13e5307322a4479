// Package core holds the error kinds and principal type shared by every
// service in this module. Handlers map these kinds onto HTTP status codes;
// services return them wrapped with context via fmt.Errorf and %w.
package core

import "errors"

var (
	// ErrParameter marks missing or malformed input. Never retryable.
	ErrParameter = errors.New("invalid parameter")

	// ErrAccess marks a requester that lacks rights for the operation.
	ErrAccess = errors.New("access denied")

	// ErrNotFound marks a missing workload, space or session. For the
	// matcher and discovery this is expected steady-state, not exceptional.
	ErrNotFound = errors.New("not found")

	// ErrOrchestrator marks a failed or timed-out cluster call. The local
	// record has already been corrected (or left for the reconciler) by the
	// time this surfaces.
	ErrOrchestrator = errors.New("orchestrator request failed")

	// ErrProvisioningInFlight means another request holds the provisioning
	// claim for the space. Callers should retry the match with backoff.
	ErrProvisioningInFlight = errors.New("provisioning already in flight")
)
