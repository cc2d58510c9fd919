package store

import "errors"

// Sentinel errors shared by all store backends.
var (
	// ErrContention is returned by InTx when a transaction could not commit
	// within its retry budget because of conflicting concurrent writes.
	// The whole operation is safe to retry from scratch.
	ErrContention = errors.New("transaction contention")

	// ErrOrgAlreadyClaimed is returned when creating an org whose name has
	// already been claimed. Claims are create-only; a name is claimed at
	// most once, ever.
	ErrOrgAlreadyClaimed = errors.New("organization already claimed")

	// ErrUnknownOrg is returned when a write references an org that has not
	// been claimed.
	ErrUnknownOrg = errors.New("unknown organization")

	ErrOrgNotFound          = errors.New("organization not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrNotPending is returned by PromotePending when the user has no
	// outstanding invite for the org.
	ErrNotPending = errors.New("user is not pending for organization")
)
