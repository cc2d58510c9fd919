package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgclaim/internal/models"
)

// OrgStore defines storage operations for organization documents.
type OrgStore interface {
	// Get retrieves an org by name, with all three membership sets
	// populated. Returns ErrOrgNotFound if the name is unclaimed.
	Get(ctx context.Context, name string) (*models.Org, error)

	// Create claims a new org. Returns ErrOrgAlreadyClaimed if the name is
	// already taken. The org must validate (non-empty admin set).
	Create(ctx context.Context, org *models.Org) error

	// AddPending adds userID to the org's pending set. Adding an id that is
	// already pending is a no-op. Returns ErrOrgNotFound if the org does
	// not exist.
	AddPending(ctx context.Context, name, userID string) error

	// PromotePending moves userID from the pending set to the accepted set.
	// Returns ErrNotPending if the user has no outstanding invite.
	PromotePending(ctx context.Context, name, userID string) error
}

// UserStore defines storage operations for user documents.
type UserStore interface {
	// Get retrieves a user by id, with membership views populated from the
	// org membership records. Returns ErrUserNotFound if absent.
	Get(ctx context.Context, userID string) (*models.User, error)

	// Put creates the user on first contact or refreshes the profile
	// (display name, credential material) on a later resolve. Membership
	// views on the passed record are ignored; they are derived.
	Put(ctx context.Context, user *models.User) error
}

// RegistrationStore defines storage operations for registration records.
type RegistrationStore interface {
	// Create writes a new registration. The caller is responsible for
	// checking the owning org exists in the same transaction; backends may
	// additionally enforce it and return ErrUnknownOrg.
	Create(ctx context.Context, reg *models.Registration) error

	// ListByOrg returns every registration tagged with the org, in no
	// particular order.
	ListByOrg(ctx context.Context, orgName string) ([]*models.Registration, error)

	// Get retrieves a single registration by id.
	Get(ctx context.Context, id uuid.UUID) (*models.Registration, error)
}

// Stores bundles the per-entity stores visible to a unit of work. Inside
// InTx all three views observe the same snapshot.
type Stores interface {
	Orgs() OrgStore
	Users() UserStore
	Registrations() RegistrationStore
}

// Store is the document store contract the services are written against.
//
// Operations invoked directly on the Store commit individually. Multi
// document read-then-write units go through InTx.
type Store interface {
	Stores

	// InTx executes fn with all-or-nothing semantics: either every write fn
	// issues commits together against a single consistent snapshot, or
	// nothing is written. Conflicting concurrent executions are retried
	// transparently with a bounded budget; once exhausted InTx fails with
	// ErrContention.
	//
	// Because fn may run more than once it must be a pure function of the
	// snapshot it reads, with no externally observable side effects before
	// commit. Domain errors returned by fn abort the transaction without
	// retry and propagate unchanged.
	InTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
