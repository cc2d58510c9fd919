package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Registration is a submitted domain record owned by a single organization.
// Registrations are immutable once written; there is no update or delete
// path. Reads are gated on accepted membership of the owning org.
type Registration struct {
	RegistrationID uuid.UUID // UUIDv7, assigned at write time
	OrgName        string    // owning organization (must exist at write time)
	Name           string    // registrant display name

	// Fields carries the collected form payload. The service stores it
	// verbatim; the presentation layer owns its shape.
	Fields map[string]string

	SignedAt  time.Time
	CreatedAt time.Time
}

// Validate checks the registration is well formed for submission.
// The id is assigned by the store, so it is not required here.
func (r *Registration) Validate() error {
	if err := ValidateOrgName(r.OrgName); err != nil {
		return err
	}
	if r.Name == "" {
		return errors.New("registrant name is required")
	}
	return nil
}
