package models

import (
	"errors"
	"time"
)

// User represents a person known to the system. The UserID is derived
// deterministically from the external identity (provider + provider-issued
// id), so resolving the same identity twice always lands on the same record.
type User struct {
	UserID      string // base58(SHA-256(provider, external id))
	Provider    string // auth provider name (e.g. "google", "github")
	ExternalID  string // provider-issued id
	DisplayName string

	// Membership views, derived from org membership records.
	// AdminOf lists orgs this user claimed or administers, PendingOf lists
	// orgs with an outstanding invite, MemberOf lists accepted memberships.
	AdminOf   []string
	PendingOf []string
	MemberOf  []string

	// Opaque credential material held for the identity-provider flow.
	// Nothing in this service interprets these.
	AccessToken  string
	RefreshToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the user record is well formed.
func (u *User) Validate() error {
	if u.UserID == "" {
		return errors.New("user id is required")
	}
	if u.Provider == "" || u.ExternalID == "" {
		return errors.New("provider and external id are required")
	}
	return nil
}
