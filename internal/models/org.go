package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// MaxOrgNameBytes bounds the org name claim key.
const MaxOrgNameBytes = 255

// Org represents a claimed organization. The name is the claim key and is
// globally unique; an Org record exists if and only if the name has been
// claimed. Names are compared byte-wise with no case folding or
// normalization, so "Acme" and "acme" are distinct claims.
//
// Admins is ordered (first entry is the claiming user). Admins, Pending and
// Accepted are pairwise disjoint: a user holds exactly one membership state
// per org.
type Org struct {
	Name     string
	Admins   []string
	Pending  []string
	Accepted []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateOrgName checks a name is usable as a claim key.
func ValidateOrgName(name string) error {
	if name == "" {
		return errors.New("org name is required")
	}
	if len(name) > MaxOrgNameBytes {
		return fmt.Errorf("org name exceeds %d bytes", MaxOrgNameBytes)
	}
	return nil
}

// Validate checks the org record invariants: a valid name, at least one
// admin, and pairwise-disjoint membership sets.
func (o *Org) Validate() error {
	if err := ValidateOrgName(o.Name); err != nil {
		return err
	}
	if len(o.Admins) == 0 {
		return errors.New("org must have at least one admin")
	}
	seen := make(map[string]struct{}, len(o.Admins)+len(o.Pending)+len(o.Accepted))
	for _, set := range [][]string{o.Admins, o.Pending, o.Accepted} {
		for _, id := range set {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("user %s appears in more than one membership set", id)
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

// IsAdmin reports whether userID is in the admin set.
func (o *Org) IsAdmin(userID string) bool {
	return slices.Contains(o.Admins, userID)
}

// IsPending reports whether userID has an outstanding invite.
func (o *Org) IsPending(userID string) bool {
	return slices.Contains(o.Pending, userID)
}

// IsAccepted reports whether userID is an accepted member.
func (o *Org) IsAccepted(userID string) bool {
	return slices.Contains(o.Accepted, userID)
}

// CanView reports whether userID may read records owned by this org.
// Admins count as accepted-equivalent members.
func (o *Org) CanView(userID string) bool {
	return o.IsAdmin(userID) || o.IsAccepted(userID)
}
