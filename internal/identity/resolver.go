// Package identity derives stable internal user ids from external
// identities and maintains the user profile records behind them. The login
// flow that produces the (provider, external id) pair lives outside this
// service; only its output is consumed here.
package identity

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
	"golang.org/x/oauth2"
)

// Profile is the identity handed over by the external provider flow.
type Profile struct {
	Provider    string
	ExternalID  string
	DisplayName string
}

// Validate checks the profile carries a usable identity.
func (p Profile) Validate() error {
	if p.Provider == "" {
		return errors.New("provider is required")
	}
	if p.ExternalID == "" {
		return errors.New("external id is required")
	}
	return nil
}

// UserID derives the internal user id for an external identity:
// base58(SHA-256(provider, 0x00, external id)). It is a pure function, so
// re-resolving the same identity always yields the same id.
func UserID(provider, externalID string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(externalID))
	return base58.Encode(h.Sum(nil))
}

// Resolver resolves external identities to user records.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve creates the user record on first contact, or refreshes the
// display name and credential material on a later resolve. The token is
// opaque to this service and may be nil. The returned user carries the
// current membership views.
func (r *Resolver) Resolve(ctx context.Context, profile Profile, token *oauth2.Token) (*models.User, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	user := &models.User{
		UserID:      UserID(profile.Provider, profile.ExternalID),
		Provider:    profile.Provider,
		ExternalID:  profile.ExternalID,
		DisplayName: profile.DisplayName,
	}
	if token != nil {
		user.AccessToken = token.AccessToken
		user.RefreshToken = token.RefreshToken
	}

	var resolved *models.User
	err := r.store.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		if err := st.Users().Put(ctx, user); err != nil {
			return err
		}
		var err error
		resolved, err = st.Users().Get(ctx, user.UserID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	log.Debug().
		Str("user_id", resolved.UserID).
		Str("provider", profile.Provider).
		Msg("Resolved identity")

	return resolved, nil
}
