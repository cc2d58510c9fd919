// Package registry implements the organization claim, grant and accept
// state machine. Per user and org the membership states move
// NONE -> PENDING -> ACCEPTED (via grant then accept), or NONE -> ADMIN
// (via claim). There is no transition out of ACCEPTED or ADMIN.
//
// Grant, accept and fetch treat "not found" and "not authorized" as normal
// boolean outcomes rather than errors; they are routine in a multi-user
// flow. Claim is the exception: it reports store.ErrOrgAlreadyClaimed so
// the caller can tell "someone got there first" apart from other failures.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Registry owns the org claim/grant/accept state machine.
type Registry struct {
	store  store.Store
	tracer trace.Tracer
	claims metric.Int64Counter
}

// New creates a registry over the given store.
func New(st store.Store) *Registry {
	meter := otel.Meter("orgclaim/registry")
	claims, err := meter.Int64Counter("orgclaim.claims",
		metric.WithDescription("Organization claim attempts by outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create claims counter")
	}

	return &Registry{
		store:  st,
		tracer: otel.Tracer("orgclaim/registry"),
		claims: claims,
	}
}

// ClaimNewOrg claims orgName for userID, creating the org with the claimer
// as its sole admin. Returns store.ErrOrgAlreadyClaimed if the name is
// taken; exactly one of any set of concurrent claimers wins. The claiming
// user must already be resolved (store.ErrUserNotFound otherwise).
func (r *Registry) ClaimNewOrg(ctx context.Context, userID, orgName string) (*models.Org, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.ClaimNewOrg",
		trace.WithAttributes(attribute.String("org.name", orgName)))
	defer span.End()

	if err := models.ValidateOrgName(orgName); err != nil {
		return nil, err
	}

	var org *models.Org
	err := r.store.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		if _, err := st.Users().Get(ctx, userID); err != nil {
			return err
		}

		_, err := st.Orgs().Get(ctx, orgName)
		if err == nil {
			return store.ErrOrgAlreadyClaimed
		}
		if !errors.Is(err, store.ErrOrgNotFound) {
			return err
		}

		if err := st.Orgs().Create(ctx, &models.Org{
			Name:   orgName,
			Admins: []string{userID},
		}); err != nil {
			return err
		}

		org, err = st.Orgs().Get(ctx, orgName)
		return err
	})
	if err != nil {
		r.countClaim(ctx, false)
		if errors.Is(err, store.ErrOrgAlreadyClaimed) {
			return nil, store.ErrOrgAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim organization: %w", err)
	}

	r.countClaim(ctx, true)
	log.Info().
		Str("name", orgName).
		Str("user_id", userID).
		Msg("Organization claimed")

	return org, nil
}

// FetchOrg returns the org, or nil when the name is unclaimed. Absence is
// not an error.
func (r *Registry) FetchOrg(ctx context.Context, orgName string) (*models.Org, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.FetchOrg")
	defer span.End()

	org, err := r.store.Orgs().Get(ctx, orgName)
	if err != nil {
		if errors.Is(err, store.ErrOrgNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch organization: %w", err)
	}
	return org, nil
}

// GrantExistingOrg invites granteeID into orgName's pending set. It returns
// false, without error, when the org does not exist or granterID is not an
// admin. Granting an already-pending user is a no-op returning true, as is
// granting a user who already accepted (the goal state is reached).
func (r *Registry) GrantExistingOrg(ctx context.Context, granterID, granteeID, orgName string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.GrantExistingOrg",
		trace.WithAttributes(attribute.String("org.name", orgName)))
	defer span.End()

	var granted bool
	err := r.store.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		granted = false

		org, err := st.Orgs().Get(ctx, orgName)
		if err != nil {
			if errors.Is(err, store.ErrOrgNotFound) {
				return nil
			}
			return err
		}

		if !org.IsAdmin(granterID) {
			return nil
		}

		if org.IsPending(granteeID) || org.IsAccepted(granteeID) || org.IsAdmin(granteeID) {
			granted = true
			return nil
		}

		if err := st.Orgs().AddPending(ctx, orgName, granteeID); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to grant organization: %w", err)
	}

	if granted {
		log.Info().
			Str("name", orgName).
			Str("granter_id", granterID).
			Str("grantee_id", granteeID).
			Msg("Granted pending membership")
	}

	return granted, nil
}

// AcceptOrg converts userID's pending membership of orgName into accepted
// membership. Returns false, without error, when the org does not exist or
// the user has no outstanding invite; accepting twice returns false the
// second time.
func (r *Registry) AcceptOrg(ctx context.Context, userID, orgName string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.AcceptOrg",
		trace.WithAttributes(attribute.String("org.name", orgName)))
	defer span.End()

	var accepted bool
	err := r.store.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		accepted = false

		org, err := st.Orgs().Get(ctx, orgName)
		if err != nil {
			if errors.Is(err, store.ErrOrgNotFound) {
				return nil
			}
			return err
		}

		if !org.IsPending(userID) {
			return nil
		}

		if err := st.Orgs().PromotePending(ctx, orgName, userID); err != nil {
			return err
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to accept organization: %w", err)
	}

	if accepted {
		log.Info().
			Str("name", orgName).
			Str("user_id", userID).
			Msg("Accepted pending membership")
	}

	return accepted, nil
}

// countClaim records a claim attempt on the meter, when one is configured.
func (r *Registry) countClaim(ctx context.Context, success bool) {
	if r.claims == nil {
		return
	}
	r.claims.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
