package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Registrations adds and reads org-tagged registration records, scoping
// visibility to accepted members of the owning org.
type Registrations struct {
	store  store.Store
	tracer trace.Tracer
}

// NewRegistrations creates the registration service over the given store.
func NewRegistrations(st store.Store) *Registrations {
	return &Registrations{
		store:  st,
		tracer: otel.Tracer("orgclaim/registrations"),
	}
}

// Add writes a new registration tagged with reg.OrgName and returns its
// assigned id. Returns store.ErrUnknownOrg when the org is not claimed; the
// existence check and the write share one transaction.
func (r *Registrations) Add(ctx context.Context, reg *models.Registration) (uuid.UUID, error) {
	ctx, span := r.tracer.Start(ctx, "Registrations.Add",
		trace.WithAttributes(attribute.String("org.name", reg.OrgName)))
	defer span.End()

	if err := reg.Validate(); err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate registration id: %w", err)
	}

	record := *reg
	record.RegistrationID = id

	err = r.store.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		if _, err := st.Orgs().Get(ctx, record.OrgName); err != nil {
			if errors.Is(err, store.ErrOrgNotFound) {
				return store.ErrUnknownOrg
			}
			return err
		}
		return st.Registrations().Create(ctx, &record)
	})
	if err != nil {
		if errors.Is(err, store.ErrUnknownOrg) {
			return uuid.Nil, store.ErrUnknownOrg
		}
		return uuid.Nil, fmt.Errorf("failed to add registration: %w", err)
	}

	log.Info().
		Str("registration_id", id.String()).
		Str("org_name", record.OrgName).
		Msg("Registration added")

	return id, nil
}

// Fetch returns every registration tagged with orgName, provided userID is
// an accepted member or admin of the org. Otherwise it returns ok=false
// with no records; an unknown org and a denied caller are deliberately
// indistinguishable so org existence never leaks to non-members.
func (r *Registrations) Fetch(ctx context.Context, userID, orgName string) ([]*models.Registration, bool, error) {
	ctx, span := r.tracer.Start(ctx, "Registrations.Fetch",
		trace.WithAttributes(attribute.String("org.name", orgName)))
	defer span.End()

	var (
		regs    []*models.Registration
		visible bool
	)
	err := r.store.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		regs, visible = nil, false

		org, err := st.Orgs().Get(ctx, orgName)
		if err != nil {
			if errors.Is(err, store.ErrOrgNotFound) {
				return nil
			}
			return err
		}

		if !org.CanView(userID) {
			return nil
		}

		regs, err = st.Registrations().ListByOrg(ctx, orgName)
		if err != nil {
			return err
		}
		visible = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch registrations: %w", err)
	}

	return regs, visible, nil
}
