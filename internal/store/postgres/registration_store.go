package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
)

// registrationStore implements store.RegistrationStore over a pool or
// transaction.
type registrationStore struct {
	q querier
}

// Create writes a new registration. The foreign key on org_name backs the
// caller's existence check: an unclaimed org surfaces as ErrUnknownOrg.
func (s *registrationStore) Create(ctx context.Context, reg *models.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	if reg.RegistrationID == uuid.Nil {
		return errors.New("registration id is required")
	}

	fields, err := json.Marshal(reg.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode registration fields: %w", err)
	}

	query := `
		INSERT INTO registrations (
			registration_id, org_name, name, fields, signed_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	var signedAt any
	if !reg.SignedAt.IsZero() {
		signedAt = reg.SignedAt
	}

	_, err = s.q.Exec(ctx, query,
		reg.RegistrationID,
		reg.OrgName,
		reg.Name,
		fields,
		signedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("registration_id", reg.RegistrationID.String()).
		Str("org_name", reg.OrgName).
		Msg("Created registration")

	return nil
}

// ListByOrg returns every registration tagged with the org. No ordering is
// guaranteed to callers; created_at is used only to keep output stable.
func (s *registrationStore) ListByOrg(ctx context.Context, orgName string) ([]*models.Registration, error) {
	query := `
		SELECT registration_id, org_name, name, fields, signed_at, created_at
		FROM registrations
		WHERE org_name = $1
		ORDER BY created_at
	`

	rows, err := s.q.Query(ctx, query, orgName)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", mapPostgresError(err))
	}

	return regs, nil
}

// Get retrieves a single registration by id.
func (s *registrationStore) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := `
		SELECT registration_id, org_name, name, fields, signed_at, created_at
		FROM registrations
		WHERE registration_id = $1
	`

	reg, err := scanRegistration(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}

// scanRegistration reads one registration row.
func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	var fields []byte
	var signedAt *time.Time

	err := row.Scan(
		&reg.RegistrationID,
		&reg.OrgName,
		&reg.Name,
		&fields,
		&signedAt,
		&reg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan registration: %w", mapPostgresError(err))
	}

	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &reg.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode registration fields: %w", err)
		}
	}
	if signedAt != nil {
		reg.SignedAt = *signedAt
	}

	return &reg, nil
}
