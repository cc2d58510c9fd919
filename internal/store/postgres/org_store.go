package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
)

// Membership states stored in org_members.state.
const (
	memberStateAdmin    = "admin"
	memberStatePending  = "pending"
	memberStateAccepted = "accepted"
)

// orgStore implements store.OrgStore over a pool or transaction.
type orgStore struct {
	q querier
}

// Get retrieves an org by name with its membership sets.
func (s *orgStore) Get(ctx context.Context, name string) (*models.Org, error) {
	query := `
		SELECT name, created_at, updated_at
		FROM orgs
		WHERE name = $1
	`

	var org models.Org
	err := s.q.QueryRow(ctx, query, name).Scan(
		&org.Name,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	memberQuery := `
		SELECT user_id, state
		FROM org_members
		WHERE org_name = $1
		ORDER BY position, created_at, user_id
	`

	rows, err := s.q.Query(ctx, memberQuery, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list org members: %w", mapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var userID, state string
		if err := rows.Scan(&userID, &state); err != nil {
			return nil, fmt.Errorf("failed to scan org member: %w", err)
		}
		switch state {
		case memberStateAdmin:
			org.Admins = append(org.Admins, userID)
		case memberStatePending:
			org.Pending = append(org.Pending, userID)
		case memberStateAccepted:
			org.Accepted = append(org.Accepted, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating org members: %w", mapPostgresError(err))
	}

	return &org, nil
}

// Create claims a new org, inserting the org row and its admin memberships.
func (s *orgStore) Create(ctx context.Context, org *models.Org) error {
	if err := org.Validate(); err != nil {
		return err
	}

	_, err := s.q.Exec(ctx, `INSERT INTO orgs (name) VALUES ($1)`, org.Name)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	for pos, userID := range org.Admins {
		_, err := s.q.Exec(ctx, `
			INSERT INTO org_members (org_name, user_id, state, position)
			VALUES ($1, $2, $3, $4)
		`, org.Name, userID, memberStateAdmin, pos)
		if err != nil {
			return fmt.Errorf("failed to record admin membership: %w", mapPostgresError(err))
		}
	}

	log.Debug().
		Str("name", org.Name).
		Strs("admins", org.Admins).
		Msg("Claimed organization")

	return nil
}

// AddPending adds userID to the org's pending set. A user already holding a
// membership state for the org is left untouched, which keeps the operation
// idempotent and the sets disjoint.
func (s *orgStore) AddPending(ctx context.Context, name, userID string) error {
	query := `
		INSERT INTO org_members (org_name, user_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_name, user_id) DO NOTHING
	`

	_, err := s.q.Exec(ctx, query, name, userID, memberStatePending)
	if err != nil {
		return fmt.Errorf("failed to add pending member: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("name", name).
		Str("user_id", userID).
		Msg("Added pending member")

	return nil
}

// PromotePending moves userID from pending to accepted.
func (s *orgStore) PromotePending(ctx context.Context, name, userID string) error {
	query := `
		UPDATE org_members
		SET state = $3, updated_at = now()
		WHERE org_name = $1 AND user_id = $2 AND state = $4
	`

	result, err := s.q.Exec(ctx, query, name, userID, memberStateAccepted, memberStatePending)
	if err != nil {
		return fmt.Errorf("failed to promote pending member: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrNotPending
	}

	log.Debug().
		Str("name", name).
		Str("user_id", userID).
		Msg("Promoted pending member to accepted")

	return nil
}
