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

// userStore implements store.UserStore over a pool or transaction.
type userStore struct {
	q querier
}

// Get retrieves a user by id with membership views populated from
// org_members.
func (s *userStore) Get(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT user_id, provider, external_id, display_name,
			access_token, refresh_token, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var user models.User
	err := s.q.QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.Provider,
		&user.ExternalID,
		&user.DisplayName,
		&user.AccessToken,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	memberQuery := `
		SELECT org_name, state
		FROM org_members
		WHERE user_id = $1
		ORDER BY org_name
	`

	rows, err := s.q.Query(ctx, memberQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", mapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var orgName, state string
		if err := rows.Scan(&orgName, &state); err != nil {
			return nil, fmt.Errorf("failed to scan user membership: %w", err)
		}
		switch state {
		case memberStateAdmin:
			user.AdminOf = append(user.AdminOf, orgName)
		case memberStatePending:
			user.PendingOf = append(user.PendingOf, orgName)
		case memberStateAccepted:
			user.MemberOf = append(user.MemberOf, orgName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user memberships: %w", mapPostgresError(err))
	}

	return &user, nil
}

// Put creates the user or refreshes the stored profile.
func (s *userStore) Put(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO users (
			user_id, provider, external_id, display_name,
			access_token, refresh_token
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			updated_at = now()
	`

	_, err := s.q.Exec(ctx, query,
		user.UserID,
		user.Provider,
		user.ExternalID,
		user.DisplayName,
		user.AccessToken,
		user.RefreshToken,
	)
	if err != nil {
		return fmt.Errorf("failed to put user: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", user.UserID).
		Str("provider", user.Provider).
		Msg("Stored user profile")

	return nil
}
