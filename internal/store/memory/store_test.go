package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
)

func putUser(t *testing.T, st *Store, userID string) {
	t.Helper()
	err := st.Users().Put(context.Background(), &models.User{
		UserID:     userID,
		Provider:   "google",
		ExternalID: userID,
	})
	require.NoError(t, err)
}

func claimOrg(t *testing.T, st *Store, name, userID string) {
	t.Helper()
	err := st.Orgs().Create(context.Background(), &models.Org{
		Name:   name,
		Admins: []string{userID},
	})
	require.NoError(t, err)
}

func TestOrgStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing org", func(t *testing.T) {
		st := New()
		_, err := st.Orgs().Get(ctx, "acme")
		require.ErrorIs(t, err, store.ErrOrgNotFound)
	})

	t.Run("create and get", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, "acme", org.Name)
		require.Equal(t, []string{"u1"}, org.Admins)
		require.Empty(t, org.Pending)
		require.Empty(t, org.Accepted)
		require.False(t, org.CreatedAt.IsZero())
	})

	t.Run("create duplicate returns already claimed", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")

		err := st.Orgs().Create(ctx, &models.Org{Name: "acme", Admins: []string{"u2"}})
		require.ErrorIs(t, err, store.ErrOrgAlreadyClaimed)

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, []string{"u1"}, org.Admins)
	})

	t.Run("create invalid org", func(t *testing.T) {
		st := New()
		err := st.Orgs().Create(ctx, &models.Org{Name: "acme"})
		require.Error(t, err)
	})

	t.Run("add pending is idempotent", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")

		require.NoError(t, st.Orgs().AddPending(ctx, "acme", "u2"))
		require.NoError(t, st.Orgs().AddPending(ctx, "acme", "u2"))

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, []string{"u2"}, org.Pending)
	})

	t.Run("add pending missing org", func(t *testing.T) {
		st := New()
		err := st.Orgs().AddPending(ctx, "acme", "u2")
		require.ErrorIs(t, err, store.ErrOrgNotFound)
	})

	t.Run("promote pending", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")
		require.NoError(t, st.Orgs().AddPending(ctx, "acme", "u2"))

		require.NoError(t, st.Orgs().PromotePending(ctx, "acme", "u2"))

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Empty(t, org.Pending)
		require.Equal(t, []string{"u2"}, org.Accepted)

		// No invite remains, so a second promote fails.
		err = st.Orgs().PromotePending(ctx, "acme", "u2")
		require.ErrorIs(t, err, store.ErrNotPending)
	})
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing user", func(t *testing.T) {
		st := New()
		_, err := st.Users().Get(ctx, "u1")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		st := New()
		putUser(t, st, "u1")

		user, err := st.Users().Get(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "u1", user.UserID)
		require.False(t, user.CreatedAt.IsZero())
	})

	t.Run("put refreshes profile and keeps created at", func(t *testing.T) {
		st := New()
		putUser(t, st, "u1")

		first, err := st.Users().Get(ctx, "u1")
		require.NoError(t, err)

		err = st.Users().Put(ctx, &models.User{
			UserID:      "u1",
			Provider:    "google",
			ExternalID:  "u1",
			DisplayName: "Bob",
		})
		require.NoError(t, err)

		second, err := st.Users().Get(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, "Bob", second.DisplayName)
		require.Equal(t, first.CreatedAt, second.CreatedAt)
	})

	t.Run("membership views are derived from orgs", func(t *testing.T) {
		st := New()
		putUser(t, st, "u1")
		claimOrg(t, st, "acme", "u1")
		claimOrg(t, st, "globex", "u2")
		require.NoError(t, st.Orgs().AddPending(ctx, "globex", "u1"))

		user, err := st.Users().Get(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, []string{"acme"}, user.AdminOf)
		require.Equal(t, []string{"globex"}, user.PendingOf)
		require.Empty(t, user.MemberOf)
	})
}

func TestRegistrationStore(t *testing.T) {
	ctx := context.Background()

	newReg := func(org string) *models.Registration {
		id, err := uuid.NewV7()
		require.NoError(t, err)
		return &models.Registration{
			RegistrationID: id,
			OrgName:        org,
			Name:           "Bob",
			Fields:         map[string]string{"email": "bob@example.com"},
		}
	}

	t.Run("create requires claimed org", func(t *testing.T) {
		st := New()
		err := st.Registrations().Create(ctx, newReg("acme"))
		require.ErrorIs(t, err, store.ErrUnknownOrg)
	})

	t.Run("create and list", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")

		reg := newReg("acme")
		require.NoError(t, st.Registrations().Create(ctx, reg))
		require.NoError(t, st.Registrations().Create(ctx, newReg("acme")))

		regs, err := st.Registrations().ListByOrg(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, regs, 2)

		got, err := st.Registrations().Get(ctx, reg.RegistrationID)
		require.NoError(t, err)
		require.Equal(t, "Bob", got.Name)
		require.Equal(t, "bob@example.com", got.Fields["email"])
	})

	t.Run("list is scoped to the org", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")
		claimOrg(t, st, "globex", "u2")
		require.NoError(t, st.Registrations().Create(ctx, newReg("acme")))

		regs, err := st.Registrations().ListByOrg(ctx, "globex")
		require.NoError(t, err)
		require.Empty(t, regs)
	})

	t.Run("get missing registration", func(t *testing.T) {
		st := New()
		_, err := st.Registrations().Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrRegistrationNotFound)
	})
}

func TestInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("domain error aborts without writes", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")

		err := st.InTx(ctx, func(ctx context.Context, s store.Stores) error {
			if err := s.Orgs().AddPending(ctx, "acme", "u2"); err != nil {
				return err
			}
			return store.ErrUnknownOrg
		})
		require.ErrorIs(t, err, store.ErrUnknownOrg)

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Empty(t, org.Pending)
	})

	t.Run("writes commit together", func(t *testing.T) {
		st := New()
		putUser(t, st, "u1")

		err := st.InTx(ctx, func(ctx context.Context, s store.Stores) error {
			if err := s.Orgs().Create(ctx, &models.Org{Name: "acme", Admins: []string{"u1"}}); err != nil {
				return err
			}
			return s.Orgs().AddPending(ctx, "acme", "u2")
		})
		require.NoError(t, err)

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, []string{"u1"}, org.Admins)
		require.Equal(t, []string{"u2"}, org.Pending)
	})

	t.Run("reads within a transaction see buffered writes", func(t *testing.T) {
		st := New()

		err := st.InTx(ctx, func(ctx context.Context, s store.Stores) error {
			if err := s.Orgs().Create(ctx, &models.Org{Name: "acme", Admins: []string{"u1"}}); err != nil {
				return err
			}
			org, err := s.Orgs().Get(ctx, "acme")
			if err != nil {
				return err
			}
			require.Equal(t, []string{"u1"}, org.Admins)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("persistent conflict exhausts the retry budget", func(t *testing.T) {
		st := New()
		claimOrg(t, st, "acme", "u1")

		// The unit invalidates its own snapshot every attempt by writing
		// through the raw store after reading, so the executor must give up
		// with ErrContention once the budget runs out.
		attempt := 0
		err := st.InTx(ctx, func(ctx context.Context, s store.Stores) error {
			attempt++
			if _, err := s.Orgs().Get(ctx, "acme"); err != nil {
				return err
			}
			if err := st.Orgs().AddPending(ctx, "acme", fmt.Sprintf("rival-%d", attempt)); err != nil {
				return err
			}
			return s.Orgs().AddPending(ctx, "acme", "u2")
		})
		require.ErrorIs(t, err, store.ErrContention)
		require.Equal(t, maxTxAttempts, attempt)
	})

	t.Run("concurrent claims resolve to one winner", func(t *testing.T) {
		st := New()
		const claimers = 8

		results := make(chan error, claimers)
		for i := range claimers {
			go func(i int) {
				results <- st.InTx(ctx, func(ctx context.Context, s store.Stores) error {
					if _, err := s.Orgs().Get(ctx, "acme"); err == nil {
						return store.ErrOrgAlreadyClaimed
					}
					return s.Orgs().Create(ctx, &models.Org{
						Name:   "acme",
						Admins: []string{fmt.Sprintf("u%d", i)},
					})
				})
			}(i)
		}

		var wins, losses int
		for range claimers {
			err := <-results
			switch {
			case err == nil:
				wins++
			default:
				require.ErrorIs(t, err, store.ErrOrgAlreadyClaimed)
				losses++
			}
		}
		require.Equal(t, 1, wins)
		require.Equal(t, claimers-1, losses)

		org, err := st.Orgs().Get(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, org.Admins, 1)
	})
}
