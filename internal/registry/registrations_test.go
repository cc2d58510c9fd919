package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
)

func TestRegistrationsAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("add to unclaimed org fails", func(t *testing.T) {
		_, st := newTestRegistry(t, "u1")
		regs := NewRegistrations(st)

		_, err := regs.Add(ctx, &models.Registration{OrgName: "nowhere", Name: "Bob"})
		require.ErrorIs(t, err, store.ErrUnknownOrg)
	})

	t.Run("add assigns an id and anyone may add", func(t *testing.T) {
		reg, st := newTestRegistry(t, "u1")
		regs := NewRegistrations(st)

		_, err := reg.ClaimNewOrg(ctx, "u1", "acme")
		require.NoError(t, err)

		// No session gates Add; u3 never resolved and is not a member.
		id, err := regs.Add(ctx, &models.Registration{
			OrgName: "acme",
			Name:    "Walk-in",
			Fields:  map[string]string{"email": "walkin@example.com"},
		})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)

		stored, err := st.Registrations().Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, "Walk-in", stored.Name)
	})

	t.Run("add rejects invalid registration", func(t *testing.T) {
		reg, st := newTestRegistry(t, "u1")
		regs := NewRegistrations(st)

		_, err := reg.ClaimNewOrg(ctx, "u1", "acme")
		require.NoError(t, err)

		_, err = regs.Add(ctx, &models.Registration{OrgName: "acme"})
		require.Error(t, err)
	})
}

func TestRegistrationsFetch(t *testing.T) {
	ctx := context.Background()

	// Build the acme org with u1 as admin, u2 accepted, and one walk-in
	// registration added by an outsider.
	setup := func(t *testing.T) (*Registrations, *Registry) {
		t.Helper()
		reg, st := newTestRegistry(t, "u1", "u2")
		regs := NewRegistrations(st)

		_, err := reg.ClaimNewOrg(ctx, "u1", "acme")
		require.NoError(t, err)
		granted, err := reg.GrantExistingOrg(ctx, "u1", "u2", "acme")
		require.NoError(t, err)
		require.True(t, granted)
		accepted, err := reg.AcceptOrg(ctx, "u2", "acme")
		require.NoError(t, err)
		require.True(t, accepted)

		_, err = regs.Add(ctx, &models.Registration{OrgName: "acme", Name: "Walk-in"})
		require.NoError(t, err)
		return regs, reg
	}

	t.Run("accepted member sees registrations", func(t *testing.T) {
		regs, _ := setup(t)

		got, visible, err := regs.Fetch(ctx, "u2", "acme")
		require.NoError(t, err)
		require.True(t, visible)
		require.Len(t, got, 1)
		require.Equal(t, "Walk-in", got[0].Name)
	})

	t.Run("admin sees registrations", func(t *testing.T) {
		regs, _ := setup(t)

		got, visible, err := regs.Fetch(ctx, "u1", "acme")
		require.NoError(t, err)
		require.True(t, visible)
		require.Len(t, got, 1)
	})

	t.Run("non-member is denied", func(t *testing.T) {
		regs, _ := setup(t)

		got, visible, err := regs.Fetch(ctx, "u3", "acme")
		require.NoError(t, err)
		require.False(t, visible)
		require.Nil(t, got)
	})

	t.Run("pending member is denied", func(t *testing.T) {
		regs, reg := setup(t)

		granted, err := reg.GrantExistingOrg(ctx, "u1", "u9", "acme")
		require.NoError(t, err)
		require.True(t, granted)

		got, visible, err := regs.Fetch(ctx, "u9", "acme")
		require.NoError(t, err)
		require.False(t, visible)
		require.Nil(t, got)
	})

	t.Run("unknown org looks the same as denial", func(t *testing.T) {
		regs, _ := setup(t)

		gotDenied, visibleDenied, err := regs.Fetch(ctx, "u3", "acme")
		require.NoError(t, err)
		gotUnknown, visibleUnknown, err := regs.Fetch(ctx, "u3", "nowhere")
		require.NoError(t, err)

		require.Equal(t, visibleDenied, visibleUnknown)
		require.Equal(t, gotDenied, gotUnknown)
	})

	t.Run("empty org lists as visible with no records", func(t *testing.T) {
		reg, st := newTestRegistry(t, "u1")
		regs := NewRegistrations(st)

		_, err := reg.ClaimNewOrg(ctx, "u1", "acme")
		require.NoError(t, err)

		got, visible, err := regs.Fetch(ctx, "u1", "acme")
		require.NoError(t, err)
		require.True(t, visible)
		require.Empty(t, got)
	})
}
