package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgclaim/internal/registry"
	"github.com/wolfeidau/orgclaim/internal/store/memory"
	"golang.org/x/oauth2"
)

func TestUserID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		require.Equal(t, UserID("google", "12345"), UserID("google", "12345"))
	})

	t.Run("distinct across providers and ids", func(t *testing.T) {
		ids := map[string]bool{
			UserID("google", "12345"): true,
			UserID("github", "12345"): true,
			UserID("google", "12346"): true,
		}
		require.Len(t, ids, 3)
	})

	t.Run("field boundaries do not collide", func(t *testing.T) {
		require.NotEqual(t, UserID("ab", "c"), UserID("a", "bc"))
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("first resolve creates the user", func(t *testing.T) {
		resolver := NewResolver(memory.New())

		user, err := resolver.Resolve(ctx, Profile{
			Provider:    "google",
			ExternalID:  "12345",
			DisplayName: "Alice",
		}, &oauth2.Token{AccessToken: "at", RefreshToken: "rt"})
		require.NoError(t, err)
		require.Equal(t, UserID("google", "12345"), user.UserID)
		require.Equal(t, "Alice", user.DisplayName)
		require.Equal(t, "at", user.AccessToken)
		require.False(t, user.CreatedAt.IsZero())
	})

	t.Run("later resolve keeps the id and refreshes the profile", func(t *testing.T) {
		resolver := NewResolver(memory.New())

		first, err := resolver.Resolve(ctx, Profile{
			Provider:    "google",
			ExternalID:  "12345",
			DisplayName: "Alice",
		}, nil)
		require.NoError(t, err)

		second, err := resolver.Resolve(ctx, Profile{
			Provider:    "google",
			ExternalID:  "12345",
			DisplayName: "Alice B",
		}, &oauth2.Token{AccessToken: "at2"})
		require.NoError(t, err)

		require.Equal(t, first.UserID, second.UserID)
		require.Equal(t, "Alice B", second.DisplayName)
		require.Equal(t, "at2", second.AccessToken)
		require.Equal(t, first.CreatedAt, second.CreatedAt)
	})

	t.Run("resolve rejects incomplete profiles", func(t *testing.T) {
		resolver := NewResolver(memory.New())

		_, err := resolver.Resolve(ctx, Profile{Provider: "google"}, nil)
		require.Error(t, err)
	})

	t.Run("resolved user carries membership views", func(t *testing.T) {
		st := memory.New()
		resolver := NewResolver(st)
		reg := registry.New(st)

		user, err := resolver.Resolve(ctx, Profile{Provider: "google", ExternalID: "12345"}, nil)
		require.NoError(t, err)

		_, err = reg.ClaimNewOrg(ctx, user.UserID, "acme")
		require.NoError(t, err)

		user, err = resolver.Resolve(ctx, Profile{Provider: "google", ExternalID: "12345"}, nil)
		require.NoError(t, err)
		require.Equal(t, []string{"acme"}, user.AdminOf)
	})
}
