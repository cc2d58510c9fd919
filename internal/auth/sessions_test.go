package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewSessions(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := NewSessions([]byte("too short"), time.Hour)
		require.Error(t, err)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		_, err := NewSessions(testSecret, 0)
		require.Error(t, err)
	})
}

func TestIssueVerify(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		sessions, err := NewSessions(testSecret, time.Hour)
		require.NoError(t, err)

		token, err := sessions.Issue("u1")
		require.NoError(t, err)

		userID, err := sessions.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "u1", userID)
	})

	t.Run("rejects empty user id", func(t *testing.T) {
		sessions, err := NewSessions(testSecret, time.Hour)
		require.NoError(t, err)

		_, err = sessions.Issue("")
		require.Error(t, err)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		sessions, err := NewSessions(testSecret, time.Nanosecond)
		require.NoError(t, err)

		token, err := sessions.Issue("u1")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, err = sessions.Verify(token)
		require.Error(t, err)
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		sessions, err := NewSessions(testSecret, time.Hour)
		require.NoError(t, err)
		other, err := NewSessions([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
		require.NoError(t, err)

		token, err := other.Issue("u1")
		require.NoError(t, err)

		_, err = sessions.Verify(token)
		require.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		sessions, err := NewSessions(testSecret, time.Hour)
		require.NoError(t, err)

		_, err = sessions.Verify("not a token")
		require.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	sessions, err := NewSessions(testSecret, time.Hour)
	require.NoError(t, err)

	handler := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(userID))
	}))

	t.Run("valid token passes through with user id", func(t *testing.T) {
		token, err := sessions.Issue("u1")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "u1", rec.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
