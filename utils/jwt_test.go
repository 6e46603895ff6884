package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("cust-secret", "admin-secret", "driver-secret", time.Hour)
	id := primitive.NewObjectID()

	t.Run("should round trip a driver token", func(t *testing.T) {
		token, err := m.GenerateJWT(RoleDriver, id)
		require.NoError(t, err)

		p, err := m.ValidateJWT(RoleDriver, token)
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.Equal(t, RoleDriver, p.Role)
	})

	t.Run("should reject a token presented for another role", func(t *testing.T) {
		token, err := m.GenerateJWT(RoleCustomer, id)
		require.NoError(t, err)

		_, err = m.ValidateJWT(RoleAdmin, token)
		assert.Error(t, err)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		expired := NewTokenManager("cust-secret", "admin-secret", "driver-secret", time.Hour)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := expired.GenerateJWT(RoleDriver, id)
		require.NoError(t, err)

		_, err = m.ValidateJWT(RoleDriver, token)
		assert.Error(t, err)
	})

	t.Run("should reject a tampered token", func(t *testing.T) {
		token, err := m.GenerateJWT(RoleDriver, id)
		require.NoError(t, err)

		_, err = m.ValidateJWT(RoleDriver, token+"x")
		assert.Error(t, err)
	})
}
