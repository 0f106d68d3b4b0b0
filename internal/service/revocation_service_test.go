package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevocationLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("Revoke is idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		first, err := env.ledger.Revoke(ctx, "CERT-1", universityA, "  degree   rescinded ")
		require.NoError(t, err)
		assert.Equal(t, "degree rescinded", first.Reason)
		assert.Equal(t, universityA, first.RevokedBy)

		second, err := env.ledger.Revoke(ctx, "CERT-1", universityA, "another reason")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		var rows int
		require.NoError(t, env.db.DB().QueryRow("SELECT COUNT(*) FROM revocations").Scan(&rows))
		assert.Equal(t, 1, rows)
		assert.Equal(t, 1, env.logs.FilterMessage("Certificate revoked").Len())
	})

	t.Run("Concurrent revokes all succeed", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.ledger.Revoke(ctx, "CERT-1", universityA, "")
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		revoked, err := env.ledger.IsRevoked(ctx, "CERT-1")
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("Only the issuer may revoke", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		_, err := env.ledger.Revoke(ctx, "CERT-1", universityB, "")
		requireKind(t, err, KindAuth, CodeForbidden)

		revoked, err := env.ledger.IsRevoked(ctx, "CERT-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("Rejected requests", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		_, err := env.ledger.Revoke(ctx, "CERT-1", "", "")
		requireKind(t, err, KindAuth, CodeUnauthenticated)

		_, err = env.ledger.Revoke(ctx, " ", universityA, "")
		requireKind(t, err, KindValidation, CodeInvalidField)

		_, err = env.ledger.Revoke(ctx, "CERT-1", universityA, strings.Repeat("x", MaxRevocationReason+1))
		requireKind(t, err, KindValidation, CodeInvalidField)

		_, err = env.ledger.Revoke(ctx, "CERT-404", universityA, "")
		requireKind(t, err, KindNotFound, CodeNotFound)
	})

	t.Run("Unknown ids are not revoked", func(t *testing.T) {
		env := newTestEnv(t)

		revoked, err := env.ledger.IsRevoked(ctx, "CERT-404")
		require.NoError(t, err)
		assert.False(t, revoked)

		entry, err := env.ledger.Get(ctx, "CERT-404")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}
