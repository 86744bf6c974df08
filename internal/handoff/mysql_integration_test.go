//go:build integration && mysql

// MySQL integration tests for the handoff store. A disposable MySQL server is
// started with testcontainers, so Docker must be available.
// Run with: go test -tags="integration,mysql" -v ./internal/handoff/...
package handoff

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// TestMySQLStoreContract runs the store contract against a real MySQL server.
func TestMySQLStoreContract(t *testing.T) {
	ctx := t.Context()

	ctr, err := mysql.Run(ctx, "mysql:8.0.36",
		mysql.WithDatabase("killclip"),
		mysql.WithUsername("killclip"),
		mysql.WithPassword("killclip"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	store, err := OpenMySQL(dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.Equal(t, "mysql", store.Name())
	storeContract(t, store)
}
