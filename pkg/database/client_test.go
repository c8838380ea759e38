package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/core/pkg/database"
	"github.com/agentic-hq/core/test/util"
)

// The client tests live in an external test package because test/util itself
// depends on database for schema provisioning.

func TestNewClientConnectsAndReportsHealth(t *testing.T) {
	ctx := context.Background()
	pool := util.SetupTestDatabase(t)

	// SetupTestDatabase already proved connectivity; reuse its pool config
	// string through the pool itself for the health check.
	client, err := database.NewClient(ctx, database.Config{
		URL:      pool.Config().ConnString(),
		MaxConns: 5,
		MinConns: 1,
	})
	require.NoError(t, err)
	defer client.Close()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int32(5), health.MaxConns)
}

func TestNewClientRejectsBadDSN(t *testing.T) {
	_, err := database.NewClient(context.Background(), database.Config{
		URL: "postgres://invalid:chars@[broken",
	})
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	pool := util.SetupTestDatabase(t)

	// SetupTestDatabase migrated once already; a second run is ErrNoChange.
	require.NoError(t, database.Migrate(pool.Config().ConnString()))

	var count int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM "Flow"`).Scan(&count))
	assert.Zero(t, count)
}
