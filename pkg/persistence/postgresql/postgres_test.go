package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/dukex/licensehub/pkg/persistence"
	"github.com/dukex/licensehub/pkg/persistence/persistencetest"
	"github.com/dukex/licensehub/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"audit_entries", "workflow_instances", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("licensehub_test"),
			postgres.WithUsername("licensehub"),
			postgres.WithPassword("licensehub"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestPostgresPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		p, _, _ := setupTestDB(t)

		return p
	})
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() { _ = db.Close() }()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	for _, table := range []string{"workflow_instances", "audit_entries"} {
		var exists bool

		err = db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err, "migrations are idempotent")
	require.NoError(t, again.Close(ctx))
}

func TestInstanceRepository_GroupApproverMembers(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	inst := persistencetest.NewInstance("wf-group", time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	inst.Steps[0].Approver = &models.ApproverIdentity{
		ID:      "finance-team",
		Kind:    models.ApproverKindGroup,
		Members: []string{"frank", "grace"},
	}
	require.NoError(t, p.Instances().Create(ctx, inst))

	for _, approver := range []string{"finance-team", "grace"} {
		listed, err := p.Instances().List(ctx, persistence.InstanceFilter{ApproverID: approver})
		require.NoError(t, err)
		require.Len(t, listed, 1, approver)
		assert.Equal(t, "wf-group", listed[0].ID)
	}

	loaded, version, err := p.Instances().Load(ctx, "wf-group")
	require.NoError(t, err)

	loaded.Status = models.InstanceStatusCancelled
	loaded.Steps[0].Status = models.StepStatusSkipped
	require.NoError(t, p.Instances().CompareAndSwap(ctx, "wf-group", version, loaded))

	listed, err := p.Instances().List(ctx, persistence.InstanceFilter{ApproverID: "grace"})
	require.NoError(t, err)
	assert.Empty(t, listed, "terminal instances have no current approver")
}
