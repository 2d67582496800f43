//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/BradenHooton/tollgate/internal/database"
	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/BradenHooton/tollgate/internal/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *database.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, db, err := setupDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()

	db.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// setupDatabase starts PostgreSQL in a container and applies the embedded migrations
func setupDatabase(ctx context.Context) (testcontainers.Container, *database.DB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("tollgate"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := database.New(pool, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	return container, db, nil
}

func truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE "+table)
		require.NoError(t, err)
	}
}

func TestLoginAttemptRepository(t *testing.T) {
	truncate(t, "login_attempts")
	ctx := context.Background()
	repo := repositories.NewLoginAttemptRepository(testDB)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	attempts := []models.LoginAttempt{
		{Identifier: "alice@example.com", SourceIP: "198.51.100.1", Success: false, AttemptedAt: base.Add(-2 * time.Hour)},
		{Identifier: "alice@example.com", SourceIP: "198.51.100.1", Success: false, AttemptedAt: base.Add(-5 * time.Minute)},
		{Identifier: "alice@example.com", SourceIP: "198.51.100.1", Success: true, AttemptedAt: base.Add(-4 * time.Minute)},
		{Identifier: "alice@example.com", SourceIP: "198.51.100.1", Success: false, AttemptedAt: base.Add(-time.Minute)},
		{Identifier: "bob@example.com", SourceIP: "198.51.100.2", Success: false, AttemptedAt: base.Add(-time.Minute)},
	}
	for i := range attempts {
		require.NoError(t, repo.RecordAttempt(ctx, &attempts[i]))
	}

	since := base.Add(-15 * time.Minute)

	count, err := repo.CountFailuresSince(ctx, "alice@example.com", since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	latest, err := repo.LatestFailureSince(ctx, "alice@example.com", since)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(base.Add(-time.Minute)))

	none, err := repo.LatestFailureSince(ctx, "carol@example.com", since)
	require.NoError(t, err)
	assert.Nil(t, none)

	removed, err := repo.DeleteBefore(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestAPIKeyRepository(t *testing.T) {
	truncate(t, "api_keys")
	ctx := context.Background()
	repo := repositories.NewAPIKeyRepository(testDB)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID:        uuid.NewString(),
		Name:      "auth-service",
		KeyHash:   "hash-1",
		KeyPrefix: "tg_abcd",
		CreatedBy: "admin-1",
		CreatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, key))

	dup := *key
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), models.ErrConflict)

	got, err := repo.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateLastUsed(ctx, key.ID, now.Add(time.Minute)))
	got, err = repo.GetByID(ctx, key.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	revoked, err := repo.Revoke(ctx, key.ID, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = repo.Revoke(ctx, key.ID, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, revoked, "second revoke is a no-op")

	_, err = repo.GetByHash(ctx, "hash-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.Revoke(ctx, uuid.NewString(), now)
	assert.ErrorIs(t, err, models.ErrNotFound)

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAuditLogRepository(t *testing.T) {
	truncate(t, "audit_events")
	ctx := context.Background()
	repo := repositories.NewAuditLogRepository(testDB)

	for _, name := range []string{models.AuditEventAPIKeyCreated, models.AuditEventAccountLocked, models.AuditEventAccountLocked} {
		_, err := repo.Create(ctx, &models.AuditEvent{
			ActorIP:    models.StrPtr("203.0.113.9"),
			EventName:  name,
			TargetType: "test",
			Metadata:   models.AuditMetadata{"k": "v"},
			Severity:   models.SeverityMedium,
		})
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, models.AuditEventFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "v", all[0].Metadata["k"])

	locked, err := repo.List(ctx, models.AuditEventFilter{EventName: models.AuditEventAccountLocked, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, locked, 2)

	page, err := repo.List(ctx, models.AuditEventFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestFeatureFlagRepository(t *testing.T) {
	truncate(t, "feature_flags")
	ctx := context.Background()
	repo := repositories.NewFeatureFlagRepository(testDB)

	_, err := repo.Get(ctx, "kill_switch")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "kill_switch", true, "admin-1"))
	flag, err := repo.Get(ctx, "kill_switch")
	require.NoError(t, err)
	assert.True(t, flag.Enabled)
	require.NotNil(t, flag.UpdatedBy)
	assert.Equal(t, "admin-1", *flag.UpdatedBy)

	require.NoError(t, repo.Set(ctx, "kill_switch", false, "admin-2"))
	flag, err = repo.Get(ctx, "kill_switch")
	require.NoError(t, err)
	assert.False(t, flag.Enabled)
}
