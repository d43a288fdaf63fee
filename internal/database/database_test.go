package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"satsync/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// openTestDB opens a migrated sqlite database in a temp dir with a fixed clock
func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), models.DatabaseConfig{Driver: DriverSQLite, Path: path}, quietLogger())
	require.NoError(t, err)
	db.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openTestSession(t *testing.T) *Session {
	t.Helper()
	db := openTestDB(t)
	s, err := db.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Release() })
	return s
}

func TestOpen(t *testing.T) {
	t.Run("creates schema", func(t *testing.T) {
		db := openTestDB(t)
		assert.Equal(t, DriverSQLite, db.Driver())
		assert.NoError(t, db.Ping(context.Background()))

		var count int
		err := db.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("migrate is idempotent", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, db.Migrate(context.Background()))

		var count int
		require.NoError(t, db.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("rejects traversal path", func(t *testing.T) {
		_, err := Open(context.Background(), models.DatabaseConfig{Path: "../escape.db"}, quietLogger())
		assert.Error(t, err)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open(context.Background(), models.DatabaseConfig{Driver: "oracle", Path: "x"}, quietLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})

	t.Run("postgres needs connection string", func(t *testing.T) {
		_, err := dataSourceName(DriverPostgres, "")
		assert.Error(t, err)
	})
}

func TestSessionReleaseTwice(t *testing.T) {
	db := openTestDB(t)
	s, err := db.Acquire(context.Background())
	require.NoError(t, err)

	assert.NoError(t, s.Release())
	assert.NoError(t, s.Release())
}

func TestGatewayAlive(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)
	require.NoError(t, s.ProvisionGateway(ctx, models.Gateway{Name: "primary", URL: "https://gw.example/api/v1.0/"}))

	gw, err := s.Gateway(ctx, "primary")
	require.NoError(t, err)
	require.NotNil(t, gw)
	assert.True(t, gw.Alive)
	assert.Nil(t, gw.AliveChangedAt)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	changed, err := s.SetGatewayAlive(ctx, "primary", true, at)
	require.NoError(t, err)
	assert.False(t, changed, "already alive")

	changed, err = s.SetGatewayAlive(ctx, "primary", false, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetGatewayAlive(ctx, "primary", false, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed, "second failure is not an edge")

	changed, err = s.SetGatewayAlive(ctx, "primary", true, at.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	gw, err = s.Gateway(ctx, "primary")
	require.NoError(t, err)
	assert.True(t, gw.Alive)
	require.NotNil(t, gw.AliveChangedAt)
	assert.True(t, gw.AliveChangedAt.Equal(at.Add(2*time.Minute)))

	// re-provisioning keeps the observed flag
	require.NoError(t, s.ProvisionGateway(ctx, models.Gateway{Name: "primary", URL: "https://other.example/"}))
	gws, err := s.Gateways(ctx)
	require.NoError(t, err)
	require.Len(t, gws, 1)
	assert.Equal(t, "https://other.example/", gws[0].URL)
	assert.True(t, gws[0].Alive)

	missing, err := s.Gateway(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMailboxes(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)

	require.NoError(t, s.ProvisionMailbox(ctx, models.Mailbox{AccessID: "70000934", Password: "NGGHMGZS", GatewayName: "primary", Enabled: true}))
	require.NoError(t, s.ProvisionMailbox(ctx, models.Mailbox{AccessID: "70000001", Password: "X", GatewayName: "primary", Enabled: false}))

	mb, err := s.Mailbox(ctx, "70000934")
	require.NoError(t, err)
	require.NotNil(t, mb)
	assert.Equal(t, "NGGHMGZS", mb.Password)
	assert.Equal(t, "primary", mb.GatewayName)

	list, err := s.Mailboxes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "70000934", list[0].AccessID)

	owner, err := s.MailboxForMobile(ctx, "01097623SKY2C68")
	require.NoError(t, err)
	assert.Nil(t, owner)

	_, err = s.UpsertMobile(ctx, models.MobileUpdate{MobileID: "01097623SKY2C68", AccessID: models.Ptr("70000934")})
	require.NoError(t, err)

	owner, err = s.MailboxForMobile(ctx, "01097623SKY2C68")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "70000934", owner.AccessID)
}

func TestMailboxPasswordEncryption(t *testing.T) {
	t.Setenv("SATSYNC_ENABLE_ENCRYPTION", "true")
	t.Setenv("SATSYNC_ENCRYPTION_SECRET", "this-is-a-very-long-test-secret-value-0123")

	ctx := context.Background()
	s := openTestSession(t)
	require.NoError(t, s.ProvisionMailbox(ctx, models.Mailbox{AccessID: "70000934", Password: "NGGHMGZS", GatewayName: "primary", Enabled: true}))

	var stored string
	require.NoError(t, s.conn.QueryRowContext(ctx, "SELECT password FROM mailboxes WHERE access_id = $1", "70000934").Scan(&stored))
	assert.NotEqual(t, "NGGHMGZS", stored)

	mb, err := s.Mailbox(ctx, "70000934")
	require.NoError(t, err)
	assert.Equal(t, "NGGHMGZS", mb.Password)
}
