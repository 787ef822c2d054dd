package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded()))
}

func TestPaymentOrdersMigrationContainsConstraints(t *testing.T) {
	matches, err := fs.Glob(Embedded(), "*_create_payment_orders.sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := fs.ReadFile(Embedded(), matches[0])
	require.NoError(t, err)
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS payment_orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_orders_order_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_orders_receipt_no",
		"CHECK ((status = 'success') = (receipt_no IS NOT NULL))",
	} {
		require.Contains(t, content, sub)
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	err := ValidateDir(dir)
	require.ErrorContains(t, err, "invalid migration filename")
}

func TestValidateDirRejectsMissingDown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_things.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644))

	err := ValidateDir(dir)
	require.ErrorContains(t, err, "-- +goose Down")
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Receipt Index!", now)
	require.NoError(t, err)
	require.Equal(t, "20260102030405_add_receipt_index.sql", filepath.Base(path))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!", now)
	require.Error(t, err)
}

func TestCreateSQLMigrationBumpsTakenVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := CreateSQLMigration(dir, "donor_notes", now)
	require.NoError(t, err)
	second, err := CreateSQLMigration(dir, "donor_notes_index", now)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(filepath.Base(first), "20260102030405_"))
	require.True(t, strings.HasPrefix(filepath.Base(second), "20260102030406_"))
	require.NoError(t, ValidateDir(dir))
}

func TestRunAppliesEmbeddedMigrationsOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_run?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Run(context.Background(), sqlDB, DialectSQLite, DefaultDir, "up"))

	for _, table := range []string{"payment_orders", "outbox_events", "outbox_dlq"} {
		var count int64
		require.NoError(t, conn.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count).Error)
		require.EqualValues(t, 1, count, table)
	}

	// receipt_no must accompany success
	err = conn.Exec(`INSERT INTO payment_orders
		(id, order_id, flow, amount, currency, status, customer_name, customer_email, customer_phone, created_at, updated_at)
		VALUES ('0190a000-0000-7000-8000-000000000001', 'DON_ANON_x', 'visitor_donation', 10, 'INR', 'success', 'A', 'a@example.org', '9876543210', '2025-01-01', '2025-01-01')`).Error
	require.Error(t, err)
}

func TestDialect(t *testing.T) {
	require.Equal(t, DialectSQLite, Dialect(true))
	require.Equal(t, DialectPostgres, Dialect(false))
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"orders.sql":                  "-- +goose Up\n-- +goose Down\n",
		"20250101000000_a.sql":        "-- +goose Down\nDROP TABLE a;\n-- +goose Up\nCREATE TABLE a (id int);\n",
		"20250101000000_b.sql":        "-- +goose Up\n-- +goose Down\n",
		"20250102000000_receipts.sql": "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	err := ValidateDir(dir)
	require.Error(t, err)
	require.ErrorContains(t, err, "invalid migration filename")
	require.ErrorContains(t, err, "Down section before Up")
	require.ErrorContains(t, err, "duplicate migration version 20250101000000")
	require.NotContains(t, err.Error(), "receipts")
}

func TestMaybeRunDevOnlyMigratesDevWithFlag(t *testing.T) {
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{SQLitePath: filepath.Join(t.TempDir(), "dev.db")}, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	tables := func() int64 {
		var n int64
		require.NoError(t, client.DB().Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'payment_orders'").Scan(&n).Error)
		return n
	}

	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvProd}, FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true}}
	require.NoError(t, MaybeRunDev(ctx, cfg, nil, client))
	require.Zero(t, tables())

	cfg.App.Env = config.AppEnvDev
	require.NoError(t, MaybeRunDev(ctx, cfg, nil, client))
	require.EqualValues(t, 1, tables())
}
