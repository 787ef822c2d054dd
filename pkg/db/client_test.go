package db

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

type ledgerRow struct {
	ID      int
	OrderID string `gorm:"uniqueIndex"`
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	conn := openMemory(t)
	client := NewFromGorm(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{OrderID: "MDN_1"}).Error
	}))
	require.EqualValues(t, 1, countRows(t, conn))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{OrderID: "MDN_2"}).Error; err != nil {
			return err
		}
		return errors.New("gateway said no")
	})
	require.EqualError(t, err, "gateway said no")
	require.EqualValues(t, 1, countRows(t, conn))

	require.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			tx.Create(&ledgerRow{OrderID: "MDN_3"})
			panic("boom")
		})
	})
	require.EqualValues(t, 1, countRows(t, conn))
}

func TestNewOpensSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	client, err := New(context.Background(), config.DBConfig{SQLitePath: path}, true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, DriverSQLite, client.Driver())
	require.NoError(t, client.Ping(context.Background()))
}

func TestUniqueViolationOnSQLite(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, conn.Create(&ledgerRow{OrderID: "dup"}).Error)

	err := conn.Create(&ledgerRow{OrderID: "dup"}).Error
	require.True(t, IsUniqueViolation(err, ""), "got %v", err)
	require.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{}, false)
	require.Error(t, err)
	_, err = dialectorFor(config.DBConfig{}, true)
	require.Error(t, err)

	d, err := dialectorFor(config.DBConfig{DSN: "postgres://localhost/donations"}, false)
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, d.Name())

	d, err = dialectorFor(config.DBConfig{SQLitePath: "file::memory:"}, true)
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, d.Name())
}

func TestQueryLoggerReportsSlowStatementsOnly(t *testing.T) {
	var buf bytes.Buffer
	q := queryLogger{
		logg: logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: &buf}),
		slow: 50 * time.Millisecond,
	}
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	q.Trace(context.Background(), time.Now(), stmt, nil)
	require.Empty(t, buf.String())

	q.Trace(context.Background(), time.Now(), stmt, gorm.ErrRecordNotFound)
	require.Empty(t, buf.String())

	q.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	require.Contains(t, buf.String(), "slow query")
	require.Contains(t, buf.String(), "SELECT 1")
}
