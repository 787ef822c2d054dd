package payments

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/donations-backend/pkg/db/models"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	"github.com/angelmondragon/donations-backend/pkg/logger"
	"github.com/angelmondragon/donations-backend/pkg/migrate"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Run(context.Background(), sqlDB, migrate.DialectSQLite, migrate.DefaultDir, "up"))
	return conn
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
}

func seedOrder(t *testing.T, repo Repository, flow enums.PaymentFlow, subject *uuid.UUID, amount string, createdAt time.Time) *models.PaymentOrder {
	t.Helper()

	policy, err := PolicyFor(flow)
	require.NoError(t, err)
	orderID, err := policy.NewOrderID(subject)
	require.NoError(t, err)

	order := &models.PaymentOrder{
		OrderID:       orderID,
		Flow:          flow,
		SubjectRef:    subject,
		Amount:        decimal.RequireFromString(amount),
		Currency:      enums.CurrencyINR,
		Status:        enums.OrderStatusPending,
		CustomerName:  "Asha Verma",
		CustomerEmail: "asha@example.org",
		CustomerPhone: "9876543210",
		CreatedAt:     createdAt.UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func countOutbox(t *testing.T, conn *gorm.DB, aggregateID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", aggregateID).Count(&count).Error)
	return count
}
