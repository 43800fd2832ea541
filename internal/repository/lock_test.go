package repository

import (
	"context"
	"testing"
	"time"

	"lazla/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// dryRunPostgres renders SQL with the postgres dialect without connecting.
func dryRunPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=lazla dbname=lazla sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestLockPurchase_RendersForUpdate(t *testing.T) {
	db := dryRunPostgres(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var p domain.Purchase
		return lockPurchase(tx, 42).First(&p)
	})

	assert.Contains(t, sql, `FROM "purchases"`)
	assert.Contains(t, sql, "id = 42")
	assert.Contains(t, sql, "FOR UPDATE")
}

func TestLockPurchase_SqliteDropsClause(t *testing.T) {
	db := newTestDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var p domain.Purchase
		return lockPurchase(tx, 42).First(&p)
	})

	assert.Contains(t, sql, "purchases")
	assert.NotContains(t, sql, "FOR UPDATE")
}

func TestSettleCOD_ReadsPurchaseUnderRowLock(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentEventRepository(db)
	p := seedPurchase(t, db)

	var locks []clause.Locking
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("lazla:capture_lock", func(tx *gorm.DB) {
		if tx.Statement.Table != "purchases" {
			return
		}
		if c, ok := tx.Statement.Clauses["FOR"]; ok {
			if l, ok := c.Expression.(clause.Locking); ok {
				locks = append(locks, l)
			}
		}
	}))

	_, err := repo.SettleCOD(context.Background(), CODSettlement{
		PurchaseID: p.ID,
		Event:      &domain.PaymentEvent{PurchaseID: p.ID, EventType: domain.EventCODCollected},
		TxnID:      "COD-lock",
		PaidAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	require.Len(t, locks, 1)
	assert.Equal(t, "UPDATE", locks[0].Strength)
}
