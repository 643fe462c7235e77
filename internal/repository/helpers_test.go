package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"marketplace/internal/database"
	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	db, err := database.NewInMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fixedNow = time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func buildSettlement(sellerID string, status domain.SettlementStatus) *models.Settlement {
	return &models.Settlement{
		Code:              "STL-" + uuid.NewString()[:8],
		SellerID:          sellerID,
		SellerAccountID:   "acc-" + sellerID,
		PeriodStart:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:         time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		GrossAmount:       d("1000.00"),
		CommissionAmount:  d("50.00"),
		PlatformFeeAmount: d("10.00"),
		TaxAmount:         d("10.80"),
		AdjustmentAmount:  decimal.Zero,
		NetAmount:         d("929.20"),
		Currency:          "INR",
		Status:            status,
		CreatedBy:         "test",
	}
}

func seedSettlement(t *testing.T, repo *SettlementRepository, sellerID string, status domain.SettlementStatus) *models.Settlement {
	t.Helper()
	s := buildSettlement(sellerID, status)
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}
