package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
)

// TransferRepository persists observed USDC transfers.
type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// FindByTxHash returns nil when the transfer has not been seen.
func (r *TransferRepository) FindByTxHash(ctx context.Context, txHash string) (*models.PaymentTransfer, error) {
	var row models.PaymentTransfer
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *TransferRepository) CreateTx(tx *gorm.DB, transfer *models.PaymentTransfer) error {
	return tx.Create(transfer).Error
}

// ListUnmatched returns transfers no order could be paired with, newest first.
func (r *TransferRepository) ListUnmatched(ctx context.Context, limit int) ([]models.PaymentTransfer, error) {
	var rows []models.PaymentTransfer
	err := r.db.WithContext(ctx).
		Where("matched = ?", false).
		Order("received_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
