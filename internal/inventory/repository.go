package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

var (
	ErrLotNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "credit lot not found")
	ErrLotInactive = pkgerrors.New(pkgerrors.CodeStateConflict, "credit lot is not active")
	ErrOverCredit  = pkgerrors.New(pkgerrors.CodeStateConflict, "restoring amount would exceed face value")
)

// ListFilter narrows lot listings.
type ListFilter struct {
	CreditType *enums.CreditType
	TaxYear    *int
	Status     *enums.LotStatus
	BrokerID   *uuid.UUID
	Params     pagination.Params
}

// Repository owns the credit_lots table. Every balance mutation goes through
// DecrementTx or IncrementTx on the caller's transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CreditLot, error) {
	return findLot(r.db.WithContext(ctx), id)
}

// FindByIDTx reads the lot through tx so the read sees the caller's writes.
func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.CreditLot, error) {
	return findLot(tx, id)
}

func findLot(db *gorm.DB, id uuid.UUID) (*models.CreditLot, error) {
	var lot models.CreditLot
	if err := db.First(&lot, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLotNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// CheckAvailability reports whether amount <= available on an active lot.
func (r *Repository) CheckAvailability(ctx context.Context, lotID uuid.UUID, amount decimal.Decimal) (bool, error) {
	lot, err := r.FindByID(ctx, lotID)
	if err != nil {
		return false, err
	}
	return lot.Status == enums.LotStatusActive && amount.LessThanOrEqual(lot.AvailableUSD), nil
}

// DecrementTx atomically reduces available_usd. The availability check lives
// in the UPDATE predicate so concurrent callers serialize on the row.
func (r *Repository) DecrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	res := tx.Model(&models.CreditLot{}).
		Where("id = ? AND status = ? AND available_usd >= ?", lotID, enums.LotStatusActive, amount).
		Updates(map[string]any{
			"available_usd": gorm.Expr("available_usd - ?", amount),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	lot, err := findLot(tx, lotID)
	if err != nil {
		return err
	}
	if lot.Status != enums.LotStatusActive {
		return ErrLotInactive
	}
	return InsufficientInventory(lot.AvailableUSD, amount)
}

// ValidateAmount accepts positive amounts in whole cents. Balances and the
// hold and order rows are stored at two decimals, so a sub-cent amount would
// move the lot by a different figure than the row that justifies it.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be in whole cents").
			WithDetails(map[string]any{"amount_usd": amount.String()})
	}
	return nil
}

// InsufficientInventory builds the error returned when amount exceeds available.
func InsufficientInventory(available, requested decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory, "requested amount exceeds available inventory").WithDetails(map[string]any{
		"available_usd": available.StringFixed(2),
		"requested_usd": requested.StringFixed(2),
	})
}

// IncrementTx restores amount to the lot without letting available exceed face.
func (r *Repository) IncrementTx(tx *gorm.DB, lotID uuid.UUID, amount decimal.Decimal) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	res := tx.Model(&models.CreditLot{}).
		Where("id = ? AND available_usd + ? <= face_value_usd", lotID, amount).
		Updates(map[string]any{
			"available_usd": gorm.Expr("available_usd + ?", amount),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := findLot(tx, lotID); err != nil {
		return err
	}
	return ErrOverCredit
}

func (r *Repository) Create(ctx context.Context, lot *models.CreditLot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.CreditLot{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.CreditLot{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLotNotFound
	}
	return nil
}

// IsReferenced reports whether any order or hold points at the lot.
func (r *Repository) IsReferenced(ctx context.Context, id uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx)
	var orders int64
	if err := db.Model(&models.PurchaseOrder{}).Where("lot_id = ?", id).Count(&orders).Error; err != nil {
		return false, err
	}
	if orders > 0 {
		return true, nil
	}
	var holds int64
	if err := db.Model(&models.Hold{}).Where("lot_id = ?", id).Count(&holds).Error; err != nil {
		return false, err
	}
	return holds > 0, nil
}

// List returns lots newest first using a (created_at, id) cursor.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.CreditLot, string, error) {
	q := r.db.WithContext(ctx).Model(&models.CreditLot{})
	if f.CreditType != nil {
		q = q.Where("credit_type = ?", *f.CreditType)
	}
	if f.TaxYear != nil {
		q = q.Where("tax_year = ?", *f.TaxYear)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.BrokerID != nil {
		q = q.Where("broker_id = ?", *f.BrokerID)
	}

	q, limit, err := pagination.Keyset(q, f.Params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var lots []models.CreditLot
	if err := q.Find(&lots).Error; err != nil {
		return nil, "", err
	}
	lots, next := pagination.Trim(lots, limit, lotCursor)
	return lots, next, nil
}

func lotCursor(l models.CreditLot) pagination.Cursor {
	return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
}
