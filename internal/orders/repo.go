package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

var ErrOrderNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateTx(tx *gorm.DB, order *models.PurchaseOrder) error {
	return tx.Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	return findOrder(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDTx locks the row so concurrent payment events apply one at a time.
func (r *repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.PurchaseOrder, error) {
	return findOrder(tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *repository) FindByCheckoutSession(ctx context.Context, sessionID string) (*models.PurchaseOrder, error) {
	return findOrder(r.db.WithContext(ctx).Where("checkout_session_id = ?", sessionID))
}

func (r *repository) FindByPaymentRef(ctx context.Context, ref string) (*models.PurchaseOrder, error) {
	return findOrder(r.db.WithContext(ctx).Where("payment_ref = ?", ref))
}

func findOrder(q *gorm.DB) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByCompany(ctx context.Context, companyID uuid.UUID, params pagination.Params, filters ListFilters) (*OrderList, error) {
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if filters.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.BrokerStatus != nil {
		q = q.Where("broker_status = ?", *filters.BrokerStatus)
	}
	if filters.LotID != nil {
		q = q.Where("lot_id = ?", *filters.LotID)
	}
	if filters.DateFrom != nil {
		q = q.Where("created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		q = q.Where("created_at <= ?", filters.DateTo.UTC())
	}

	q, limit, err := pagination.Keyset(q, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.PurchaseOrder
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{}
	list.Orders, list.NextCursor = pagination.Trim(rows, limit, func(o models.PurchaseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return list, nil
}

// FindPendingBefore returns orders still awaiting payment that were created
// before cutoff, oldest first.
func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error) {
	var rows []models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", enums.PaymentStatusPendingPayment, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindOpenByCompanyAndTotal lists unpaid orders whose total equals total.
// A nil companyID searches across companies.
func (r *repository) FindOpenByCompanyAndTotal(ctx context.Context, companyID *uuid.UUID, total decimal.Decimal) ([]models.PurchaseOrder, error) {
	q := r.db.WithContext(ctx).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPendingPayment, enums.PaymentStatusProcessing}).
		Where("total_usd = ?", total)
	if companyID != nil {
		q = q.Where("company_id = ?", *companyID)
	}
	var rows []models.PurchaseOrder
	err := q.Order("created_at ASC").Find(&rows).Error
	return rows, err
}

func (r *repository) UpdateTx(tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := tx.Model(&models.PurchaseOrder{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
