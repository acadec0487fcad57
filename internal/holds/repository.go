package holds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

var ErrHoldNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "hold not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateTx(tx *gorm.DB, hold *models.Hold) error {
	return tx.Create(hold).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Hold, error) {
	return findHold(r.db.WithContext(ctx), id)
}

func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Hold, error) {
	return findHold(tx, id)
}

func findHold(db *gorm.DB, id uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	if err := db.First(&hold, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHoldNotFound
		}
		return nil, err
	}
	return &hold, nil
}

// TransitionTx moves a hold out of ACTIVE. It reports false when the row was
// no longer ACTIVE, which lets concurrent cancel/expire/consume calls race safely.
func (r *Repository) TransitionTx(tx *gorm.DB, id uuid.UUID, to enums.HoldStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Hold{}).
		Where("id = ? AND status = ?", id, enums.HoldStatusActive).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindLapsed returns ACTIVE holds whose expiry is before now, oldest first.
func (r *Repository) FindLapsed(ctx context.Context, now time.Time, limit int) ([]models.Hold, error) {
	var rows []models.Hold
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.HoldStatusActive, now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID, params pagination.Params) ([]models.Hold, string, error) {
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID)

	q, limit, err := pagination.Keyset(q, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Hold
	if err := q.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, limit, func(h models.Hold) pagination.Cursor {
		return pagination.Cursor{CreatedAt: h.CreatedAt, ID: h.ID}
	})
	return rows, next, nil
}
