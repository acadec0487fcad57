package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, companyID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	MarkAllRead(ctx context.Context, companyID uuid.UUID, now time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	CompanyID  uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type notificationMarkResult struct {
	Updated bool
	Found   bool
}

// Create inserts the row and reports false when a notification for the same
// source event already exists.
func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) (bool, error) {
	err := r.db.WithContext(ctx).Create(notification).Error
	switch {
	case err == nil:
		return true, nil
	case notification.SourceEventID != nil && db.IsUniqueViolation(err, "ux_notifications_source_event"):
		return false, nil
	default:
		return false, err
	}
}

// inbox scopes queries to one company's notifications.
func (r *repositoryImpl) inbox(ctx context.Context, companyID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("company_id = ?", companyID)
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	page := pagination.NormalizeLimit(params.Limit)
	query := r.inbox(ctx, params.CompanyID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if c := params.Cursor; c != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	var rows []models.Notification
	err := query.Order("created_at DESC").Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	if len(rows) <= page {
		return rows, nil, nil
	}
	rows = rows[:page]
	tail := rows[page-1]
	return rows, &pagination.Cursor{CreatedAt: tail.CreatedAt, ID: tail.ID}, nil
}

// MarkRead stamps read_at once. A second call on the same row reports
// Found without Updated.
func (r *repositoryImpl) MarkRead(ctx context.Context, companyID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	res := r.inbox(ctx, companyID).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return notificationMarkResult{}, res.Error
	}
	if res.RowsAffected > 0 {
		return notificationMarkResult{Updated: true, Found: true}, nil
	}

	var n int64
	if err := r.inbox(ctx, companyID).Where("id = ?", notificationID).Count(&n).Error; err != nil {
		return notificationMarkResult{}, err
	}
	return notificationMarkResult{Found: n > 0}, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, companyID uuid.UUID, now time.Time) (int64, error) {
	res := r.inbox(ctx, companyID).Where("read_at IS NULL").UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

// DeleteOlderThan prunes read notifications created before cutoff. Unread
// rows are kept regardless of age.
func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).
		Where("read_at IS NOT NULL").
		Where("created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
