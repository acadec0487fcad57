package audit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

// Filter narrows an audit query. Cursor is the last id of the previous page.
type Filter struct {
	From       *time.Time
	To         *time.Time
	Action     *enums.AuditAction
	EntityType string
	EntityID   string
	Search     string
	Cursor     string
	Limit      int
}

type Page struct {
	Items      []models.AuditLog `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// SummaryRow aggregates one action for one day.
type SummaryRow struct {
	Day       time.Time         `gorm:"-"`
	Action    enums.AuditAction `gorm:"column:action"`
	Count     int64             `gorm:"column:event_count"`
	AmountUSD decimal.Decimal   `gorm:"column:amount_usd"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "db required")
	}
	return &Service{db: db}, nil
}

// Query returns entries newest first, paging with id < cursor.
func (s *Service) Query(ctx context.Context, f Filter) (Page, error) {
	limit := pagination.NormalizeLimit(f.Limit)

	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if cursor := strings.TrimSpace(f.Cursor); cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || id <= 0 {
			return Page{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
		}
		q = q.Where("id < ?", id)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	if f.Action != nil {
		if !f.Action.IsValid() {
			return Page{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid action")
		}
		q = q.Where("action = ?", string(*f.Action))
	}
	if v := strings.TrimSpace(f.EntityType); v != "" {
		q = q.Where("entity_type = ?", v)
	}
	if v := strings.TrimSpace(f.EntityID); v != "" {
		q = q.Where("entity_id = ?", v)
	}
	if v := strings.ToLower(strings.TrimSpace(f.Search)); v != "" {
		like := "%" + v + "%"
		q = q.Where("LOWER(actor_email) LIKE ? OR LOWER(entity_id) LIKE ? OR LOWER(entity_type) LIKE ? OR LOWER(action) LIKE ?", like, like, like, like)
	}

	var rows []models.AuditLog
	if err := q.Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query audit log")
	}

	page := Page{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.NextCursor = strconv.FormatInt(page.Items[limit-1].ID, 10)
	}
	return page, nil
}

// BuildDailySummary aggregates counts and amounts per action for the UTC day
// containing day.
func (s *Service) BuildDailySummary(ctx context.Context, day time.Time) ([]SummaryRow, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var rows []SummaryRow
	err := s.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Select("action, COUNT(*) AS event_count, COALESCE(SUM(amount_usd), 0) AS amount_usd").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("action").
		Order("action").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build audit summary")
	}
	for i := range rows {
		rows[i].Day = start
	}
	return rows, nil
}
