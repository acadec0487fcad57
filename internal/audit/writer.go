package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

// Entry is a single audited action.
type Entry struct {
	ActorID    uuid.UUID
	ActorEmail string
	Action     enums.AuditAction
	EntityType string
	EntityID   string
	CompanyID  *uuid.UUID
	AmountUSD  *decimal.Decimal
	Details    map[string]any
}

// Recorder is the write surface services depend on.
type Recorder interface {
	Write(ctx context.Context, entry Entry)
}

type requestMetaKey struct{}

// RequestMeta carries per-request attribution copied onto every entry.
type RequestMeta struct {
	IP        string
	RequestID string
}

// WithRequestMeta stores request attribution for later audit writes.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// Writer appends audit rows outside of the business transaction. Failures are
// logged and swallowed.
type Writer struct {
	db   *gorm.DB
	logg *logger.Logger
	now  func() time.Time
}

func NewWriter(db *gorm.DB, logg *logger.Logger) *Writer {
	return &Writer{
		db:   db,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (w *Writer) Write(ctx context.Context, entry Entry) {
	if w == nil || w.db == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// the primary action already committed; a client disconnect must not drop the row
	ctx = context.WithoutCancel(ctx)

	row, err := w.toRow(ctx, entry)
	if err == nil {
		err = w.db.WithContext(ctx).Create(row).Error
	}
	if err != nil && w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"audit_action": string(entry.Action),
			"entity_type":  entry.EntityType,
			"entity_id":    entry.EntityID,
		})
		w.logg.Error(logCtx, "audit write failed", err)
	}
}

func (w *Writer) toRow(ctx context.Context, entry Entry) (*models.AuditLog, error) {
	var details json.RawMessage
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return nil, err
		}
		details = raw
	}

	row := &models.AuditLog{
		ActorEmail: strings.TrimSpace(entry.ActorEmail),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		CompanyID:  entry.CompanyID,
		AmountUSD:  entry.AmountUSD,
		Details:    details,
		CreatedAt:  w.now(),
	}
	if entry.ActorID != uuid.Nil {
		actor := entry.ActorID
		row.ActorID = &actor
	}

	meta := requestMetaFrom(ctx)
	if meta.IP != "" {
		ip := meta.IP
		row.IP = &ip
	}
	if meta.RequestID != "" {
		rid := meta.RequestID
		row.RequestID = &rid
	}
	return row, nil
}

// Amount is a convenience for populating Entry.AmountUSD.
func Amount(v decimal.Decimal) *decimal.Decimal {
	return &v
}
