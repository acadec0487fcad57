package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Service defines the company inbox operations.
type Service interface {
	List(ctx context.Context, actor access.Principal, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, actor access.Principal, companyID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, actor access.Principal, companyID uuid.UUID) (int64, error)
}

type accessGate interface {
	Require(ctx context.Context, p access.Principal, companyID uuid.UUID, need access.Capability) error
}

type service struct {
	repo Repository
	gate accessGate
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	CompanyID  uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(repo Repository, gate accessGate) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if gate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "access gate required")
	}
	return &service{repo: repo, gate: gate, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) List(ctx context.Context, actor access.Principal, params ListParams) (*ListResult, error) {
	if params.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if err := s.gate.Require(ctx, actor, params.CompanyID, access.CapRead); err != nil {
		return nil, err
	}

	query := listNotificationsParams{
		CompanyID:  params.CompanyID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, actor access.Principal, companyID, notificationID uuid.UUID) error {
	if companyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	if err := s.gate.Require(ctx, actor, companyID, access.CapRead); err != nil {
		return err
	}

	result, err := s.repo.MarkRead(ctx, companyID, notificationID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, actor access.Principal, companyID uuid.UUID) (int64, error) {
	if companyID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if err := s.gate.Require(ctx, actor, companyID, access.CapRead); err != nil {
		return 0, err
	}

	count, err := s.repo.MarkAllRead(ctx, companyID, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
