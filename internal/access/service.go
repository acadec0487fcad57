package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
)

type linkRepository interface {
	linkChecker
	CreateLink(ctx context.Context, link *models.AccountantClient) error
	DeleteLink(ctx context.Context, accountantID, companyID uuid.UUID) error
	ListClientCompanies(ctx context.Context, accountantID uuid.UUID) ([]models.Company, error)
	FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ServiceParams struct {
	Repo  linkRepository
	Audit audit.Recorder
}

// Service manages accountant/company links.
type Service struct {
	repo  linkRepository
	audit audit.Recorder
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "access repository required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	return &Service{repo: params.Repo, audit: params.Audit}, nil
}

// LinkAccountant grants accountantID access to companyID. Only admins and the
// company's own users may link. Linking twice is a no-op.
func (s *Service) LinkAccountant(ctx context.Context, actor Principal, companyID, accountantID uuid.UUID) error {
	if err := s.requireLinkManager(actor, companyID); err != nil {
		return err
	}
	if err := s.ensureCompany(ctx, companyID); err != nil {
		return err
	}
	if err := s.ensureAccountant(ctx, accountantID); err != nil {
		return err
	}

	exists, err := s.repo.LinkExists(ctx, accountantID, companyID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check accountant link")
	}
	if exists {
		return nil
	}

	link := &models.AccountantClient{
		AccountantID: accountantID,
		CompanyID:    companyID,
		LinkedBy:     actor.UserID,
	}
	if err := s.repo.CreateLink(ctx, link); err != nil {
		if db.IsUniqueViolation(err, "ux_accountant_clients_pair") {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create accountant link")
	}

	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditAccountantLinked,
		EntityType: "accountant_client",
		EntityID:   link.ID.String(),
		CompanyID:  &companyID,
		Details:    map[string]any{"accountant_id": accountantID.String()},
	})
	return nil
}

func (s *Service) UnlinkAccountant(ctx context.Context, actor Principal, companyID, accountantID uuid.UUID) error {
	if err := s.requireLinkManager(actor, companyID); err != nil {
		return err
	}
	if err := s.repo.DeleteLink(ctx, accountantID, companyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "accountant link not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete accountant link")
	}

	s.audit.Write(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		Action:     enums.AuditAccountantUnlinked,
		EntityType: "accountant_client",
		EntityID:   accountantID.String(),
		CompanyID:  &companyID,
	})
	return nil
}

// ListClients returns the companies an accountant is linked to. Accountants may
// only list their own clients.
func (s *Service) ListClients(ctx context.Context, actor Principal, accountantID uuid.UUID) ([]models.Company, error) {
	if actor.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() && !(actor.Role == enums.RoleAccountant && actor.UserID == accountantID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another accountant's clients")
	}
	companies, err := s.repo.ListClientCompanies(ctx, accountantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accountant clients")
	}
	return companies, nil
}

func (s *Service) requireLinkManager(actor Principal, companyID uuid.UUID) error {
	if actor.IsZero() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.IsAdmin() || actor.OwnsCompany(companyID) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "only admins or the company may manage accountant links")
}

func (s *Service) ensureCompany(ctx context.Context, companyID uuid.UUID) error {
	if _, err := s.repo.FindCompany(ctx, companyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load company")
	}
	return nil
}

func (s *Service) ensureAccountant(ctx context.Context, accountantID uuid.UUID) error {
	user, err := s.repo.FindUser(ctx, accountantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "accountant not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load accountant")
	}
	if user.Role != enums.RoleAccountant {
		return pkgerrors.New(pkgerrors.CodeValidation, "user is not an accountant")
	}
	return nil
}
