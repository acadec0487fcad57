package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
)

// Repository persists accountant/company links and answers scoping lookups.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) LinkExists(ctx context.Context, accountantID, companyID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AccountantClient{}).
		Where("accountant_id = ? AND company_id = ?", accountantID, companyID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateLink(ctx context.Context, link *models.AccountantClient) error {
	return r.db.WithContext(ctx).Create(link).Error
}

// DeleteLink returns gorm.ErrRecordNotFound when no link existed.
func (r *Repository) DeleteLink(ctx context.Context, accountantID, companyID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("accountant_id = ? AND company_id = ?", accountantID, companyID).
		Delete(&models.AccountantClient{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) ListClientCompanies(ctx context.Context, accountantID uuid.UUID) ([]models.Company, error) {
	var companies []models.Company
	err := r.db.WithContext(ctx).
		Joins("JOIN accountant_clients ac ON ac.company_id = companies.id").
		Where("ac.accountant_id = ?", accountantID).
		Order("companies.name ASC").
		Find(&companies).Error
	return companies, err
}

func (r *Repository) FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

// CompanyExists is used by checkout to reject unknown buyers.
func (r *Repository) CompanyExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := r.FindCompany(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
