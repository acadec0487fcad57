package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Write(_ context.Context, entry audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []enums.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CreditLot{}, &models.Hold{}, &models.PurchaseOrder{}))
	return db
}

func usd(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seedLot(t *testing.T, db *gorm.DB, face, available string) *models.CreditLot {
	t.Helper()
	lot := &models.CreditLot{
		CreditType:     enums.CreditTypeITC,
		TaxYear:        2025,
		FaceValueUSD:   usd(face),
		AvailableUSD:   usd(available),
		MinBlockUSD:    usd("5000"),
		PricePerDollar: usd("0.85"),
		Status:         enums.LotStatusActive,
		CreatedBy:      uuid.New(),
	}
	require.NoError(t, db.Create(lot).Error)
	return lot
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.CreditLot {
	t.Helper()
	var lot models.CreditLot
	require.NoError(t, db.First(&lot, "id = ?", id).Error)
	return lot
}

func TestDecrementTxGuardsAvailability(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	lot := seedLot(t, db, "100", "100")

	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.DecrementTx(tx, lot.ID, usd("60"))
	})
	require.NoError(t, err)
	assert.True(t, reload(t, db, lot.ID).AvailableUSD.Equal(usd("40")))

	err = db.Transaction(func(tx *gorm.DB) error {
		return repo.DecrementTx(tx, lot.ID, usd("60"))
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), "got %v", err)
	assert.True(t, reload(t, db, lot.ID).AvailableUSD.Equal(usd("40")))
}

func TestDecrementTxDisambiguatesFailures(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	lot := seedLot(t, db, "100", "100")
	require.NoError(t, db.Model(lot).Update("status", enums.LotStatusInactive).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.DecrementTx(tx, lot.ID, usd("10"))
	})
	assert.ErrorIs(t, err, ErrLotInactive)

	err = db.Transaction(func(tx *gorm.DB) error {
		return repo.DecrementTx(tx, uuid.New(), usd("10"))
	})
	assert.ErrorIs(t, err, ErrLotNotFound)

	err = db.Transaction(func(tx *gorm.DB) error {
		return repo.DecrementTx(tx, lot.ID, decimal.Zero)
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Error(t, repo.DecrementTx(nil, lot.ID, usd("1")))
}

func TestValidateAmountRequiresWholeCents(t *testing.T) {
	for _, v := range []string{"5000", "5000.5", "5000.05", "5000.050"} {
		assert.NoError(t, ValidateAmount(usd(v)), v)
	}
	for _, v := range []string{"0", "-10", "5000.005", "0.001"} {
		err := ValidateAmount(usd(v))
		assert.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: got %v", v, err)
	}

	db := newTestDB(t)
	repo := NewRepository(db)
	lot := seedLot(t, db, "500000", "500000")
	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.DecrementTx(tx, lot.ID, usd("5000.005"))
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.True(t, reload(t, db, lot.ID).AvailableUSD.Equal(usd("500000")))
}

func TestIncrementTxNeverExceedsFace(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	lot := seedLot(t, db, "500000", "490000")

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.IncrementTx(tx, lot.ID, usd("10000"))
	}))
	assert.True(t, reload(t, db, lot.ID).AvailableUSD.Equal(usd("500000")))

	err := db.Transaction(func(tx *gorm.DB) error {
		return repo.IncrementTx(tx, lot.ID, usd("1"))
	})
	assert.ErrorIs(t, err, ErrOverCredit)
	assert.True(t, reload(t, db, lot.ID).AvailableUSD.Equal(usd("500000")))
}

func TestCheckAvailability(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	lot := seedLot(t, db, "100", "50")

	ok, err := repo.CheckAvailability(context.Background(), lot.ID, usd("50"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CheckAvailability(context.Background(), lot.ID, usd("50.01"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.CheckAvailability(context.Background(), uuid.New(), usd("1"))
	assert.ErrorIs(t, err, ErrLotNotFound)
}

func newService(t *testing.T, db *gorm.DB) (*Service, *recordingAudit) {
	t.Helper()
	recorder := &recordingAudit{}
	svc, err := NewService(ServiceParams{Repo: NewRepository(db), Audit: recorder})
	require.NoError(t, err)
	return svc, recorder
}

func TestServiceCreateScopesBrokerLots(t *testing.T) {
	db := newTestDB(t)
	svc, recorder := newService(t, db)
	brokerID := uuid.New()
	broker := access.Principal{UserID: uuid.New(), Role: enums.RoleBroker, BrokerID: &brokerID}

	lot, err := svc.Create(context.Background(), broker, CreateLotInput{
		CreditType:     enums.CreditType45Q,
		TaxYear:        2025,
		FaceValueUSD:   usd("500000"),
		MinBlockUSD:    usd("5000"),
		PricePerDollar: usd("0.85"),
		BrokerID:       ptr(uuid.New()),
	})
	require.NoError(t, err)
	require.NotNil(t, lot.BrokerID)
	assert.Equal(t, brokerID, *lot.BrokerID)
	assert.True(t, lot.AvailableUSD.Equal(lot.FaceValueUSD))
	assert.Equal(t, []enums.AuditAction{enums.AuditLotCreated}, recorder.actions())

	company := access.Principal{UserID: uuid.New(), Role: enums.RoleCompany, CompanyID: ptr(uuid.New())}
	_, err = svc.Create(context.Background(), company, CreateLotInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestServiceCreateValidation(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(t, db)
	admin := access.Principal{UserID: uuid.New(), Role: enums.RoleAdmin}
	base := CreateLotInput{
		CreditType:     enums.CreditTypeITC,
		TaxYear:        2025,
		FaceValueUSD:   usd("1000"),
		MinBlockUSD:    usd("100"),
		PricePerDollar: usd("0.9"),
	}

	cases := map[string]func(in *CreateLotInput){
		"price above one":    func(in *CreateLotInput) { in.PricePerDollar = usd("1.1") },
		"zero price":         func(in *CreateLotInput) { in.PricePerDollar = decimal.Zero },
		"zero face":          func(in *CreateLotInput) { in.FaceValueUSD = decimal.Zero },
		"min block > face":   func(in *CreateLotInput) { in.MinBlockUSD = usd("1001") },
		"unknown type":       func(in *CreateLotInput) { in.CreditType = "XYZ" },
		"tax year too early": func(in *CreateLotInput) { in.TaxYear = 1999 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := svc.Create(context.Background(), admin, in)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestServiceUpdateAvailabilityCorrection(t *testing.T) {
	db := newTestDB(t)
	svc, recorder := newService(t, db)
	lot := seedLot(t, db, "1000", "400")
	admin := access.Principal{UserID: uuid.New(), Role: enums.RoleAdmin}

	_, err := svc.Update(context.Background(), admin, lot.ID, UpdateLotInput{AvailableUSD: ptr(usd("1000.01"))})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	updated, err := svc.Update(context.Background(), admin, lot.ID, UpdateLotInput{
		AvailableUSD:   ptr(usd("450")),
		PricePerDollar: ptr(usd("0.8")),
	})
	require.NoError(t, err)
	assert.True(t, updated.AvailableUSD.Equal(usd("450")))
	assert.True(t, updated.PricePerDollar.Equal(usd("0.8")))
	assert.True(t, updated.FaceValueUSD.Equal(usd("1000")))
	assert.Equal(t, []enums.AuditAction{enums.AuditLotUpdated, enums.AuditInventoryAdjusted}, recorder.actions())

	brokerID := uuid.New()
	broker := access.Principal{UserID: uuid.New(), Role: enums.RoleBroker, BrokerID: &brokerID}
	_, err = svc.Update(context.Background(), broker, lot.ID, UpdateLotInput{PricePerDollar: ptr(usd("0.7"))})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestServiceDeleteSoftDeactivatesReferencedLots(t *testing.T) {
	db := newTestDB(t)
	svc, recorder := newService(t, db)
	admin := access.Principal{UserID: uuid.New(), Role: enums.RoleAdmin}

	referenced := seedLot(t, db, "1000", "900")
	require.NoError(t, db.Create(&models.Hold{
		LotID:     referenced.ID,
		CompanyID: uuid.New(),
		AmountUSD: usd("100"),
		Status:    enums.HoldStatusActive,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		CreatedBy: admin.UserID,
	}).Error)
	unreferenced := seedLot(t, db, "1000", "1000")

	res, err := svc.Delete(context.Background(), admin, referenced.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Deactivated: true}, res)
	assert.Equal(t, enums.LotStatusInactive, reload(t, db, referenced.ID).Status)

	res, err = svc.Delete(context.Background(), admin, unreferenced.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Deleted: true}, res)
	var count int64
	require.NoError(t, db.Model(&models.CreditLot{}).Where("id = ?", unreferenced.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.Equal(t, []enums.AuditAction{enums.AuditLotDeactivated, enums.AuditLotDeleted}, recorder.actions())

	broker := access.Principal{UserID: uuid.New(), Role: enums.RoleBroker, BrokerID: ptr(uuid.New())}
	_, err = svc.Delete(context.Background(), broker, referenced.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestServiceListActivePaginates(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(t, db)
	for i := 0; i < 3; i++ {
		seedLot(t, db, "1000", "1000")
	}
	inactive := seedLot(t, db, "1000", "1000")
	require.NoError(t, db.Model(inactive).Update("status", enums.LotStatusInactive).Error)

	first, next, err := svc.ListActive(context.Background(), nil, nil, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, next)

	second, next, err := svc.ListActive(context.Background(), nil, nil, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Empty(t, next)

	seen := map[uuid.UUID]bool{}
	for _, lot := range append(first, second...) {
		assert.Equal(t, enums.LotStatusActive, lot.Status)
		assert.False(t, seen[lot.ID], "duplicate lot across pages")
		seen[lot.ID] = true
	}

	_, err = svc.GetActive(context.Background(), inactive.ID)
	assert.ErrorIs(t, err, ErrLotNotFound)
}

func ptr[T any](v T) *T {
	return &v
}
