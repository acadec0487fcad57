package access

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:access_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Company{}, &models.User{}, &models.AccountantClient{}))
	return db
}

func TestResolveAccessTable(t *testing.T) {
	cases := []struct {
		role enums.Role
		rel  Relationship
		want Capability
	}{
		{enums.RoleAdmin, RelationshipNone, CapAll},
		{enums.RoleAdmin, RelationshipLinked, CapAll},
		{enums.RoleCompany, RelationshipOwner, CapReadWrite},
		{enums.RoleCompany, RelationshipNone, CapNone},
		{enums.RoleCompany, RelationshipLinked, CapNone},
		{enums.RoleAccountant, RelationshipLinked, CapReadWrite},
		{enums.RoleAccountant, RelationshipNone, CapNone},
		{enums.RoleAccountant, RelationshipOwner, CapNone},
		{enums.RoleBroker, RelationshipOwner, CapNone},
		{enums.Role("GUEST"), RelationshipOwner, CapNone},
	}
	for _, tc := range cases {
		if got := ResolveAccess(tc.role, tc.rel); got != tc.want {
			t.Fatalf("ResolveAccess(%s, %s) = %s, want %s", tc.role, tc.rel, got, tc.want)
		}
	}
}

func TestCapabilityAllows(t *testing.T) {
	if CapNone.Allows(CapNone) {
		t.Fatal("CapNone must never allow")
	}
	if !CapAll.Allows(CapReadWrite) || !CapReadWrite.Allows(CapRead) {
		t.Fatal("higher capabilities must include lower ones")
	}
	if CapRead.Allows(CapReadWrite) {
		t.Fatal("read must not allow writes")
	}
}

func TestGateCompanyOwnership(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	gate, err := NewGate(repo)
	require.NoError(t, err)

	companyID := uuid.New()
	owner := Principal{UserID: uuid.New(), Role: enums.RoleCompany, CompanyID: &companyID}
	other := Principal{UserID: uuid.New(), Role: enums.RoleCompany, CompanyID: ptr(uuid.New())}

	require.NoError(t, gate.Require(context.Background(), owner, companyID, CapReadWrite))
	err = gate.Require(context.Background(), other, companyID, CapRead)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = gate.Require(context.Background(), Principal{}, companyID, CapRead)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	admin := Principal{UserID: uuid.New(), Role: enums.RoleAdmin}
	ok, err := gate.HasAccess(context.Background(), admin, companyID)
	require.NoError(t, err)
	assert.True(t, ok)

	broker := Principal{UserID: uuid.New(), Role: enums.RoleBroker}
	ok, err = gate.HasAccess(context.Background(), broker, companyID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccountantForbiddenUntilLinked(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	company := models.Company{Name: "Acme Solar"}
	require.NoError(t, db.Create(&company).Error)
	accountant := models.User{Email: "cpa@firm.test", PasswordHash: "x", Role: enums.RoleAccountant}
	require.NoError(t, db.Create(&accountant).Error)

	repo := NewRepository(db)
	gate, err := NewGate(repo)
	require.NoError(t, err)
	recorder := &recordingAudit{}
	svc, err := NewService(ServiceParams{Repo: repo, Audit: recorder})
	require.NoError(t, err)

	principal := Principal{UserID: accountant.ID, Email: accountant.Email, Role: enums.RoleAccountant}
	for _, need := range []Capability{CapRead, CapReadWrite} {
		err := gate.Require(ctx, principal, company.ID, need)
		require.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "expected forbidden before link, got %v", err)
	}

	owner := Principal{UserID: uuid.New(), Role: enums.RoleCompany, CompanyID: &company.ID}
	require.NoError(t, svc.LinkAccountant(ctx, owner, company.ID, accountant.ID))
	require.NoError(t, svc.LinkAccountant(ctx, owner, company.ID, accountant.ID), "relinking is a no-op")

	for _, need := range []Capability{CapRead, CapReadWrite} {
		require.NoError(t, gate.Require(ctx, principal, company.ID, need))
	}
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, enums.AuditAccountantLinked, recorder.entries[0].Action)

	clients, err := svc.ListClients(ctx, principal, accountant.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, company.ID, clients[0].ID)

	require.NoError(t, svc.UnlinkAccountant(ctx, owner, company.ID, accountant.ID))
	err = gate.Require(ctx, principal, company.ID, CapRead)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = svc.UnlinkAccountant(ctx, owner, company.ID, accountant.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestLinkAccountantRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	company := models.Company{Name: "Acme"}
	require.NoError(t, db.Create(&company).Error)
	notAccountant := models.User{Email: "broker@desk.test", PasswordHash: "x", Role: enums.RoleBroker}
	require.NoError(t, db.Create(&notAccountant).Error)

	svc, err := NewService(ServiceParams{Repo: NewRepository(db), Audit: &recordingAudit{}})
	require.NoError(t, err)

	stranger := Principal{UserID: uuid.New(), Role: enums.RoleCompany, CompanyID: ptr(uuid.New())}
	err = svc.LinkAccountant(ctx, stranger, company.ID, notAccountant.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	admin := Principal{UserID: uuid.New(), Role: enums.RoleAdmin}
	err = svc.LinkAccountant(ctx, admin, company.ID, notAccountant.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.LinkAccountant(ctx, admin, uuid.New(), notAccountant.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	otherAccountant := Principal{UserID: uuid.New(), Role: enums.RoleAccountant}
	_, err = svc.ListClients(ctx, otherAccountant, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func ptr[T any](v T) *T {
	return &v
}
