package orders

import (
	"context"
	"errors"
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
	"github.com/angelmondragon/taxcredit-backend/internal/fees"
	"github.com/angelmondragon/taxcredit-backend/internal/holds"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/taxcredit-backend/pkg/errors"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
	pkgstripe "github.com/angelmondragon/taxcredit-backend/pkg/stripe"
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

type fakeCheckout struct {
	calls []pkgstripe.CheckoutRequest
	err   error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, req pkgstripe.CheckoutRequest) (*pkgstripe.CheckoutSession, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &pkgstripe.CheckoutSession{ID: "cs_test_" + req.OrderID.String(), URL: "https://checkout.stripe.test/" + req.OrderID.String()}, nil
}

type fixture struct {
	db      *gorm.DB
	svc     *Service
	holds   *holds.Service
	audit   *recordingAudit
	company models.Company
	owner   access.Principal
}

type fixtureOptions struct {
	payments config.PaymentsConfig
	checkout CheckoutCreator
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&models.CreditLot{},
		&models.Hold{},
		&models.PurchaseOrder{},
		&models.OutboxEvent{},
		&models.Company{},
		&models.User{},
		&models.AccountantClient{},
	))

	company := models.Company{Name: "Acme Solar"}
	require.NoError(t, gdb.Create(&company).Error)

	accessRepo := access.NewRepository(gdb)
	gate, err := access.NewGate(accessRepo)
	require.NoError(t, err)
	txRunner := db.NewFromConn(gdb)
	lots := inventory.NewRepository(gdb)
	emitter := outbox.NewService(outbox.NewRepository(gdb), nil)
	recorder := &recordingAudit{}

	holdSvc, err := holds.NewService(holds.ServiceParams{
		DB:        txRunner,
		Repo:      holds.NewRepository(gdb),
		Inventory: lots,
		Gate:      gate,
		Outbox:    emitter,
		Audit:     recorder,
	})
	require.NoError(t, err)

	payments := opts.payments
	if payments.Mode == "" {
		payments.Mode = config.PaymentsModeDemo
	}
	svc, err := NewService(ServiceParams{
		DB:        txRunner,
		Repo:      NewRepository(gdb),
		Inventory: lots,
		Holds:     holdSvc,
		Companies: accessRepo,
		Gate:      gate,
		Fees: fees.NewCalculator(config.FeesConfig{
			PlatformFeePercent: decimal.NewFromInt(2),
			PlatformFeeFloor:   decimal.Zero,
			BrokerFeePercent:   decimal.Zero,
			BrokerFeeFloor:     decimal.Zero,
			FeeBase:            config.FeeBaseSubtotal,
		}),
		Checkout:  opts.checkout,
		Payments:  payments,
		PublicURL: "https://app.taxcredit.test/",
		Outbox:    emitter,
		Audit:     recorder,
	})
	require.NoError(t, err)

	return &fixture{
		db:      gdb,
		svc:     svc,
		holds:   holdSvc,
		audit:   recorder,
		company: company,
		owner:   access.Principal{UserID: uuid.New(), Email: "cfo@acme.test", Role: enums.RoleCompany, CompanyID: &company.ID},
	}
}

func (f *fixture) seedLot(t *testing.T, face string) *models.CreditLot {
	t.Helper()
	lot := &models.CreditLot{
		CreditType:     enums.CreditTypeITC,
		TaxYear:        2025,
		FaceValueUSD:   usd(face),
		AvailableUSD:   usd(face),
		MinBlockUSD:    usd("5000"),
		PricePerDollar: usd("0.85"),
		Status:         enums.LotStatusActive,
		CreatedBy:      uuid.New(),
	}
	require.NoError(t, f.db.Create(lot).Error)
	return lot
}

func (f *fixture) available(t *testing.T, lotID uuid.UUID) decimal.Decimal {
	t.Helper()
	var lot models.CreditLot
	require.NoError(t, f.db.First(&lot, "id = ?", lotID).Error)
	return lot.AvailableUSD
}

func (f *fixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.PurchaseOrder{}).Count(&n).Error)
	return n
}

func usd(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreateOrderDemoSettlesImmediately(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "500000")

	res, err := f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("20000")})
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, enums.PaymentStatusPaidTest, order.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodDemo, order.PaymentMethod)
	assert.Equal(t, enums.BrokerStatusPending, order.BrokerStatus)
	assert.Empty(t, res.PaymentURL)
	assert.True(t, order.PricePerDollar.Equal(usd("0.85")))
	assert.True(t, order.SubtotalUSD.Equal(usd("17000")), "subtotal=%s", order.SubtotalUSD)
	assert.True(t, order.PlatformFeeUSD.Equal(usd("340")), "platform fee=%s", order.PlatformFeeUSD)
	assert.True(t, order.TotalUSD.Equal(usd("17340")), "total=%s", order.TotalUSD)
	assert.True(t, f.available(t, lot.ID).Equal(usd("480000")))

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, enums.AuditOrderCreated, f.audit.entries[0].Action)
}

func TestCreateOrderLocksPriceAtCheckout(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "500000")

	res, err := f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("10000")})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.CreditLot{}).Where("id = ?", lot.ID).Update("price_per_dollar", usd("0.90")).Error)

	stored, err := f.svc.GetOrder(ctx, f.owner, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.PricePerDollar.Equal(usd("0.85")), "price=%s", stored.PricePerDollar)
}

func TestCreateOrderStripeReturnsPaymentURL(t *testing.T) {
	checkout := &fakeCheckout{}
	f := newFixture(t, fixtureOptions{
		payments: config.PaymentsConfig{Mode: config.PaymentsModeStripe},
		checkout: checkout,
	})
	ctx := context.Background()
	lot := f.seedLot(t, "100000")

	res, err := f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("10000")})
	require.NoError(t, err)

	assert.Equal(t, enums.PaymentStatusPendingPayment, res.Order.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodStripe, res.Order.PaymentMethod)
	assert.Equal(t, "https://checkout.stripe.test/"+res.Order.ID.String(), res.PaymentURL)
	require.NotNil(t, res.Order.CheckoutSessionID)
	require.Len(t, checkout.calls, 1)
	assert.True(t, checkout.calls[0].TotalUSD.Equal(res.Order.TotalUSD))
	assert.Equal(t, "https://app.taxcredit.test/orders/"+res.Order.ID.String()+"?checkout=success", checkout.calls[0].SuccessURL)
	assert.True(t, f.available(t, lot.ID).Equal(usd("90000")))
}

func TestCreateOrderProcessorOutageLeavesNoTrace(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		payments: config.PaymentsConfig{Mode: config.PaymentsModeStripe},
		checkout: &fakeCheckout{err: errors.New("stripe unavailable")},
	})
	lot := f.seedLot(t, "100000")

	_, err := f.svc.CreateOrder(context.Background(), f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("10000")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExternalService), "got %v", err)
	assert.True(t, f.available(t, lot.ID).Equal(usd("100000")))
	assert.Zero(t, f.countOrders(t))
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "20000")

	cases := []struct {
		name  string
		actor access.Principal
		in    CreateOrderInput
		code  pkgerrors.Code
	}{
		{
			name:  "insufficient",
			actor: f.owner,
			in:    CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("25000")},
			code:  pkgerrors.CodeInsufficientInventory,
		},
		{
			name:  "below minimum block",
			actor: f.owner,
			in:    CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("4999.99")},
			code:  pkgerrors.CodeBelowMinimumBlock,
		},
		{
			name:  "unknown lot",
			actor: f.owner,
			in:    CreateOrderInput{LotID: uuid.New(), CompanyID: f.company.ID, AmountUSD: usd("5000")},
			code:  pkgerrors.CodeNotFound,
		},
		{
			name:  "unknown company",
			actor: access.Principal{UserID: uuid.New(), Role: enums.RoleAdmin},
			in:    CreateOrderInput{LotID: lot.ID, CompanyID: uuid.New(), AmountUSD: usd("5000")},
			code:  pkgerrors.CodeNotFound,
		},
		{
			name:  "other company",
			actor: access.Principal{UserID: uuid.New(), Role: enums.RoleCompany, CompanyID: ptr(uuid.New())},
			in:    CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("5000")},
			code:  pkgerrors.CodeForbidden,
		},
		{
			name:  "broker",
			actor: access.Principal{UserID: uuid.New(), Role: enums.RoleBroker},
			in:    CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("5000")},
			code:  pkgerrors.CodeForbidden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tc.actor, tc.in)
			require.Error(t, err)
			assert.Truef(t, pkgerrors.IsCode(err, tc.code), "expected %s, got %v", tc.code, err)
		})
	}

	assert.True(t, f.available(t, lot.ID).Equal(usd("20000")))
	assert.Zero(t, f.countOrders(t))
	assert.Empty(t, f.audit.entries)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "500000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("300000")})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), "unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.available(t, lot.ID).Equal(usd("200000")))
	assert.Equal(t, int64(1), f.countOrders(t))
}

func TestCreateOrderSettlesAgainstHold(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "100000")

	hold, err := f.holds.CreateHold(ctx, f.owner, holds.CreateHoldInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("40000")})
	require.NoError(t, err)
	require.True(t, f.available(t, lot.ID).Equal(usd("60000")))

	res, err := f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("40000"), HoldID: &hold.ID})
	require.NoError(t, err)
	assert.Equal(t, hold.ID, *res.Order.HoldID)
	assert.True(t, f.available(t, lot.ID).Equal(usd("60000")), "settling a hold must not decrement twice")

	var stored models.Hold
	require.NoError(t, f.db.First(&stored, "id = ?", hold.ID).Error)
	assert.Equal(t, enums.HoldStatusConsumed, stored.Status)

	_, err = f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("40000"), HoldID: &hold.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	assert.Equal(t, int64(1), f.countOrders(t))
}

func TestListOrdersScopedToCompany(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "500000")

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("5000")})
		require.NoError(t, err)
	}

	page, err := f.svc.ListOrders(ctx, f.owner, f.company.ID, pagination.Params{Limit: 2}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListOrders(ctx, f.owner, f.company.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor}, ListFilters{})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)

	paid := enums.PaymentStatusPendingPayment
	none, err := f.svc.ListOrders(ctx, f.owner, f.company.ID, pagination.Params{}, ListFilters{PaymentStatus: &paid})
	require.NoError(t, err)
	assert.Empty(t, none.Orders)

	outsider := access.Principal{UserID: uuid.New(), Role: enums.RoleAccountant}
	_, err = f.svc.ListOrders(ctx, outsider, f.company.ID, pagination.Params{}, ListFilters{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func ptr[T any](v T) *T { return &v }

func TestCreateOrderRejectsSubCentAmount(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	lot := f.seedLot(t, "500000")

	_, err := f.svc.CreateOrder(context.Background(), f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("5000.005")})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.True(t, f.available(t, lot.ID).Equal(usd("500000")))
	assert.Zero(t, f.countOrders(t))
}

func TestHoldThenOrderOnSameLot(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx := context.Background()
	lot := f.seedLot(t, "500000")

	hold, err := f.holds.CreateHold(ctx, f.owner, holds.CreateHoldInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("10000")})
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusActive, hold.Status)
	require.True(t, f.available(t, lot.ID).Equal(usd("490000")), "available=%s", f.available(t, lot.ID))

	res, err := f.svc.CreateOrder(ctx, f.owner, CreateOrderInput{LotID: lot.ID, CompanyID: f.company.ID, AmountUSD: usd("20000")})
	require.NoError(t, err)
	assert.Nil(t, res.Order.HoldID)
	assert.True(t, res.Order.PricePerDollar.Equal(usd("0.85")), "order price=%s", res.Order.PricePerDollar)
	assert.True(t, f.available(t, lot.ID).Equal(usd("470000")), "available=%s", f.available(t, lot.ID))

	var stored models.Hold
	require.NoError(t, f.db.First(&stored, "id = ?", hold.ID).Error)
	assert.Equal(t, enums.HoldStatusActive, stored.Status)
	assert.Equal(t, int64(1), f.countOrders(t))
}
