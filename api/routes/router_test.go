package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/taxcredit-backend/api/controllers"
	"github.com/angelmondragon/taxcredit-backend/internal/access"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/auth"
	"github.com/angelmondragon/taxcredit-backend/internal/inventory"
	pkgAuth "github.com/angelmondragon/taxcredit-backend/pkg/auth"
	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return nil, fmt.Errorf("not implemented")
}

func (stubAuthService) Logout(ctx context.Context, accessID string) error {
	return nil
}

type stubSessionManager struct{}

func (stubSessionManager) Active(context.Context, string, uuid.UUID) (bool, error) {
	return true, nil
}

type stubLotCatalog struct{}

func (stubLotCatalog) Create(ctx context.Context, actor access.Principal, in inventory.CreateLotInput) (*models.CreditLot, error) {
	return &models.CreditLot{ID: uuid.New(), CreditType: in.CreditType, TaxYear: in.TaxYear}, nil
}

func (stubLotCatalog) Get(ctx context.Context, id uuid.UUID) (*models.CreditLot, error) {
	return nil, inventory.ErrLotNotFound
}

func (stubLotCatalog) List(ctx context.Context, f inventory.ListFilter) ([]models.CreditLot, string, error) {
	return []models.CreditLot{}, "", nil
}

func (stubLotCatalog) Update(ctx context.Context, actor access.Principal, id uuid.UUID, in inventory.UpdateLotInput) (*models.CreditLot, error) {
	return nil, inventory.ErrLotNotFound
}

func (stubLotCatalog) Delete(ctx context.Context, actor access.Principal, id uuid.UUID) (inventory.DeleteResult, error) {
	return inventory.DeleteResult{}, inventory.ErrLotNotFound
}

func (stubLotCatalog) GetActive(ctx context.Context, id uuid.UUID) (*models.CreditLot, error) {
	return nil, inventory.ErrLotNotFound
}

func (stubLotCatalog) ListActive(ctx context.Context, creditType *enums.CreditType, taxYear *int, params pagination.Params) ([]models.CreditLot, string, error) {
	return []models.CreditLot{{ID: uuid.New(), Status: enums.LotStatusActive}}, "", nil
}

type stubAudit struct{}

func (stubAudit) Query(ctx context.Context, f audit.Filter) (audit.Page, error) {
	return audit.Page{}, nil
}

type stubAccountants struct {
	linked   []uuid.UUID
	unlinked []uuid.UUID
}

func (s *stubAccountants) LinkAccountant(ctx context.Context, actor access.Principal, companyID, accountantID uuid.UUID) error {
	s.linked = append(s.linked, accountantID)
	return nil
}

func (s *stubAccountants) UnlinkAccountant(ctx context.Context, actor access.Principal, companyID, accountantID uuid.UUID) error {
	s.unlinked = append(s.unlinked, accountantID)
	return nil
}

func (s *stubAccountants) ListClients(ctx context.Context, actor access.Principal, accountantID uuid.UUID) ([]models.Company, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func testParams(cfg *config.Config) RouterParams {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return RouterParams{
		Config:   cfg,
		Logger:   logg,
		Registry: prometheus.NewRegistry(),
		Ready:    map[string]controllers.Pinger{"db": stubPinger{}},
		Sessions: stubSessionManager{},
		Auth:     stubAuthService{},
		Lots:     stubLotCatalog{},
		Audit:    stubAudit{},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	return NewRouter(testParams(cfg))
}

func serve(router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		if resp := serve(router, http.MethodGet, path, ""); resp.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s got %d", path, resp.Code)
		}
	}
}

func TestPublicLotsNeedNoToken(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := serve(router, http.MethodGet, "/api/v1/lots", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"lots"`) {
		t.Fatalf("expected lots payload got %s", resp.Body.String())
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/holds"},
		{http.MethodPost, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/companies/" + uuid.NewString() + "/orders"},
	} {
		if resp := serve(router, tc.method, tc.path, ""); resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s %s got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestAdminGroupRequiresStaffRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	resp := serve(router, http.MethodGet, "/api/admin/v1/lots", buildToken(t, cfg, enums.RoleCompany))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for company user got %d", resp.Code)
	}

	resp = serve(router, http.MethodGet, "/api/admin/v1/lots", buildToken(t, cfg, enums.RoleAdmin))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestAdminOnlyRoutesRejectBrokers(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	broker := buildToken(t, cfg, enums.RoleBroker)

	if resp := serve(router, http.MethodGet, "/api/admin/v1/audit", broker); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for broker audit got %d", resp.Code)
	}
	if resp := serve(router, http.MethodPatch, "/api/admin/v1/orders/"+uuid.NewString()+"/payment", broker); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for broker payment override got %d", resp.Code)
	}
	if resp := serve(router, http.MethodGet, "/api/admin/v1/audit", buildToken(t, cfg, enums.RoleAdmin)); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin audit got %d", resp.Code)
	}
}

func TestAccountantClientsRequireAccountantRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	resp := serve(router, http.MethodGet, "/api/v1/accountants/me/clients", buildToken(t, cfg, enums.RoleCompany))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestCompanyManagesOwnAccountantLinks(t *testing.T) {
	cfg := testConfig()
	links := &stubAccountants{}
	params := testParams(cfg)
	params.Accountants = links
	router := NewRouter(params)

	companyID := uuid.New()
	accountantID := uuid.New()
	path := "/api/v1/companies/" + companyID.String() + "/accountants/" + accountantID.String()

	if resp := serve(router, http.MethodPost, path, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}

	token := buildToken(t, cfg, enums.RoleCompany)
	if resp := serve(router, http.MethodPost, path, token); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for link got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := serve(router, http.MethodDelete, path, token); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for unlink got %d: %s", resp.Code, resp.Body.String())
	}
	if len(links.linked) != 1 || links.linked[0] != accountantID {
		t.Fatalf("expected one link for %s got %v", accountantID, links.linked)
	}
	if len(links.unlinked) != 1 || links.unlinked[0] != accountantID {
		t.Fatalf("expected one unlink for %s got %v", accountantID, links.unlinked)
	}
}

func TestStripeWebhookUnconfigured(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", resp.Code)
	}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	payload := pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "user@example.com",
		Role:   role,
		JTI:    uuid.NewString(),
	}
	if role == enums.RoleCompany {
		companyID := uuid.New()
		payload.CompanyID = &companyID
	}
	if role == enums.RoleBroker {
		brokerID := uuid.New()
		payload.BrokerID = &brokerID
	}
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
