package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/taxcredit-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/taxcredit-backend/api/controllers/webhooks"
	"github.com/angelmondragon/taxcredit-backend/api/middleware"
	"github.com/angelmondragon/taxcredit-backend/internal/audit"
	"github.com/angelmondragon/taxcredit-backend/internal/auth"
	"github.com/angelmondragon/taxcredit-backend/internal/fees"
	"github.com/angelmondragon/taxcredit-backend/internal/notifications"
	"github.com/angelmondragon/taxcredit-backend/pkg/auth/session"
	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
	"github.com/angelmondragon/taxcredit-backend/pkg/pagination"
)

// Limiter is the redis surface shared by the throttling middlewares.
type Limiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type stripeSecrets interface {
	SigningSecret() string
}

type lotCatalog interface {
	controllers.LotAdmin
	GetActive(ctx context.Context, id uuid.UUID) (*models.CreditLot, error)
	ListActive(ctx context.Context, creditType *enums.CreditType, taxYear *int, params pagination.Params) ([]models.CreditLot, string, error)
}

type auditQuerier interface {
	Query(ctx context.Context, f audit.Filter) (audit.Page, error)
}

type feeQuoter interface {
	Quote(face, price decimal.Decimal) (fees.Breakdown, error)
}

// RouterParams carries every dependency the HTTP surface needs. Nil services
// answer with an error envelope instead of panicking.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry prometheus.Gatherer
	Ready    map[string]controllers.Pinger

	Sessions    session.AccessSessionChecker
	Idempotency middleware.IdempotencyStore
	Limiter     Limiter

	Auth          auth.Service
	Lots          lotCatalog
	Fees          feeQuoter
	Holds         controllers.HoldService
	Orders        controllers.OrderService
	Payments      controllers.PaymentAdmin
	Audit         auditQuerier
	Accountants   controllers.AccountantLinks
	Notifications notifications.Service

	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeSecrets stripeSecrets
	StripeGuard   webhookcontrollers.StripeWebhookGuard
	USDCWebhook   webhookcontrollers.USDCWebhookService
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App),
	)

	loginPolicy := middleware.AuthRateLimitPolicy{
		Name:       "login",
		Window:     cfg.AuthRateLimit.LoginWindow,
		IPLimit:    cfg.AuthRateLimit.LoginIPLimit,
		EmailLimit: cfg.AuthRateLimit.LoginEmailLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})
	if p.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/lots", func(r chi.Router) {
		r.Get("/", controllers.ListLots(p.Lots, logg))
		r.Get("/{lotId}", controllers.GetLot(p.Lots, logg))
		r.Get("/{lotId}/quote", controllers.QuoteLot(p.Lots, p.Fees, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Limiter, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(p.Auth, cfg.JWT, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeSecrets, p.StripeGuard, logg))
		r.Post("/usdc", webhookcontrollers.USDCWebhook(p.USDCWebhook, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))
		r.Use(middleware.RateLimit(p.Limiter, logg))

		r.Route("/holds", func(r chi.Router) {
			r.Post("/", controllers.CreateHold(p.Holds, logg))
			r.Get("/{holdId}", controllers.GetHold(p.Holds, logg))
			r.Post("/{holdId}/cancel", controllers.CancelHold(p.Holds, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(p.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(p.Orders, logg))
		})

		r.Route("/companies/{companyId}", func(r chi.Router) {
			r.Get("/orders", controllers.ListCompanyOrders(p.Orders, logg))
			r.Get("/holds", controllers.ListCompanyHolds(p.Holds, logg))
			r.Post("/accountants/{accountantId}", controllers.LinkAccountant(p.Accountants, logg))
			r.Delete("/accountants/{accountantId}", controllers.UnlinkAccountant(p.Accountants, logg))
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			})
		})

		r.With(middleware.RequireRole(logg, enums.RoleAccountant)).
			Get("/accountants/me/clients", controllers.ListMyClients(p.Accountants, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleBroker))
		r.Use(middleware.Idempotency(p.Idempotency, logg))
		r.Use(middleware.RateLimit(p.Limiter, logg))

		r.Route("/lots", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateLot(p.Lots, logg))
			r.Get("/", controllers.AdminListLots(p.Lots, logg))
			r.Get("/{lotId}", controllers.AdminGetLot(p.Lots, logg))
			r.Patch("/{lotId}", controllers.AdminUpdateLot(p.Lots, logg))
			r.Delete("/{lotId}", controllers.AdminDeleteLot(p.Lots, logg))
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleAdmin)).
				Patch("/payment", controllers.AdminUpdatePayment(p.Payments, logg))
			r.Patch("/broker-status", controllers.AdminUpdateBrokerStatus(p.Payments, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Get("/audit", controllers.AdminQueryAudit(p.Audit, logg))
			r.Post("/companies/{companyId}/accountants/{accountantId}", controllers.LinkAccountant(p.Accountants, logg))
			r.Delete("/companies/{companyId}/accountants/{accountantId}", controllers.UnlinkAccountant(p.Accountants, logg))
		})
	})

	return r
}
