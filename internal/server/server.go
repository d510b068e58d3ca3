package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creatorpay/internal/apikey"
	apikeydomain "github.com/smallbiznis/creatorpay/internal/apikey/domain"
	"github.com/smallbiznis/creatorpay/internal/audit"
	auditdomain "github.com/smallbiznis/creatorpay/internal/audit/domain"
	"github.com/smallbiznis/creatorpay/internal/authorization"
	"github.com/smallbiznis/creatorpay/internal/cloudmetrics"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/creator"
	creatordomain "github.com/smallbiznis/creatorpay/internal/creator/domain"
	"github.com/smallbiznis/creatorpay/internal/invoice"
	invoicedomain "github.com/smallbiznis/creatorpay/internal/invoice/domain"
	"github.com/smallbiznis/creatorpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/creatorpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creatorpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creatorpay/internal/observability/tracing"
	"github.com/smallbiznis/creatorpay/internal/payout"
	payoutdomain "github.com/smallbiznis/creatorpay/internal/payout/domain"
	"github.com/smallbiznis/creatorpay/internal/paymentrequest"
	requestdomain "github.com/smallbiznis/creatorpay/internal/paymentrequest/domain"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"github.com/smallbiznis/creatorpay/internal/reference"
	referencedomain "github.com/smallbiznis/creatorpay/internal/reference/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	apikey.Module,
	creator.Module,
	paymentrequest.Module,
	invoice.Module,
	payout.Module,
	reference.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	db               *gorm.DB
	genID            *snowflake.Node
	creatorSvc       creatordomain.Service
	requestSvc       requestdomain.Service
	invoiceSvc       invoicedomain.Service
	payoutSvc        payoutdomain.Service
	payoutWebhookSvc payoutdomain.WebhookService
	apiKeySvc        apikeydomain.Service
	authzSvc         authorization.Service
	auditSvc         auditdomain.Service
	refRepo          referencedomain.Repository
	obsMetrics       *obsmetrics.Metrics

	// claimLimiter is the shared redis bucket; the in-memory limiters below
	// back it up per instance so a dead redis never opens the endpoints up.
	claimLimiter       *ratelimit.ClaimLimiter
	claimViewLimiter   *rateLimiter
	claimAcceptLimiter *rateLimiter
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	CreatorSvc       creatordomain.Service
	RequestSvc       requestdomain.Service
	InvoiceSvc       invoicedomain.Service
	PayoutSvc        payoutdomain.Service
	PayoutWebhookSvc payoutdomain.WebhookService
	APIKeySvc        apikeydomain.Service
	AuthzSvc         authorization.Service
	AuditSvc         auditdomain.Service
	RefRepo          referencedomain.Repository
	ClaimLimiter     *ratelimit.ClaimLimiter `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:             p.Gin,
		cfg:                p.Cfg,
		db:                 p.DB,
		genID:              p.GenID,
		creatorSvc:         p.CreatorSvc,
		requestSvc:         p.RequestSvc,
		invoiceSvc:         p.InvoiceSvc,
		payoutSvc:          p.PayoutSvc,
		payoutWebhookSvc:   p.PayoutWebhookSvc,
		apiKeySvc:          p.APIKeySvc,
		authzSvc:           p.AuthzSvc,
		auditSvc:           p.AuditSvc,
		refRepo:            p.RefRepo,
		obsMetrics:         p.ObsMetrics,
		claimLimiter:       p.ClaimLimiter,
		claimViewLimiter:   newRateLimiter(30, time.Minute),
		claimAcceptLimiter: newRateLimiter(5, time.Minute),
	}

	svc.registerAPIRoutes()
	svc.registerPublicRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/countries", s.APIKeyRequired(), s.ListCountries)
	api.GET("/currencies", s.APIKeyRequired(), s.ListCurrencies)

	// -------- Creators --------
	api.GET("/creators", s.APIKeyRequired(), s.authorize(authorization.ObjectCreator, authorization.ActionCreatorView), s.ListCreators)
	api.POST("/creators", s.APIKeyRequired(), s.authorize(authorization.ObjectCreator, authorization.ActionCreatorCreate), s.CreateCreator)
	api.GET("/creators/:creator_id", s.APIKeyRequired(), s.authorize(authorization.ObjectCreator, authorization.ActionCreatorView), s.GetCreatorByID)
	api.PATCH("/creators/:creator_id", s.APIKeyRequired(), s.authorize(authorization.ObjectCreator, authorization.ActionCreatorUpdate), s.UpdateCreator)
	api.POST("/creators/:creator_id/payout-account", s.APIKeyRequired(), s.authorize(authorization.ObjectCreator, authorization.ActionCreatorManagePayout), s.EnsurePayoutAccount)
	api.POST("/creators/:creator_id/payout-account/refresh", s.APIKeyRequired(), s.authorize(authorization.ObjectCreator, authorization.ActionCreatorManagePayout), s.RefreshPayoutAccount)

	// -------- Payment Requests --------
	api.GET("/payment-requests", s.APIKeyRequired(), s.authorize(authorization.ObjectPaymentRequest, authorization.ActionPaymentRequestView), s.ListPaymentRequests)
	api.POST("/payment-requests", s.APIKeyRequired(), s.authorize(authorization.ObjectPaymentRequest, authorization.ActionPaymentRequestCreate), s.CreatePaymentRequest)
	api.GET("/payment-requests/:request_id", s.APIKeyRequired(), s.authorize(authorization.ObjectPaymentRequest, authorization.ActionPaymentRequestView), s.GetPaymentRequestByID)
	api.POST("/payment-requests/:request_id/mark-paid", s.APIKeyRequired(), s.authorize(authorization.ObjectPaymentRequest, authorization.ActionPaymentRequestMarkPaid), s.MarkPaymentRequestPaid)
	api.POST("/payment-requests/:request_id/mark-failed", s.APIKeyRequired(), s.authorize(authorization.ObjectPaymentRequest, authorization.ActionPaymentRequestMarkFailed), s.MarkPaymentRequestFailed)
	api.POST("/payment-requests/:request_id/payout", s.APIKeyRequired(), s.authorize(authorization.ObjectPayout, authorization.ActionPayoutProcess), s.ProcessPayout)

	// -------- Invoices --------
	api.GET("/payment-requests/:request_id/invoices", s.APIKeyRequired(), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListPaymentRequestInvoices)
	api.POST("/payment-requests/:request_id/invoices", s.APIKeyRequired(), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceAttach), s.AttachInvoice)
	api.POST("/payment-requests/:request_id/invoices/generate", s.APIKeyRequired(), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceGenerate), s.GenerateInvoice)
	api.POST("/invoices/:invoice_id/validation", s.APIKeyRequired(), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceValidate), s.RecordInvoiceValidation)

	// -------- API Keys --------
	api.GET("/api-keys", s.APIKeyRequired(), s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	api.POST("/api-keys", s.APIKeyRequired(), s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	api.DELETE("/api-keys/:key_id", s.APIKeyRequired(), s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)

	// -------- Audit Logs --------
	api.GET("/audit-logs", s.APIKeyRequired(), s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public")

	public.GET("/claims/:claim_token", s.GetClaim)
	public.POST("/claims/:claim_token/accept", s.AcceptClaim)
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/payouts/:provider", s.HandlePayoutWebhook)
}
