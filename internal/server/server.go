package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/salonbook/internal/audit"
	auditdomain "github.com/smallbiznis/salonbook/internal/audit/domain"
	"github.com/smallbiznis/salonbook/internal/cashregister"
	cashdomain "github.com/smallbiznis/salonbook/internal/cashregister/domain"
	"github.com/smallbiznis/salonbook/internal/commission"
	commissiondomain "github.com/smallbiznis/salonbook/internal/commission/domain"
	"github.com/smallbiznis/salonbook/internal/commissionrule"
	ruledomain "github.com/smallbiznis/salonbook/internal/commissionrule/domain"
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/internal/events"
	"github.com/smallbiznis/salonbook/internal/invoice"
	invoicedomain "github.com/smallbiznis/salonbook/internal/invoice/domain"
	"github.com/smallbiznis/salonbook/internal/observability"
	obsmiddleware "github.com/smallbiznis/salonbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/salonbook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/salonbook/internal/observability/tracing"
	"github.com/smallbiznis/salonbook/internal/reference"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	events.Module,
	reference.Module,
	commissionrule.Module,
	cashregister.Module,
	invoice.Module,
	commission.Module,
	fx.Provide(NewEngine),
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

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine        *gin.Engine
	cfg           config.Config
	invoiceSvc    invoicedomain.Service
	commissionSvc commissiondomain.Service
	ruleSvc       ruledomain.Service
	cashSvc       cashdomain.Service
	auditSvc      auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	InvoiceSvc    invoicedomain.Service
	CommissionSvc commissiondomain.Service
	RuleSvc       ruledomain.Service
	CashSvc       cashdomain.Service
	AuditSvc      auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		invoiceSvc:    p.InvoiceSvc,
		commissionSvc: p.CommissionSvc,
		ruleSvc:       p.RuleSvc,
		cashSvc:       p.CashSvc,
		auditSvc:      p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", ActorContext())

	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id", s.UpdateInvoice)
	api.POST("/invoices/:id/payments", s.ApplyPayment)
	api.GET("/invoices/:id/payments", s.ListPayments)
	api.POST("/invoices/:id/payments/:paymentId/refund", s.RefundPayment)
	api.POST("/invoices/:id/commission", s.CalculateCommission)

	api.GET("/commission-rules", s.ListCommissionRules)
	api.POST("/commission-rules", s.CreateCommissionRule)
	api.GET("/commission-rules/resolve", s.ResolveCommissionRule)
	api.POST("/commission-rules/:id/deactivate", s.DeactivateCommissionRule)

	api.GET("/commissions", s.ListCommissions)
	api.POST("/commissions/:id/mark-paid", s.MarkCommissionPaid)
	api.POST("/commissions/:id/cancel", s.CancelCommission)

	api.POST("/branches/:branchId/cash-days/open", s.OpenCashDay)
	api.POST("/branches/:branchId/cash-days/movements", s.RecordCashMovement)
	api.POST("/branches/:branchId/cash-days/close", s.CloseCashDay)
	api.GET("/branches/:branchId/cash-days/:date", s.GetCashDay)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
