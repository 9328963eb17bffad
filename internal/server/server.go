package server

import (
	"context"
	"net/http"
	"time"

	"github.com/decksmith/decksmith/internal/account"
	accountdomain "github.com/decksmith/decksmith/internal/account/domain"
	"github.com/decksmith/decksmith/internal/billingevent"
	billingeventdomain "github.com/decksmith/decksmith/internal/billingevent/domain"
	"github.com/decksmith/decksmith/internal/config"
	"github.com/decksmith/decksmith/internal/generation"
	generationdomain "github.com/decksmith/decksmith/internal/generation/domain"
	"github.com/decksmith/decksmith/internal/ledger"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/observability"
	obsmiddleware "github.com/decksmith/decksmith/internal/observability/logger"
	obsmetrics "github.com/decksmith/decksmith/internal/observability/metrics"
	obstracing "github.com/decksmith/decksmith/internal/observability/tracing"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	plan.Module,
	account.Module,
	ledger.Module,
	billingevent.Module,
	generation.Module,
	fx.Provide(registerGin),
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine          *gin.Engine
	cfg             config.Config
	plans           *plan.Resolver
	accountSvc      accountdomain.Service
	ledgerSvc       ledgerdomain.Service
	billingEventSvc billingeventdomain.Service
	generationSvc   generationdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Plans           *plan.Resolver
	AccountSvc      accountdomain.Service
	LedgerSvc       ledgerdomain.Service
	BillingEventSvc billingeventdomain.Service
	GenerationSvc   generationdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		plans:           p.Plans,
		accountSvc:      p.AccountSvc,
		ledgerSvc:       p.LedgerSvc,
		billingEventSvc: p.BillingEventSvc,
		generationSvc:   p.GenerationSvc,
	}
	s.registerAPIRoutes()
	return s
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)
	api.GET("/plans/:tier", s.GetPlanByTier)

	// -------- Accounts --------
	api.POST("/accounts", s.CreateAccount)
	api.GET("/accounts", s.ListAccounts)
	api.GET("/accounts/:id", s.GetAccountByID)
	api.DELETE("/accounts/:id", s.DeactivateAccount)

	// -------- Credits --------
	api.GET("/accounts/:id/credits", s.GetCreditBalance)
	api.GET("/accounts/:id/ledger", s.ListLedgerEntries)
	api.POST("/accounts/:id/credits/charge", s.ChargeCredits)
	api.POST("/accounts/:id/credits/grant", s.GrantCredits)
	api.POST("/accounts/:id/credits/reset", s.ResetCredits)

	// -------- Generation --------
	api.POST("/generate", s.Generate)

	// -------- Billing events --------
	api.POST("/billing/events", s.ApplyBillingEvent)
}
