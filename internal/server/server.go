package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/smallbiznis/dentaldesk/internal/observability"
	obsmiddleware "github.com/smallbiznis/dentaldesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dentaldesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/dentaldesk/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Module serves the webhook and checkout routes. The billing services must be
// provided by the application.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterWebhookRoutes()
		s.RegisterCheckoutRoutes()
	}),
	fx.Invoke(RunHTTP),
)

// WebhookModule serves only the webhook routes.
var WebhookModule = fx.Module("http.server.webhook",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterWebhookRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Params struct {
	fx.In

	Engine      *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	WebhookSvc  billingdomain.WebhookService
	CheckoutSvc billingdomain.CheckoutService `optional:"true"`
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	webhookSvc  billingdomain.WebhookService
	checkoutSvc billingdomain.CheckoutService
}

func NewServer(p Params) *Server {
	return &Server{
		engine:      p.Engine,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		webhookSvc:  p.WebhookSvc,
		checkoutSvc: p.CheckoutSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/api/billing/webhook", s.HandleStripeWebhook)
	s.engine.POST("/functions/v1/stripe-webhook", s.HandleStripeWebhook)
}

func (s *Server) RegisterCheckoutRoutes() {
	if s.checkoutSvc == nil {
		s.log.Warn("checkout service not configured, checkout routes disabled")
		return
	}

	api := s.engine.Group("/api")
	api.Use(corsMiddleware(s.cfg.CORSAllowedOrigins))
	api.OPTIONS("/create-checkout-session", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	api.POST("/create-checkout-session", s.HandleCreateCheckoutSession)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "apikey", "x-client-info"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

// RunHTTP starts the listener on start and drains it on stop.
func RunHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
