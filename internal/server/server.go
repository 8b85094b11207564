package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shieldhq/sentinel/internal/config"
	"github.com/shieldhq/sentinel/internal/metering"
	meteringdomain "github.com/shieldhq/sentinel/internal/metering/domain"
	"github.com/shieldhq/sentinel/internal/observability"
	obsmetrics "github.com/shieldhq/sentinel/internal/observability/metrics"
	"github.com/shieldhq/sentinel/internal/ratelimit"
	"github.com/shieldhq/sentinel/internal/security"
	securitydomain "github.com/shieldhq/sentinel/internal/security/domain"
	"github.com/shieldhq/sentinel/internal/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	observability.Module,
	ratelimit.Module,
	subscription.Module,
	metering.Module,
	security.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLoggingMiddleware(log))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	meteringSvc meteringdomain.Service
	securitySvc securitydomain.Service
	limiter     *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	MeteringSvc meteringdomain.Service
	SecuritySvc securitydomain.Service
	Limiter     *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("server"),
		genID:       p.GenID,
		meteringSvc: p.MeteringSvc,
		securitySvc: p.SecuritySvc,
		limiter:     p.Limiter,
	}

	svc.registerUsageRoutes()
	svc.registerSecurityRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerUsageRoutes() {
	usage := s.engine.Group("/usage")

	usage.POST("", s.IngestRateLimit(), s.RecordUsage)
	usage.GET("", s.GetUsage)
	usage.GET("/events", s.ListUsageEvents)
}

func (s *Server) registerSecurityRoutes() {
	sec := s.engine.Group("/security")

	sec.POST("/monitor", s.MonitorLogin)
	sec.GET("/dashboard", s.SecurityDashboard)

	alerts := sec.Group("/alerts")
	{
		alerts.GET("", s.ListAlerts)
		alerts.POST("/:id/acknowledge", s.AcknowledgeAlert)
		alerts.POST("/:id/resolve", s.ResolveAlert)
	}
}
