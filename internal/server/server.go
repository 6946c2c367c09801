package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	addondomain "github.com/smallbiznis/medrate/internal/addon/domain"
	applicationdomain "github.com/smallbiznis/medrate/internal/application/domain"
	"github.com/smallbiznis/medrate/internal/config"
	discountdomain "github.com/smallbiznis/medrate/internal/discount/domain"
	loadingdomain "github.com/smallbiznis/medrate/internal/loading/domain"
	"github.com/smallbiznis/medrate/internal/observability"
	obsmiddleware "github.com/smallbiznis/medrate/internal/observability/logger"
	obstracing "github.com/smallbiznis/medrate/internal/observability/tracing"
	premiumdomain "github.com/smallbiznis/medrate/internal/premium/domain"
	ratecarddomain "github.com/smallbiznis/medrate/internal/ratecard/domain"
	"github.com/smallbiznis/medrate/internal/ratelimit"
	versioningdomain "github.com/smallbiznis/medrate/internal/versioning/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
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
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine       *gin.Engine
	premiumSvc   premiumdomain.Service
	appSvc       applicationdomain.Service
	rateCardSvc  ratecarddomain.Service
	addonSvc     addondomain.Service
	loadingSvc   loadingdomain.Service
	discountSvc  discountdomain.Service
	versions     versioningdomain.Guard
	quoteLimiter *ratelimit.QuoteLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Premium      premiumdomain.Service
	Applications applicationdomain.Service
	RateCards    ratecarddomain.Service
	Addons       addondomain.Service
	Loadings     loadingdomain.Service
	Discounts    discountdomain.Service
	Versions     versioningdomain.Guard
	QuoteLimiter *ratelimit.QuoteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		premiumSvc:   p.Premium,
		appSvc:       p.Applications,
		rateCardSvc:  p.RateCards,
		addonSvc:     p.Addons,
		loadingSvc:   p.Loadings,
		discountSvc:  p.Discounts,
		versions:     p.Versions,
		quoteLimiter: p.QuoteLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerCatalogRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Quotes --------
	api.POST("/quotes", QuoteRateLimit(s.quoteLimiter), s.CalculateQuote)

	// -------- Applications --------
	api.POST("/applications", s.CreateApplication)
	api.GET("/applications/:id", s.GetApplication)
	api.DELETE("/applications/:id", s.DeleteApplication)
	api.POST("/applications/:id/transitions", s.TransitionApplication)
	api.GET("/applications/:id/transitions", s.ListApplicationTransitions)
	api.PUT("/applications/:id/members/:memberId/status", s.SetMemberStatus)
}

func (s *Server) registerCatalogRoutes() {
	admin := s.engine.Group("/admin")

	// -------- Rate cards --------
	admin.POST("/rate-cards", s.CreateRateCard)
	admin.GET("/rate-cards/:id", s.GetRateCard)
	admin.PUT("/rate-cards/:id/entries", s.SyncRateCardEntries)
	admin.POST("/rate-cards/:id/activate", s.ActivateRateCard)
	admin.POST("/rate-cards/:id/resolve", s.ResolveRate)
	admin.GET("/plans/:planId/rate-card", s.GetEffectiveRateCard)
	admin.GET("/plans/:planId/rate-card/history", s.ListRateCardHistory)

	// -------- Add-ons --------
	admin.POST("/addons", s.CreateAddon)
	admin.POST("/addons/:id/rates", s.CreateAddonRate)
	admin.GET("/addons/:id/rates", s.ListAddonRates)
	admin.POST("/addons/:id/price", s.ResolveAddonPrice)
	admin.POST("/addon-rates/:id/activate", s.ActivateAddonRate)

	// -------- Underwriting rules --------
	admin.POST("/loading-rules", s.CreateLoadingRule)
	admin.GET("/loading-rules", s.ListLoadingRules)
	admin.POST("/discount-rules", s.CreateDiscountRule)
	admin.POST("/promo-codes", s.CreatePromoCode)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
