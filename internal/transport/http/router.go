package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailguard/backend/internal/auth"
	"mailguard/backend/internal/config"
	"mailguard/backend/internal/health"
	"mailguard/backend/internal/middleware"
	"mailguard/backend/internal/monitoring"
	"mailguard/backend/internal/service"
	"mailguard/backend/internal/storage"
)

// RouterDependencies 注入路由所需的依赖
type RouterDependencies struct {
	Config      *config.Config
	AuthService *auth.Service
	RuleService *service.RuleService
	Counter     storage.CounterStore
	Metrics     *monitoring.Metrics
	Health      *health.Checker
	Logger      *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	var onPanic func()
	if deps.Metrics != nil {
		onPanic = deps.Metrics.PanicsTotal.Inc
	}

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(log, onPanic))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.CSRFHeaderName},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	secure := deps.Config.Server.SecureCookies
	authHandler := NewAuthHandler(deps.AuthService, secure, deps.Metrics, log)
	rulesHandler := NewRulesHandler(deps.RuleService, deps.Metrics, log)

	authRequired := middleware.NewAuthRequired(deps.AuthService, log)
	csrf := middleware.NewCSRF(secure, log)

	ipLimiter := middleware.NewIPRateLimiter(
		deps.Config.RateLimit.PerIPRate,
		deps.Config.RateLimit.PerIPBurst,
		log)
	principalLimiter := middleware.NewPrincipalRateLimiter(
		deps.Counter,
		int64(deps.Config.RateLimit.PerPrincipalLimit),
		deps.Config.RateLimit.PerPrincipalWindow,
		log)
	if deps.Metrics != nil {
		ipLimiter.OnReject(func() {
			deps.Metrics.RateLimitRejectsTotal.WithLabelValues("ip").Inc()
		})
		principalLimiter.OnReject(func() {
			deps.Metrics.RateLimitRejectsTotal.WithLabelValues("principal").Inc()
		})
	}

	// 认证端点：未认证，按来源 IP 粗粒度限流
	authRoutes := router.Group("/auth")
	authRoutes.Use(ipLimiter.Handler())
	authRoutes.Use(csrf.Handler())
	{
		authRoutes.POST("/verify-plesk-session", authHandler.VerifyPleskSession)
		authRoutes.POST("/verify-mailbox", authHandler.VerifyMailbox)
		authRoutes.POST("/refresh", authHandler.Refresh)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	// 规则端点：认证 + CSRF + 按主体限流 + 审计
	ruleRoutes := router.Group("/spam-rules")
	ruleRoutes.Use(authRequired.Handler())
	ruleRoutes.Use(csrf.Handler())
	ruleRoutes.Use(principalLimiter.Handler())
	ruleRoutes.Use(middleware.Audit(log))
	{
		ruleRoutes.GET("", rulesHandler.List)
		ruleRoutes.POST("", rulesHandler.Add)
		ruleRoutes.DELETE("", rulesHandler.Remove)
		ruleRoutes.POST("/bulk", rulesHandler.Bulk)
	}

	// 运维端点
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return router
}
