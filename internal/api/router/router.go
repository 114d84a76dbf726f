package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thiagotlz/medcontrol/config"
	"github.com/thiagotlz/medcontrol/internal/api/handler"
	"github.com/thiagotlz/medcontrol/internal/api/middleware"
	"github.com/thiagotlz/medcontrol/pkg/jwt"
	"github.com/thiagotlz/medcontrol/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证，登录接口限流）
		auth := v1.Group("/auth")
		{
			auth.POST("/register", middleware.RateLimit(rdb, 10, time.Minute), h.Auth.Register)
			auth.POST("/login", middleware.RateLimit(rdb, 10, time.Minute), h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, rdb, logger))
		{
			// 认证模块（需要认证）
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.Me)

			// 药品模块
			medications := authorized.Group("/medications")
			{
				medications.POST("", h.Medication.Create)
				medications.GET("", h.Medication.List)
				medications.GET("/stats", h.Medication.Stats)
				medications.GET("/:id", h.Medication.Get)
				medications.PUT("/:id", h.Medication.Update)
				medications.PATCH("/:id/toggle", h.Medication.Toggle)
				medications.DELETE("/:id", h.Medication.Delete)
				medications.GET("/:id/doses", h.Medication.ListDoses)
			}

			// 剂量模块
			doses := authorized.Group("/doses")
			{
				doses.POST("/:id/taken", h.Medication.MarkTaken)
				doses.POST("/:id/missed", h.Medication.MarkMissed)
			}

			// 通知配置模块
			settings := authorized.Group("/settings")
			{
				settings.GET("", h.Settings.Get)
				settings.PUT("", h.Settings.Update)
				settings.GET("/status", h.Settings.Status)
				settings.POST("/test", middleware.RateLimit(rdb, 5, time.Minute), h.Settings.SendTest)
			}

			// 导出模块
			export := authorized.Group("/export")
			{
				export.GET("/history", h.Export.ExportHistory)
				export.GET("/calendar", h.Export.ExportCalendar)
			}
		}
	}

	return r
}
