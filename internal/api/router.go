package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mzollin/CocktailMixer/internal/kiosk"
	"github.com/mzollin/CocktailMixer/internal/middleware"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"github.com/mzollin/CocktailMixer/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// KioskController 状态机对外操作
type KioskController interface {
	Submit(ctx context.Context, intent kiosk.Intent) error
	Snapshot() kiosk.View
	EmergencyStop()
}

// Dependencies 路由依赖，DB相关项可为空
type Dependencies struct {
	Kiosk        KioskController
	Store        recipe.Store
	Services     *service.Services
	WebSocket    http.Handler
	DB           *gorm.DB
	ServingSizes []uint32
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	deps           Dependencies
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Dependencies, log *zap.Logger) *Router {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:         engine,
		deps:           deps,
		authMiddleware: middleware.NewAuthMiddleware(deps.Services.Auth),
		log:            log,
	}
	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	if r.deps.WebSocket != nil {
		r.engine.GET("/ws", gin.WrapH(r.deps.WebSocket))
	}

	kioskHandler := NewKioskHandler(r.deps.Kiosk, r.deps.Store)
	authHandler := NewAuthHandler(r.deps.Services.Auth)
	adminHandler := NewAdminHandler(r.deps.Kiosk, r.deps.Store, r.deps.Services.Recipes, r.deps.ServingSizes)

	v1 := r.engine.Group("/api/v1")
	{
		k := v1.Group("/kiosk")
		{
			k.GET("/state", kioskHandler.GetState)
			k.POST("/intents", kioskHandler.SubmitIntent)
			k.GET("/cocktails", kioskHandler.ListCocktails)
		}

		v1.POST("/operator/login", authHandler.Login)

		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware.RequireOperator())
		{
			admin.POST("/emergency-stop", adminHandler.EmergencyStop)
			admin.POST("/preview", adminHandler.Preview)
			admin.PUT("/ingredients/:name", adminHandler.PutIngredient)
			admin.PUT("/cocktails/:name", adminHandler.PutCocktail)
			admin.DELETE("/cocktails/:name", adminHandler.DeleteCocktail)

			if r.deps.Services.SerialLogs != nil {
				NewSerialLogAPI(r.deps.Services.SerialLogs).RegisterRoutes(admin)
			}
		}
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status": "healthy",
		"state":  r.deps.Kiosk.Snapshot().State,
	}

	if r.deps.DB != nil {
		sqlDB, err := r.deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
		resp["database"] = "ok"
	}

	c.JSON(http.StatusOK, resp)
}

// Handler 返回http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
