package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/models"
	"github.com/mzollin/CocktailMixer/internal/service"
)

// SerialLogAPI 串口日志API
type SerialLogAPI struct {
	service *service.SerialLogService
}

// NewSerialLogAPI 创建串口日志API
func NewSerialLogAPI(service *service.SerialLogService) *SerialLogAPI {
	return &SerialLogAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由
func (api *SerialLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/serial-logs")
	{
		logs.GET("", api.QueryLogs)           // 查询日志列表
		logs.GET("/stats", api.GetStats)       // 获取统计信息
		logs.POST("/cleanup", api.CleanupLogs) // 清理旧日志
	}
}

// QueryLogs 查询日志列表
func (api *SerialLogAPI) QueryLogs(c *gin.Context) {
	query := &models.SerialLogQuery{}
	if err := c.ShouldBindQuery(query); err != nil {
		badRequest(c, err)
		return
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}
	// session_id=current 表示本次运行
	if query.SessionID == "current" {
		query.SessionID = api.service.SessionID()
	}

	logs, total, err := api.service.Query(c.Request.Context(), query)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetStats 获取统计信息
func (api *SerialLogAPI) GetStats(c *gin.Context) {
	startTime, err := parseTimeQuery(c, "start_time")
	if err != nil {
		badRequest(c, err)
		return
	}
	endTime, err := parseTimeQuery(c, "end_time")
	if err != nil {
		badRequest(c, err)
		return
	}

	stats, err := api.service.GetStats(c.Request.Context(), startTime, endTime)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":      stats,
		"session_id": api.service.SessionID(),
		"dropped":    api.service.Dropped(),
	})
}

// CleanupLogs 清理旧日志
func (api *SerialLogAPI) CleanupLogs(c *gin.Context) {
	retentionDays, err := strconv.Atoi(c.DefaultQuery("retention_days", "30"))
	if err != nil || retentionDays < 1 {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "保留天数必须大于0"))
		return
	}

	count, err := api.service.CleanupOldLogs(c.Request.Context(), retentionDays)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseUpdate))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":        count,
		"retention_days": retentionDays,
	})
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
