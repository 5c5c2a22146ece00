package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mzollin/CocktailMixer/internal/models"
	"gorm.io/gorm"
)

// SerialLogRepository 串口日志仓库
type SerialLogRepository struct {
	*BaseRepo
}

// NewSerialLogRepository 创建串口日志仓库
func NewSerialLogRepository(db *gorm.DB) *SerialLogRepository {
	return &SerialLogRepository{BaseRepo: NewBaseRepo(db)}
}

// Create 创建日志记录
func (r *SerialLogRepository) Create(ctx context.Context, log *models.SerialLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *SerialLogRepository) CreateBatch(ctx context.Context, logs []*models.SerialLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// Query 查询日志，返回当前页和总数
func (r *SerialLogRepository) Query(ctx context.Context, query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.SerialLog{})

	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Command != "" {
		db = db.Where("command = ?", query.Command)
	}
	if query.SignalID != "" {
		db = db.Where("signal_id = ?", query.SignalID)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.ErrorsOnly {
		db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order("created_at DESC, id DESC")
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.SerialLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// GetStats 获取统计信息
func (r *SerialLogRepository) GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	scoped := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.SerialLog{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	stats := &models.SerialLogStats{}
	if err := scoped().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("direction = ?", models.DirectionTx).Count(&stats.TotalTx).Error; err != nil {
		return nil, err
	}
	stats.TotalRx = stats.TotalCount - stats.TotalTx
	if err := scoped().Where("error_msg IS NOT NULL AND error_msg != ''").Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteOldLogs 删除旧日志
func (r *SerialLogRepository) DeleteOldLogs(ctx context.Context, beforeTime time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", beforeTime).Delete(&models.SerialLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *SerialLogRepository) CleanupLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	return r.DeleteOldLogs(ctx, time.Now().AddDate(0, 0, -retentionDays))
}
