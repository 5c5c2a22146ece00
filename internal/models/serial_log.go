package models

import (
	"time"

	"gorm.io/gorm"
)

// 帧方向
const (
	DirectionRx = "rx"
	DirectionTx = "tx"
)

// SerialLogLevel 日志级别
type SerialLogLevel string

const (
	SerialLogLevelInfo  SerialLogLevel = "INFO"
	SerialLogLevelError SerialLogLevel = "ERROR"
)

// SerialLog 串口帧诊断记录
type SerialLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	SessionID string         `gorm:"type:varchar(64);index" json:"session_id"`
	Direction string         `gorm:"type:varchar(4);index;not null" json:"direction"` // rx/tx
	Level     SerialLogLevel `gorm:"type:varchar(10);default:INFO" json:"level"`

	// 解码成功时填写
	Command  string `gorm:"type:varchar(16);index" json:"command,omitempty"`
	SignalID string `gorm:"type:varchar(64);index" json:"signal_id,omitempty"`
	Value    string `gorm:"type:varchar(255)" json:"value,omitempty"`

	RawData    string `gorm:"type:text" json:"raw_data,omitempty"`
	BytesCount int    `gorm:"default:0" json:"bytes_count"`
	ErrorMsg   string `gorm:"type:text" json:"error_msg,omitempty"`

	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix毫秒
}

// TableName 指定表名
func (SerialLog) TableName() string {
	return "serial_logs"
}

// BeforeCreate 创建前的钩子
func (s *SerialLog) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Timestamp == 0 {
		s.Timestamp = s.CreatedAt.UnixMilli()
	}
	return nil
}

// SerialLogQuery 查询参数
type SerialLogQuery struct {
	Direction  string     `form:"direction" json:"direction,omitempty"`
	Command    string     `form:"command" json:"command,omitempty"`
	SignalID   string     `form:"signal_id" json:"signal_id,omitempty"`
	SessionID  string     `form:"session_id" json:"session_id,omitempty"`
	ErrorsOnly bool       `form:"errors_only" json:"errors_only,omitempty"`
	StartTime  *time.Time `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00" json:"start_time,omitempty"`
	EndTime    *time.Time `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00" json:"end_time,omitempty"`
	Limit      int        `form:"limit" json:"limit,omitempty"`
	Offset     int        `form:"offset" json:"offset,omitempty"`
}

// SerialLogStats 统计信息
type SerialLogStats struct {
	TotalCount  int64 `json:"total_count"`
	TotalRx     int64 `json:"total_rx"`
	TotalTx     int64 `json:"total_tx"`
	TotalErrors int64 `json:"total_errors"`
}
