package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mzollin/CocktailMixer/internal/hardware"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"github.com/mzollin/CocktailMixer/internal/models"
	"github.com/mzollin/CocktailMixer/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxRawLength = 1024

// SerialLogOptions 批量写入参数
type SerialLogOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

func (o *SerialLogOptions) normalize() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1000
	}
}

// SerialLogService 串口帧诊断服务，异步批量写库
type SerialLogService struct {
	repo      *repository.SerialLogRepository
	logger    *zap.Logger
	opts      SerialLogOptions
	buffer    []*models.SerialLog
	bufferCh  chan *models.SerialLog
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	sessionID string
	dropped   atomic.Uint64
}

var _ hardware.FrameRecorder = (*SerialLogService)(nil)

// NewSerialLogService 创建串口日志服务并启动后台写入
func NewSerialLogService(db *gorm.DB, opts SerialLogOptions) *SerialLogService {
	opts.normalize()
	s := &SerialLogService{
		repo:      repository.NewSerialLogRepository(db),
		logger:    logger.SerialLogger(),
		opts:      opts,
		buffer:    make([]*models.SerialLog, 0, opts.BatchSize),
		bufferCh:  make(chan *models.SerialLog, opts.BufferSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sessionID: uuid.New().String(),
	}
	go s.backgroundWriter()
	return s
}

// SessionID 本次运行的会话ID
func (s *SerialLogService) SessionID() string {
	return s.sessionID
}

// Dropped 因缓冲区满丢弃的记录数
func (s *SerialLogService) Dropped() uint64 {
	return s.dropped.Load()
}

// RecordFrame 记录一帧，在串口读协程中调用，不阻塞
func (s *SerialLogService) RecordFrame(direction string, raw []byte, frame *hardware.CommandFrame, err error) {
	now := time.Now()
	log := &models.SerialLog{
		SessionID:  s.sessionID,
		Direction:  direction,
		Level:      models.SerialLogLevelInfo,
		BytesCount: len(raw),
		CreatedAt:  now,
		Timestamp:  now.UnixMilli(),
	}
	if len(raw) > maxRawLength {
		log.RawData = string(raw[:maxRawLength])
	} else {
		log.RawData = string(raw)
	}
	if frame != nil {
		log.Command = frame.Verb
		log.SignalID = frame.ID
		log.Value = frame.Value
	}
	if err != nil {
		log.Level = models.SerialLogLevelError
		log.ErrorMsg = err.Error()
	}

	select {
	case s.bufferCh <- log:
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.logger.Warn("串口日志缓冲区满，丢弃日志", zap.Uint64("dropped", s.dropped.Load()))
		}
	}
}

// backgroundWriter 后台写入协程
func (s *SerialLogService) backgroundWriter() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			if len(s.buffer) >= s.opts.BatchSize {
				s.flushBuffer()
			}
		case <-ticker.C:
			s.flushBuffer()
		case <-s.stopCh:
			// 写入剩余日志
			for {
				select {
				case log := <-s.bufferCh:
					s.buffer = append(s.buffer, log)
				default:
					s.flushBuffer()
					return
				}
			}
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *SerialLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.repo.CreateBatch(ctx, s.buffer); err != nil {
		s.logger.Error("批量写入串口日志失败", zap.Error(err), zap.Int("count", len(s.buffer)))
	} else {
		s.logger.Debug("批量写入串口日志成功", zap.Int("count", len(s.buffer)))
	}
	s.buffer = make([]*models.SerialLog, 0, s.opts.BatchSize)
}

// Query 查询日志
func (s *SerialLogService) Query(ctx context.Context, query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	return s.repo.Query(ctx, query)
}

// GetStats 获取统计信息
func (s *SerialLogService) GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	return s.repo.GetStats(ctx, startTime, endTime)
}

// CleanupOldLogs 清理旧日志
func (s *SerialLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(ctx, retentionDays)
}

// Close 停止后台写入并等待剩余日志落库
func (s *SerialLogService) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
