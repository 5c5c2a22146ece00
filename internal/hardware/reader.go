package hardware

import (
	"bytes"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"go.uber.org/zap"
)

// DefaultMaxFrameBuffer 未分隔数据的默认上限
const DefaultMaxFrameBuffer = 4096

// FrameError 单行解码失败的诊断信息
type FrameError struct {
	Line []byte
	Err  error
}

func (e *FrameError) Error() string { return e.Err.Error() }
func (e *FrameError) Unwrap() error { return e.Err }

// FrameReader 把字节流切分为换行分隔的帧并解码。
// 不是并发安全的，由单个读协程使用。
type FrameReader struct {
	buf        []byte
	maxSize    int
	discarding bool // 溢出后丢弃到下一个换行符
	logger     *zap.Logger
}

// NewFrameReader 创建帧读取器，maxSize<=0 时使用默认上限
func NewFrameReader(maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameBuffer
	}
	return &FrameReader{
		maxSize: maxSize,
		logger:  logger.SerialLogger(),
	}
}

// Feed 追加新数据，返回本次得到的完整帧和诊断错误。
// 结果与数据如何分块到达无关。
func (r *FrameReader) Feed(data []byte) ([]*CommandFrame, []error) {
	var (
		frames []*CommandFrame
		errs   []error
	)

	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')

		if r.discarding {
			if idx < 0 {
				return frames, errs
			}
			r.discarding = false
			data = data[idx+1:]
			continue
		}

		if idx < 0 {
			r.buf = append(r.buf, data...)
			if len(r.buf) > r.maxSize {
				errs = append(errs, r.overflow())
			}
			return frames, errs
		}

		var line []byte
		if len(r.buf) > 0 {
			r.buf = append(r.buf, data[:idx]...)
			line = r.buf
		} else {
			line = data[:idx]
		}
		data = data[idx+1:]

		if len(line) > r.maxSize {
			r.buf = r.buf[:0]
			errs = append(errs, apperrors.Newf(apperrors.ErrFrameOverflow, "行长度 %d 超过上限 %d", len(line), r.maxSize))
			continue
		}

		frame, err := r.decodeLine(line)
		r.buf = r.buf[:0]
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

func (r *FrameReader) decodeLine(line []byte) (*CommandFrame, error) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, nil
	}
	frame, err := DecodeFrame(line)
	if err != nil {
		fe := &FrameError{Line: append([]byte(nil), line...), Err: err}
		logger.LogSerialFrame("rx", fe.Line, err)
		return nil, fe
	}
	return frame, nil
}

func (r *FrameReader) overflow() error {
	size := len(r.buf)
	r.buf = r.buf[:0]
	r.discarding = true
	r.logger.Warn("帧缓冲区溢出，丢弃数据",
		zap.Int("buffered", size),
		zap.Int("max", r.maxSize))
	return apperrors.Newf(apperrors.ErrFrameOverflow, "未分隔数据 %d 字节超过上限 %d", size, r.maxSize)
}

// Buffered 返回缓冲中未分隔的字节数
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// Reset 清空缓冲，用于重连后
func (r *FrameReader) Reset() {
	r.buf = r.buf[:0]
	r.discarding = false
}
