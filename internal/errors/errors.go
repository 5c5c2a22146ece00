package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1099)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// 配置错误 (1100-1199)
	ErrConfigLoad     ErrorCode = 1100
	ErrConfigValidate ErrorCode = 1101

	// 流程错误 (2000-2099)
	ErrInvalidTransition  ErrorCode = 2000
	ErrIntentDiscarded    ErrorCode = 2001
	ErrPourInProgress     ErrorCode = 2002
	ErrInvalidServingSize ErrorCode = 2003
	ErrKioskStopped       ErrorCode = 2004

	// 配方错误 (2100-2199)
	ErrUnknownIngredient ErrorCode = 2100
	ErrEmptyRecipe       ErrorCode = 2101
	ErrInvalidRecipe     ErrorCode = 2102
	ErrCocktailNotFound  ErrorCode = 2103

	// 硬件/协议错误 (3000-3999)
	ErrSerialPortOpen     ErrorCode = 3000
	ErrSerialWrite        ErrorCode = 3001
	ErrSerialRead         ErrorCode = 3002
	ErrSerialNotConnected ErrorCode = 3003
	ErrFrameDecode        ErrorCode = 3004
	ErrFrameOverflow      ErrorCode = 3005
	ErrInvalidValue       ErrorCode = 3006
	ErrActuatorFailure    ErrorCode = 3007
	ErrActuatorBusy       ErrorCode = 3008
	ErrActuatorTimeout    ErrorCode = 3009
	ErrLinkLost           ErrorCode = 3010

	// 数据库错误 (4000-4999)
	ErrDatabaseConnect ErrorCode = 4000
	ErrDatabaseQuery   ErrorCode = 4001
	ErrDatabaseInsert  ErrorCode = 4002
	ErrDatabaseUpdate  ErrorCode = 4003
	ErrTransaction     ErrorCode = 4004

	// 认证错误 (5000-5999)
	ErrUnauthorized       ErrorCode = 5000
	ErrInvalidCredentials ErrorCode = 5001
	ErrTokenExpired       ErrorCode = 5002
	ErrTokenInvalid       ErrorCode = 5003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",

	ErrConfigLoad:     "配置加载失败",
	ErrConfigValidate: "配置验证失败",

	ErrInvalidTransition:  "当前状态不接受该操作",
	ErrIntentDiscarded:    "操作被急停丢弃",
	ErrPourInProgress:     "正在出酒",
	ErrInvalidServingSize: "无效的杯量",
	ErrKioskStopped:       "状态机已停止",

	ErrUnknownIngredient: "未知原料",
	ErrEmptyRecipe:       "配方为空",
	ErrInvalidRecipe:     "无效的配方",
	ErrCocktailNotFound:  "鸡尾酒不存在",

	ErrSerialPortOpen:     "串口打开失败",
	ErrSerialWrite:        "串口写入失败",
	ErrSerialRead:         "串口读取失败",
	ErrSerialNotConnected: "串口未连接",
	ErrFrameDecode:        "帧解析失败",
	ErrFrameOverflow:      "帧缓冲区溢出",
	ErrInvalidValue:       "无效的信号值",
	ErrActuatorFailure:    "出酒执行失败",
	ErrActuatorBusy:       "出酒装置忙",
	ErrActuatorTimeout:    "出酒超时",
	ErrLinkLost:           "硬件链路中断",

	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",
	ErrDatabaseUpdate:  "数据库更新失败",
	ErrTransaction:     "事务处理失败",

	ErrUnauthorized:       "未授权",
	ErrInvalidCredentials: "PIN错误",
	ErrTokenExpired:       "令牌已过期",
	ErrTokenInvalid:       "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"-"`
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}
	err.captureStack(2)
	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误，已是AppError时保留原错误码
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	wrapped := New(code, details...)
	wrapped.Cause = err
	if wrapped.Details == "" {
		wrapped.Details = err.Error()
	}
	return wrapped
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误链中是否有指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	for err != nil {
		if stderrors.As(err, &appErr) {
			if appErr.Code == code {
				return true
			}
			err = appErr.Cause
			continue
		}
		return false
	}
	return false
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// FromError 转换为AppError，非AppError按未知错误包装
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrUnknown)
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "CocktailMixer/internal/errors.") {
			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		// 只保留前10个栈帧
		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n", i+1, frame.Function, frame.File, frame.Line))
	}
	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam, e.Code == ErrAlreadyExists, e.Code == ErrInvalidServingSize:
		return 400
	case e.Code == ErrNotFound, e.Code == ErrCocktailNotFound:
		return 404
	case e.Code == ErrPermissionDenied:
		return 403
	case e.Code == ErrTimeout:
		return 408
	case e.Code == ErrNotImplemented:
		return 501
	case e.Code >= 2000 && e.Code <= 2099:
		return 409 // Conflict
	case e.Code >= 2100 && e.Code <= 2199:
		return 422 // Unprocessable Entity
	case e.Code >= 3000 && e.Code <= 4999:
		return 503 // Service Unavailable
	case e.Code >= 5000 && e.Code <= 5999:
		return 401
	default:
		return 500
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrTimeout,
		ErrSerialNotConnected,
		ErrSerialWrite,
		ErrActuatorBusy,
		ErrDatabaseConnect,
		ErrLinkLost:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
