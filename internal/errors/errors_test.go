package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrUnknownIngredient, "mystery")
	suite.Equal("未知原料", err.Message)
	suite.Equal("mystery", err.Details)

	err = New(ErrSerialPortOpen, "打开失败", "端口: /dev/ttyUSB0")
	suite.Equal("打开失败; 端口: /dev/ttyUSB0", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidValue, "encoder 值 %q 无效", "abc")
	suite.Equal(ErrInvalidValue, err.Code)
	suite.Equal(`encoder 值 "abc" 无效`, err.Details)
}

func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrDatabaseQuery)
	suite.Equal(ErrDatabaseQuery, wrappedErr.Code)
	suite.Equal("原始错误", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有AppError保留原始错误码
	appErr := New(ErrEmptyRecipe, "配方 x")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrEmptyRecipe, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrDatabaseConnect, "数据库 %s 连接失败", "sqlite")
	suite.Equal("数据库 sqlite 连接失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrActuatorFailure)
	suite.True(Is(err, ErrActuatorFailure))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrActuatorFailure))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	// fmt.Errorf包装后仍可识别
	wrapped := fmt.Errorf("进入出酒状态: %w", New(ErrUnknownIngredient, "mystery"))
	suite.True(Is(wrapped, ErrUnknownIngredient))

	// 嵌套AppError
	nested := New(ErrActuatorFailure).WithCause(New(ErrSerialWrite))
	suite.True(Is(nested, ErrSerialWrite))
}

func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrTokenExpired, GetCode(New(ErrTokenExpired)))
	suite.Equal(ErrFrameDecode, GetCode(fmt.Errorf("x: %w", New(ErrFrameDecode))))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "gin tonic"
	suite.Equal("[1002] 资源未找到: gin tonic", err.Error())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("写入超时")
	err := New(ErrSerialWrite).WithCause(cause)
	suite.Equal(cause, err.Unwrap())
	suite.Equal("写入超时", err.Details)

	err2 := New(ErrSerialWrite, "pour gin").WithCause(cause)
	suite.Equal("pour gin", err2.Details)
}

func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrInvalidServingSize, 400},
		{ErrCocktailNotFound, 404},
		{ErrInvalidTransition, 409},
		{ErrUnknownIngredient, 422},
		{ErrEmptyRecipe, 422},
		{ErrSerialNotConnected, 503},
		{ErrDatabaseQuery, 503},
		{ErrInvalidCredentials, 401},
		{ErrNotImplemented, 501},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		suite.Equal(tc.expected, New(tc.code).HTTPStatus(), "错误码 %d", tc.code)
	}
}

func (suite *ErrorsTestSuite) TestIsRetryable() {
	suite.True(IsRetryable(New(ErrSerialNotConnected)))
	suite.True(IsRetryable(New(ErrLinkLost)))
	suite.False(IsRetryable(New(ErrUnknownIngredient)))
	suite.False(IsRetryable(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrCocktailNotFound, "negroni")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

func (suite *ErrorsTestSuite) TestEveryCodeHasMessage() {
	for code, msg := range errorMessages {
		suite.NotEmpty(msg, "错误码 %d", code)
		suite.Equal(msg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	appErr := New(ErrTokenExpired)
	assert.Same(t, appErr, FromError(fmt.Errorf("wrapped: %w", appErr)))

	plain := FromError(errors.New("boom"))
	assert.Equal(t, ErrUnknown, plain.Code)
	assert.Equal(t, 500, plain.HTTPStatus())
}
