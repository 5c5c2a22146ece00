package service

import (
	"context"
	"time"

	"github.com/mzollin/CocktailMixer/internal/utils"
)

// AuthService 操作员认证服务接口
type AuthService interface {
	// Login 校验PIN并签发令牌
	Login(ctx context.Context, pin string) (*AuthResponse, error)
	// ValidateToken 校验令牌
	ValidateToken(ctx context.Context, token string) (*utils.OperatorClaims, error)
}

// LoginRequest 登录请求
type LoginRequest struct {
	PIN string `json:"pin" binding:"required"`
}

// AuthResponse 登录响应
type AuthResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}
