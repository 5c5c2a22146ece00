package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/utils"
	"go.uber.org/zap"
)

const (
	maxLoginFailures = 5
	loginLockout     = time.Minute
)

// authService 操作员认证服务实现
type authService struct {
	pinHash    string
	jwtManager *utils.JWTManager
	log        *zap.Logger

	mu       sync.Mutex
	failures int
	lockedTo time.Time
	now      func() time.Time
}

// NewAuthService 创建认证服务。pinHash 为空时禁止登录。
func NewAuthService(pinHash string, jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	return &authService{
		pinHash:    strings.TrimSpace(pinHash),
		jwtManager: jwtManager,
		log:        log,
		now:        time.Now,
	}
}

// Login 校验PIN，连续失败后短暂锁定
func (s *authService) Login(ctx context.Context, pin string) (*AuthResponse, error) {
	if s.pinHash == "" {
		return nil, apperrors.New(apperrors.ErrPermissionDenied, "未配置操作员PIN")
	}

	s.mu.Lock()
	if s.now().Before(s.lockedTo) {
		s.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrPermissionDenied, "登录失败次数过多，请稍后再试")
	}
	s.mu.Unlock()

	ok, err := utils.VerifyPIN(pin, s.pinHash)
	if err != nil {
		s.log.Error("操作员PIN哈希无效", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrConfigValidate, "操作员PIN哈希无效")
	}
	if !ok {
		s.recordFailure()
		return nil, apperrors.New(apperrors.ErrInvalidCredentials, "PIN错误")
	}

	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()

	sessionID := uuid.NewString()
	token, expiresAt, err := s.jwtManager.GenerateToken(utils.RoleOperator, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "签发令牌失败")
	}
	s.log.Info("操作员登录", zap.String("session_id", sessionID))

	return &AuthResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		Role:      utils.RoleOperator,
	}, nil
}

func (s *authService) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	if s.failures >= maxLoginFailures {
		s.lockedTo = s.now().Add(loginLockout)
		s.failures = 0
		s.log.Warn("操作员登录已锁定", zap.Duration("lockout", loginLockout))
	}
}

// ValidateToken 校验令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*utils.OperatorClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired, "令牌已过期")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid, "无效的令牌")
	}
	if claims.Role != utils.RoleOperator {
		return nil, apperrors.New(apperrors.ErrPermissionDenied, "权限不足")
	}
	return claims, nil
}
