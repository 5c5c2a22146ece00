package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/service"
	"github.com/mzollin/CocktailMixer/internal/utils"
)

// 上下文键
const (
	ContextRole      = "role"
	ContextSessionID = "sessionID"
	ContextToken     = "token"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService service.AuthService
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(authService service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// RequireOperator 需要操作员令牌
func (m *AuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			abortWith(c, apperrors.New(apperrors.ErrUnauthorized, "缺少认证令牌"))
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abortWith(c, err)
			return
		}
		if claims.Role != utils.RoleOperator {
			abortWith(c, apperrors.New(apperrors.ErrPermissionDenied))
			return
		}

		c.Set(ContextRole, claims.Role)
		c.Set(ContextSessionID, claims.SessionID)
		c.Set(ContextToken, token)
		c.Next()
	}
}

func abortWith(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	status := appErr.HTTPStatus()
	if status == http.StatusInternalServerError {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, apperrors.NewErrorResponse(appErr, c.GetString("request_id")))
}

// extractToken 从请求中提取令牌
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	// Authorization: Bearer <token>
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.SplitN(bearerToken, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}

	return ""
}

// GetSessionID 从上下文获取会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	if sessionID, exists := c.Get(ContextSessionID); exists {
		if id, ok := sessionID.(string); ok {
			return id, true
		}
	}
	return "", false
}

// IsOperator 检查是否已通过操作员认证
func IsOperator(c *gin.Context) bool {
	role, exists := c.Get(ContextRole)
	return exists && role == utils.RoleOperator
}
