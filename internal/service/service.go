package service

import (
	"time"

	"github.com/mzollin/CocktailMixer/internal/config"
	"github.com/mzollin/CocktailMixer/internal/repository"
	"github.com/mzollin/CocktailMixer/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Auth       AuthService
	Recipes    *repository.RecipeRepository
	SerialLogs *SerialLogService
}

// NewServices 创建服务集合；db 为空时只有认证服务可用
func NewServices(db *gorm.DB, cfg *config.Config, log *zap.Logger) *Services {
	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour,
	)

	s := &Services{
		Auth: NewAuthService(cfg.Security.OperatorPINHash, jwtManager, log),
	}
	if db != nil {
		s.Recipes = repository.NewRecipeRepository(db)
		if cfg.Serial.LogFrames {
			s.SerialLogs = NewSerialLogService(db, SerialLogOptions{})
		}
	}
	return s
}

// Close 释放后台资源
func (s *Services) Close() {
	if s.SerialLogs != nil {
		s.SerialLogs.Close()
	}
}
