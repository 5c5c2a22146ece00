package database

import (
	"context"
	"fmt"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/logger"
	"github.com/mzollin/CocktailMixer/internal/models"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models 需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		// 酒单
		&models.Ingredient{},
		&models.Cocktail{},
		&models.CocktailPart{},

		// 串口诊断
		&models.SerialLog{},
	}
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库未初始化")
	}

	if dbPath := sqliteFilePath(db); dbPath != "" {
		cleanupStaleLocks(dbPath)
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return apperrors.Wrapf(err, apperrors.ErrDatabaseUpdate, "迁移 %T 失败", model)
		}
		logger.GetLogger().Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	if err := createIndexes(db); err != nil {
		return err
	}
	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建组合索引
func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		table string
		name  string
		cols  string
	}{
		{"cocktails", "idx_cocktails_menu", "alcoholic, position, id"},
		{"cocktail_parts", "idx_cocktail_parts_order", "cocktail_id, position"},
		{"serial_logs", "idx_serial_logs_session_time", "session_id, created_at"},
	}
	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.cols)
		if err := db.Exec(sql).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx.name), zap.Error(err))
			return apperrors.Wrapf(err, apperrors.ErrDatabaseUpdate, "创建索引 %s 失败", idx.name)
		}
	}
	return nil
}

// Seed 数据库无酒单时写入初始酒单，已有数据时不做任何修改
func Seed(ctx context.Context, db *gorm.DB, catalog recipe.Catalog) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Cocktail{}).Count(&count).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "统计酒单失败")
	}
	if count > 0 {
		logger.GetLogger().Debug("酒单已存在，跳过初始化", zap.Int64("cocktails", count))
		return nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ing := range catalog.Ingredients {
			row := models.Ingredient{Name: ing.Name, Density: ing.Density}
			if err := tx.Where(models.Ingredient{Name: ing.Name}).FirstOrCreate(&row).Error; err != nil {
				return err
			}
		}
		position := 0
		for _, list := range [][]recipe.Recipe{catalog.NonAlcoholic, catalog.Alcoholic} {
			for _, r := range list {
				if err := tx.Create(models.CocktailFromRecipe(r, position)).Error; err != nil {
					return err
				}
				position++
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTransaction, "写入初始酒单失败")
	}

	logger.Info("初始酒单已写入",
		zap.Int("cocktails", len(catalog.NonAlcoholic)+len(catalog.Alcoholic)),
		zap.Int("ingredients", len(catalog.Ingredients)))
	return nil
}

// DropAllTables 删除所有表（测试和重置用）
func DropAllTables(db *gorm.DB) error {
	all := Models()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrDatabaseUpdate, "删除表 %T 失败", all[i])
		}
	}
	return nil
}
