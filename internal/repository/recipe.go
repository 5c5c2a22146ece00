package repository

import (
	"context"
	"errors"
	"math"
	"strings"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/models"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecipeRepository 酒单仓库，实现 recipe.Store
type RecipeRepository struct {
	*BaseRepo
}

var _ recipe.Store = (*RecipeRepository)(nil)

// NewRecipeRepository 创建酒单仓库
func NewRecipeRepository(db *gorm.DB) *RecipeRepository {
	return &RecipeRepository{BaseRepo: NewBaseRepo(db)}
}

func orderedParts(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

// Catalog 按菜单顺序返回全部酒单和原料
func (r *RecipeRepository) Catalog(ctx context.Context) (*recipe.Catalog, error) {
	var cocktails []models.Cocktail
	err := r.db.WithContext(ctx).
		Preload("Parts", orderedParts).
		Order("position ASC, id ASC").
		Find(&cocktails).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询酒单失败")
	}

	var ingredients []models.Ingredient
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&ingredients).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询原料失败")
	}

	c := &recipe.Catalog{}
	for i := range cocktails {
		rec := cocktails[i].ToRecipe()
		if rec.Alcoholic {
			c.Alcoholic = append(c.Alcoholic, rec)
		} else {
			c.NonAlcoholic = append(c.NonAlcoholic, rec)
		}
	}
	for _, ing := range ingredients {
		c.Ingredients = append(c.Ingredients, recipe.Ingredient{Name: ing.Name, Density: ing.Density})
	}
	return c, nil
}

// Recipe 按名称查询配方
func (r *RecipeRepository) Recipe(ctx context.Context, name string) (recipe.Recipe, error) {
	var c models.Cocktail
	err := r.db.WithContext(ctx).
		Preload("Parts", orderedParts).
		Where("name = ?", name).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return recipe.Recipe{}, apperrors.New(apperrors.ErrCocktailNotFound, name)
	}
	if err != nil {
		return recipe.Recipe{}, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询配方失败")
	}
	return c.ToRecipe(), nil
}

// Densities 返回原料密度表
func (r *RecipeRepository) Densities(ctx context.Context) (recipe.IngredientProfile, error) {
	var ingredients []models.Ingredient
	if err := r.db.WithContext(ctx).Find(&ingredients).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "查询原料失败")
	}
	p := make(recipe.IngredientProfile, len(ingredients))
	for _, ing := range ingredients {
		p[ing.Name] = ing.Density
	}
	return p, nil
}

// UpsertIngredient 新增或更新原料密度
func (r *RecipeRepository) UpsertIngredient(ctx context.Context, name string, density float64) (*models.Ingredient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "原料名称不能为空")
	}
	if density <= 0 || math.IsNaN(density) || math.IsInf(density, 0) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "原料 %s 密度无效: %v", name, density)
	}

	ing := &models.Ingredient{Name: name, Density: density}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"density", "updated_at"}),
	}).Create(ing).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "保存原料失败")
	}
	return ing, nil
}

// UpsertCocktail 新增或替换配方。新配方排在菜单末尾，已有配方保持原位置。
// 所有原料必须已存在。
func (r *RecipeRepository) UpsertCocktail(ctx context.Context, rec recipe.Recipe) (*models.Cocktail, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "配方名称不能为空")
	}
	if len(rec.Parts) == 0 || rec.PartsTotal() <= 0 {
		return nil, apperrors.New(apperrors.ErrEmptyRecipe, rec.Name)
	}
	for _, p := range rec.Parts {
		if p.Volume < 0 || math.IsNaN(p.Volume) {
			return nil, apperrors.Newf(apperrors.ErrInvalidRecipe, "原料 %s 比例无效: %v", p.Ingredient, p.Volume)
		}
	}

	var saved *models.Cocktail
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		known, err := r.ingredientNames(tx)
		if err != nil {
			return err
		}
		for _, p := range rec.Parts {
			if _, ok := known[p.Ingredient]; !ok {
				return apperrors.New(apperrors.ErrUnknownIngredient, p.Ingredient)
			}
		}

		var existing models.Cocktail
		err = tx.Where("name = ?", rec.Name).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			var maxPos struct{ Max *int }
			if err := tx.Model(&models.Cocktail{}).Select("MAX(position) AS max").Scan(&maxPos).Error; err != nil {
				return err
			}
			position := 0
			if maxPos.Max != nil {
				position = *maxPos.Max + 1
			}
			saved = models.CocktailFromRecipe(rec, position)
			return tx.Create(saved).Error
		case err != nil:
			return err
		}

		if err := tx.Where("cocktail_id = ?", existing.ID).Delete(&models.CocktailPart{}).Error; err != nil {
			return err
		}
		saved = models.CocktailFromRecipe(rec, existing.Position)
		saved.ID = existing.ID
		saved.CreatedAt = existing.CreatedAt
		for i := range saved.Parts {
			saved.Parts[i].CocktailID = existing.ID
		}
		if err := tx.Model(&existing).Updates(map[string]interface{}{"alcoholic": rec.Alcoholic}).Error; err != nil {
			return err
		}
		if len(saved.Parts) > 0 {
			return tx.Create(&saved.Parts).Error
		}
		return nil
	})
	if err != nil {
		return nil, transactionError(err, "保存配方失败")
	}
	return saved, nil
}

// DeleteCocktail 删除配方
func (r *RecipeRepository) DeleteCocktail(ctx context.Context, name string) error {
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		var c models.Cocktail
		if err := tx.Where("name = ?", name).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.New(apperrors.ErrCocktailNotFound, name)
			}
			return err
		}
		if err := tx.Where("cocktail_id = ?", c.ID).Delete(&models.CocktailPart{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	})
	if err != nil {
		return transactionError(err, "删除配方失败")
	}
	return nil
}

// transactionError 事务内返回的业务错误原样透出（含被包装的），其余归为事务错误
func transactionError(err error, message string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Wrap(err, apperrors.ErrTransaction, message)
}

func (r *RecipeRepository) ingredientNames(tx *gorm.DB) (map[string]struct{}, error) {
	var names []string
	if err := tx.Model(&models.Ingredient{}).Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}
