package models

import (
	"time"

	"github.com/mzollin/CocktailMixer/internal/recipe"
)

// Ingredient 原料及密度（g/ml）
type Ingredient struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name    string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	Density float64 `gorm:"not null" json:"density"`
}

// TableName 指定表名
func (Ingredient) TableName() string {
	return "ingredients"
}

// Cocktail 鸡尾酒配方，Position 决定菜单顺序
type Cocktail struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Alcoholic bool           `gorm:"index;not null;default:false" json:"alcoholic"`
	Position  int            `gorm:"index;default:0" json:"position"`
	Parts     []CocktailPart `gorm:"foreignKey:CocktailID;constraint:OnDelete:CASCADE" json:"parts"`
}

// TableName 指定表名
func (Cocktail) TableName() string {
	return "cocktails"
}

// CocktailPart 配方中的一种原料（相对体积）
type CocktailPart struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	CocktailID uint    `gorm:"index;not null" json:"-"`
	Position   int     `gorm:"default:0" json:"-"`
	Ingredient string  `gorm:"type:varchar(64);not null" json:"ingredient"`
	Volume     float64 `gorm:"not null" json:"volume"`
}

// TableName 指定表名
func (CocktailPart) TableName() string {
	return "cocktail_parts"
}

// ToRecipe 转换为计算用的配方，Parts 需已按 Position 排序
func (c *Cocktail) ToRecipe() recipe.Recipe {
	parts := make([]recipe.Part, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = recipe.Part{Ingredient: p.Ingredient, Volume: p.Volume}
	}
	return recipe.Recipe{Name: c.Name, Alcoholic: c.Alcoholic, Parts: parts}
}

// CocktailFromRecipe 由配方构造模型
func CocktailFromRecipe(r recipe.Recipe, position int) *Cocktail {
	c := &Cocktail{Name: r.Name, Alcoholic: r.Alcoholic, Position: position}
	for i, p := range r.Parts {
		c.Parts = append(c.Parts, CocktailPart{Position: i, Ingredient: p.Ingredient, Volume: p.Volume})
	}
	return c
}
