package recipe

import (
	"context"
	"sync"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
)

// Store 酒单只读存储
type Store interface {
	// Catalog 按存储顺序返回两个分组和全部原料
	Catalog(ctx context.Context) (*Catalog, error)
	// Recipe 按名称获取配方
	Recipe(ctx context.Context, name string) (Recipe, error)
	// Densities 原料密度表
	Densities(ctx context.Context) (IngredientProfile, error)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore 内存酒单，并发安全
type MemoryStore struct {
	mu      sync.RWMutex
	catalog Catalog
}

// NewMemoryStore 复制一份酒单创建存储
func NewMemoryStore(c Catalog) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(c)
	return s
}

// Replace 整体替换酒单
func (s *MemoryStore) Replace(c Catalog) {
	cp := Catalog{
		NonAlcoholic: cloneRecipes(c.NonAlcoholic),
		Alcoholic:    cloneRecipes(c.Alcoholic),
		Ingredients:  append([]Ingredient(nil), c.Ingredients...),
	}
	s.mu.Lock()
	s.catalog = cp
	s.mu.Unlock()
}

// Catalog 返回酒单副本
func (s *MemoryStore) Catalog(ctx context.Context) (*Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Catalog{
		NonAlcoholic: cloneRecipes(s.catalog.NonAlcoholic),
		Alcoholic:    cloneRecipes(s.catalog.Alcoholic),
		Ingredients:  append([]Ingredient(nil), s.catalog.Ingredients...),
	}, nil
}

// Recipe 按名称获取配方
func (s *MemoryStore) Recipe(ctx context.Context, name string) (Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.catalog.Find(name)
	if !ok {
		return Recipe{}, apperrors.New(apperrors.ErrCocktailNotFound, name)
	}
	return cloneRecipe(r), nil
}

// Densities 密度表
func (s *MemoryStore) Densities(ctx context.Context) (IngredientProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Profile(), nil
}

func cloneRecipe(r Recipe) Recipe {
	r.Parts = append([]Part(nil), r.Parts...)
	return r
}

func cloneRecipes(rs []Recipe) []Recipe {
	if rs == nil {
		return nil
	}
	out := make([]Recipe, len(rs))
	for i, r := range rs {
		out[i] = cloneRecipe(r)
	}
	return out
}

// DemoCatalog 内置演示酒单，用于初始化数据库和无数据库模式
func DemoCatalog() Catalog {
	return Catalog{
		NonAlcoholic: []Recipe{
			{Name: "Virgin Mojito", Parts: []Part{{"lime juice", 30}, {"sugar syrup", 20}, {"soda water", 100}}},
			{Name: "Shirley Temple", Parts: []Part{{"ginger ale", 150}, {"grenadine", 10}}},
			{Name: "Orange Sunrise", Parts: []Part{{"orange juice", 120}, {"grenadine", 10}}},
		},
		Alcoholic: []Recipe{
			{Name: "Gin Tonic", Alcoholic: true, Parts: []Part{{"gin", 100}, {"tonic", 100}}},
			{Name: "Cuba Libre", Alcoholic: true, Parts: []Part{{"rum", 50}, {"cola", 120}, {"lime juice", 10}}},
			{Name: "Screwdriver", Alcoholic: true, Parts: []Part{{"vodka", 50}, {"orange juice", 100}}},
			{Name: "Tequila Sunrise", Alcoholic: true, Parts: []Part{{"tequila", 45}, {"orange juice", 90}, {"grenadine", 15}}},
		},
		Ingredients: []Ingredient{
			{Name: "gin", Density: 0.95},
			{Name: "rum", Density: 0.95},
			{Name: "vodka", Density: 0.95},
			{Name: "tequila", Density: 0.95},
			{Name: "tonic", Density: 1.0},
			{Name: "cola", Density: 1.04},
			{Name: "soda water", Density: 1.0},
			{Name: "ginger ale", Density: 1.03},
			{Name: "orange juice", Density: 1.04},
			{Name: "lime juice", Density: 1.03},
			{Name: "sugar syrup", Density: 1.3},
			{Name: "grenadine", Density: 1.3},
		},
	}
}
