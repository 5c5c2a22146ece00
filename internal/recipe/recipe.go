// Package recipe 酒单、原料密度以及比例到出酒质量的换算
package recipe

// 酒单分组
const (
	CollectionAlcoholic    = "alcoholic"
	CollectionNonAlcoholic = "non-alcoholic"
)

// Part 配方中的一种原料及其相对比例
type Part struct {
	Ingredient string  `json:"ingredient"`
	Volume     float64 `json:"volume"`
}

// Recipe 配方，Volume 为相对比例而非绝对容量
type Recipe struct {
	Name      string `json:"name"`
	Alcoholic bool   `json:"alcoholic"`
	Parts     []Part `json:"parts"`
}

// PartsTotal 比例之和
func (r Recipe) PartsTotal() float64 {
	var total float64
	for _, p := range r.Parts {
		total += p.Volume
	}
	return total
}

// Collection 所属分组
func (r Recipe) Collection() string {
	if r.Alcoholic {
		return CollectionAlcoholic
	}
	return CollectionNonAlcoholic
}

// Ingredient 原料记录
type Ingredient struct {
	Name    string  `json:"name"`
	Density float64 `json:"density"` // g/ml
}

// IngredientProfile 原料名到密度（g/ml）的映射
type IngredientProfile map[string]float64

// Catalog 完整酒单，保持存储顺序
type Catalog struct {
	NonAlcoholic []Recipe
	Alcoholic    []Recipe
	Ingredients  []Ingredient
}

// Visible 会话可选的酒单：先无酒精，alcoholic 为真时再追加含酒精的
func (c *Catalog) Visible(alcoholic bool) []Recipe {
	out := make([]Recipe, 0, len(c.NonAlcoholic)+len(c.Alcoholic))
	out = append(out, c.NonAlcoholic...)
	if alcoholic {
		out = append(out, c.Alcoholic...)
	}
	return out
}

// Profile 生成密度表
func (c *Catalog) Profile() IngredientProfile {
	p := make(IngredientProfile, len(c.Ingredients))
	for _, ing := range c.Ingredients {
		p[ing.Name] = ing.Density
	}
	return p
}

// Find 按名称在两个分组中查找
func (c *Catalog) Find(name string) (Recipe, bool) {
	for _, r := range c.NonAlcoholic {
		if r.Name == name {
			return r, true
		}
	}
	for _, r := range c.Alcoholic {
		if r.Name == name {
			return r, true
		}
	}
	return Recipe{}, false
}
