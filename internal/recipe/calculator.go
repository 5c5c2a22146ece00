package recipe

import (
	"math"

	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
)

// MassResolution 出酒质量精度（克）
const MassResolution = 0.01

// Dose 单个原料的出酒量
type Dose struct {
	Ingredient string  `json:"ingredient"`
	MassGrams  float64 `json:"mass_g"`
}

// Normalize 按目标容量缩放配方，并用密度换算为克。
// 结果保持配方顺序；中间计算全程 float64，只在生成结果时按 MassResolution 取整一次。
func Normalize(r Recipe, targetML float64, densities IngredientProfile) ([]Dose, error) {
	if targetML <= 0 || math.IsNaN(targetML) || math.IsInf(targetML, 0) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "目标容量无效: %v", targetML)
	}

	for _, p := range r.Parts {
		density, ok := densities[p.Ingredient]
		if !ok {
			return nil, apperrors.New(apperrors.ErrUnknownIngredient, p.Ingredient)
		}
		if density <= 0 || math.IsNaN(density) {
			return nil, apperrors.Newf(apperrors.ErrInvalidRecipe, "原料 %s 密度无效: %v", p.Ingredient, density)
		}
		if p.Volume < 0 || math.IsNaN(p.Volume) {
			return nil, apperrors.Newf(apperrors.ErrInvalidRecipe, "原料 %s 比例无效: %v", p.Ingredient, p.Volume)
		}
	}

	total := r.PartsTotal()
	if total == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyRecipe, r.Name)
	}

	scale := targetML / total
	doses := make([]Dose, 0, len(r.Parts))
	for _, p := range r.Parts {
		mass := p.Volume * scale * densities[p.Ingredient]
		doses = append(doses, Dose{Ingredient: p.Ingredient, MassGrams: roundMass(mass)})
	}
	return doses, nil
}

// TotalMass 总质量
func TotalMass(doses []Dose) float64 {
	var total float64
	for _, d := range doses {
		total += d.MassGrams
	}
	return total
}

func roundMass(m float64) float64 {
	return math.Round(m/MassResolution) * MassResolution
}
