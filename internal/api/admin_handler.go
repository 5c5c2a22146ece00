package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/recipe"
	"github.com/mzollin/CocktailMixer/internal/repository"
)

// AdminHandler 操作员接口
type AdminHandler struct {
	kiosk        KioskController
	store        recipe.Store
	recipes      *repository.RecipeRepository
	servingSizes []uint32
}

// NewAdminHandler 创建处理器，recipes为空时配方只读
func NewAdminHandler(k KioskController, store recipe.Store, recipes *repository.RecipeRepository, servingSizes []uint32) *AdminHandler {
	return &AdminHandler{
		kiosk:        k,
		store:        store,
		recipes:      recipes,
		servingSizes: servingSizes,
	}
}

// PreviewRequest 出酒预览请求
type PreviewRequest struct {
	Cocktail string `json:"cocktail" binding:"required"`
	SizeML   uint32 `json:"size_ml" binding:"required,gt=0"`
}

// PreviewResponse 出酒预览
type PreviewResponse struct {
	Cocktail   string        `json:"cocktail"`
	SizeML     uint32        `json:"size_ml"`
	Doses      []recipe.Dose `json:"doses"`
	TotalGrams float64       `json:"total_g"`
}

// IngredientRequest 原料更新请求
type IngredientRequest struct {
	Density float64 `json:"density" binding:"required,gt=0"`
}

// CocktailRequest 配方更新请求
type CocktailRequest struct {
	Alcoholic bool          `json:"alcoholic"`
	Parts     []recipe.Part `json:"parts" binding:"required,min=1"`
}

// EmergencyStop 远程急停
func (h *AdminHandler) EmergencyStop(c *gin.Context) {
	h.kiosk.EmergencyStop()
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

// Preview 计算指定杯量的出酒质量，不出酒
func (h *AdminHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	rec, err := h.store.Recipe(ctx, req.Cocktail)
	if err != nil {
		respondError(c, err)
		return
	}
	densities, err := h.store.Densities(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	doses, err := recipe.Normalize(rec, float64(req.SizeML), densities)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, PreviewResponse{
		Cocktail:   rec.Name,
		SizeML:     req.SizeML,
		Doses:      doses,
		TotalGrams: recipe.TotalMass(doses),
	})
}

// PutIngredient 新增或更新原料密度
func (h *AdminHandler) PutIngredient(c *gin.Context) {
	if h.recipes == nil {
		respondError(c, apperrors.New(apperrors.ErrNotImplemented, "未配置数据库"))
		return
	}
	var req IngredientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ing, err := h.recipes.UpsertIngredient(c.Request.Context(), c.Param("name"), req.Density)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ing)
}

// PutCocktail 新增或替换配方
func (h *AdminHandler) PutCocktail(c *gin.Context) {
	if h.recipes == nil {
		respondError(c, apperrors.New(apperrors.ErrNotImplemented, "未配置数据库"))
		return
	}
	var req CocktailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cocktail, err := h.recipes.UpsertCocktail(c.Request.Context(), recipe.Recipe{
		Name:      c.Param("name"),
		Alcoholic: req.Alcoholic,
		Parts:     req.Parts,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cocktail.ToRecipe())
}

// DeleteCocktail 删除配方
func (h *AdminHandler) DeleteCocktail(c *gin.Context) {
	if h.recipes == nil {
		respondError(c, apperrors.New(apperrors.ErrNotImplemented, "未配置数据库"))
		return
	}
	if err := h.recipes.DeleteCocktail(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
