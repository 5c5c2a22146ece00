package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
	"github.com/mzollin/CocktailMixer/internal/kiosk"
	"github.com/mzollin/CocktailMixer/internal/recipe"
)

// KioskHandler 显示层HTTP接口
type KioskHandler struct {
	kiosk KioskController
	store recipe.Store
}

// NewKioskHandler 创建处理器
func NewKioskHandler(k KioskController, store recipe.Store) *KioskHandler {
	return &KioskHandler{kiosk: k, store: store}
}

// GetState 当前视图
func (h *KioskHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.kiosk.Snapshot())
}

// SubmitIntent 提交意图，处理完成后返回新视图
func (h *KioskHandler) SubmitIntent(c *gin.Context) {
	var intent kiosk.Intent
	if err := c.ShouldBindJSON(&intent); err != nil {
		badRequest(c, err)
		return
	}
	if intent.Type == "" {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "缺少type字段"))
		return
	}

	if err := h.kiosk.Submit(c.Request.Context(), intent); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.kiosk.Snapshot())
}

// ListCocktails 可选鸡尾酒列表，alcoholic=true时包含含酒精饮品
func (h *KioskHandler) ListCocktails(c *gin.Context) {
	alcoholic := false
	if v := c.Query("alcoholic"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		alcoholic = b
	}

	catalog, err := h.store.Catalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	cocktails := catalog.Visible(alcoholic)
	c.JSON(http.StatusOK, gin.H{
		"data":  cocktails,
		"count": len(cocktails),
	})
}
