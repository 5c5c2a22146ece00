package api

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/mzollin/CocktailMixer/internal/errors"
)

// respondError 按错误码输出统一错误响应
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, c.GetString("request_id")))
}

// badRequest 请求参数错误
func badRequest(c *gin.Context, err error) {
	respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"))
}
