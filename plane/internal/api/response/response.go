package response

import (
	"net/http"

	"sashosting/plane/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/* ContentTypeJSON REST 响应类型 */
const ContentTypeJSON = "application/json; charset=UTF-8"

/* ErrorData 错误附加数据 */
type ErrorData struct {
	Status int `json:"status"`
}

/*
ErrorBody REST 错误响应
格式：{"code": "...", "message": "...", "data": {"status": N}}
*/
type ErrorBody struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

/* GinError 写入错误响应并终止后续处理 */
func GinError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:    code,
		Message: message,
		Data:    ErrorData{Status: status},
	})
}

/* GinSuccess 写入 200 JSON */
func GinSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

/* GinRaw 写入已序列化的 JSON（缓存命中时原样返回） */
func GinRaw(c *gin.Context, body []byte) {
	c.Data(http.StatusOK, ContentTypeJSON, body)
}

/* GinBadRequest 400 */
func GinBadRequest(c *gin.Context, code, message string) {
	GinError(c, http.StatusBadRequest, code, message)
}

/* GinUnauthorized 401 */
func GinUnauthorized(c *gin.Context, code, message string) {
	GinError(c, http.StatusUnauthorized, code, message)
}

/* GinForbidden 403 */
func GinForbidden(c *gin.Context, code, message string) {
	GinError(c, http.StatusForbidden, code, message)
}

/* GinNotFound 404 */
func GinNotFound(c *gin.Context, code, message string) {
	GinError(c, http.StatusNotFound, code, message)
}

/* GinTooManyRequests 429 */
func GinTooManyRequests(c *gin.Context, code, message string) {
	GinError(c, http.StatusTooManyRequests, code, message)
}

/*
GinInternalError 500
功能：底层错误只写日志，响应中只出现安全的提示文字
*/
func GinInternalError(c *gin.Context, code, message string, err error) {
	if err != nil {
		zap.L().Error("请求处理失败",
			zap.String("code", code),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	GinError(c, http.StatusInternalServerError, code, message)
}

/*
FromError 按错误类型写入响应
功能：业务错误按其状态码与 code 输出，其余错误一律视为内部错误
*/
func FromError(c *gin.Context, err error, fallbackCode, fallbackMessage string) {
	if ae, ok := service.AsAPIError(err); ok {
		GinError(c, ae.Status, ae.Code, ae.Message)
		return
	}
	GinInternalError(c, fallbackCode, fallbackMessage, err)
}
