package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "sudooom.im.client/shared/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// 错误码常量（使用 shared/errors 包的定义）
const (
	CodeSuccess       = appErrors.CodeSuccess
	CodeInvalidParams = appErrors.CodeInvalidParams
	CodeServerError   = appErrors.CodeServerError
)

var codeMessages = map[int]string{
	CodeSuccess:       "success",
	CodeInvalidParams: "参数校验失败",
	CodeServerError:   "客户端内部错误",
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	message := codeMessages[code]
	if message == "" {
		message = "unknown error"
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithMsg 自定义错误消息
func ErrorWithMsg(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorFromAppError 从 AppError 生成错误响应
func ErrorFromAppError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, Response{
		Code:    appErrors.GetCode(err),
		Message: appErrors.GetMessage(err),
	})
}
