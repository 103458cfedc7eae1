package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess            = 0
	CodeParamError         = 1000
	CodeResourceNotFound   = 1003
	CodeServerError        = 5000
	CodeServiceUnavailable = 5003
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:            "success",
	CodeParamError:         "参数错误",
	CodeResourceNotFound:   "资源不存在",
	CodeServerError:        "服务器内部错误",
	CodeServiceUnavailable: "服务不可用",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// UnavailableError 依赖的组件（如 Redis）未启用
func UnavailableError(c *gin.Context, message string) {
	Error(c, CodeServiceUnavailable, message)
}
