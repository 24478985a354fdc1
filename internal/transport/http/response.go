package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Status  string      `json:"status"`           // success / error
	Message string      `json:"message"`          // 提示信息
	Data    interface{} `json:"data,omitempty"`   // 数据载荷
	Errors  []string    `json:"errors,omitempty"` // 校验错误明细
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Success 成功响应（200）
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Status:  statusSuccess,
		Message: message,
		Data:    data,
	})
}

// Created 创建成功响应（201）
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Status:  statusSuccess,
		Message: message,
		Data:    data,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, message string, errs []string) {
	c.JSON(http.StatusBadRequest, Response{
		Status:  statusError,
		Message: message,
		Errors:  errs,
	})
}

// Unauthorized 未认证错误（401）
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Status:  statusError,
		Message: message,
	})
}

// Forbidden 无权限错误（403）
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Status:  statusError,
		Message: message,
	})
}

// NotFound 资源不存在错误（404）
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Status:  statusError,
		Message: message,
	})
}

// Conflict 资源冲突错误（409）
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Status:  statusError,
		Message: message,
	})
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Status:  statusError,
		Message: message,
	})
}
