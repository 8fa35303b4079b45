package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// success 统一成功响应
func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "OK",
		"message": "success",
		"data":    data,
	})
}

// errorWithStatus 统一错误响应
func errorWithStatus(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
