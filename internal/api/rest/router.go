package rest

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/logging"
)

const adminTokenHeader = "x-admin-token"

// NewRouter 创建gin引擎并挂载公共中间件
func NewRouter(ginMode string) *gin.Engine {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), CORSMiddleware())
	engine.NoRoute(NoRouteHandler())
	return engine
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, x-admin-token, X-Voter-Id, X-Voter-District, X-Voter-Municipality")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func NoRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logging.Log.Debugf("未匹配的请求: %s", c.Request.URL.Path)
		c.JSON(http.StatusNotFound, gin.H{"code": "PAGE_NOT_FOUND", "message": "页面不存在"})
	}
}

// AdminAuthMiddleware 校验管理令牌，未配置令牌时拒绝所有请求
func AdminAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(adminTokenHeader)
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logging.Log.Warnf("管理接口鉴权失败: %s", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "需要管理员权限"})
			return
		}
		c.Next()
	}
}

// writeError 将错误分类映射为HTTP状态码与结构化响应
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logging.Log.Errorf("处理请求 %s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"code": apperr.CodeOf(err), "message": apperr.Message(err)})
}
