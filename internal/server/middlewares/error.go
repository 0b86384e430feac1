package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/ginx"
	"github.com/Ajmal023/Afghan-Topup-sub000/pkg/logger"
)

// ErrorHandler 统一错误处理中间件：panic 与未写出的 c.Errors 都转为统一响应
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf(c.Request.Context(), "[HTTP] panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ginx.Response{
					Meta: ginx.Meta{Code: http.StatusInternalServerError, Message: "internal error"},
				})
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			log.Errorf(c.Request.Context(), "[HTTP] %s %s: %v", c.Request.Method, c.Request.URL.Path, err.Err)
			ginx.InternalError(c, err.Error())
		}
	}
}
