package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware разрешает запросы из браузера
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// readOnlyMiddleware отклоняет изменяющие запросы, если сервер запущен только на чтение
func (rs *RestServer) readOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rs.readOnly {
			c.JSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Сервер запущен в режиме только для чтения",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
