package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/pkg/response"
)

// Health returns a status payload useful for readiness checks. The database
// is probed on every call since the service is useless without it.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "ok"
		httpStatus := http.StatusOK

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(requestContext(c))
		}
		if err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		response.Success(c, httpStatus, gin.H{"status": status})
	}
}
