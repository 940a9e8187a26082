package middleware

import (
	"errors"
	"strconv"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error as an AppError body. Settlement
// rejections keep their details so buyers can see the offending values.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, "internal error", err)
		}

		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"code", appErr.Type,
			"status", appErr.HTTPStatus,
			"client_ip", c.ClientIP(),
		}
		if v, ok := c.Get(ContextAuditLog); ok {
			if entry, ok := v.(*model.AuditLog); ok {
				fields = append(fields, "request_id", entry.ID)
			}
		}
		if caller, ok := CallerFrom(c); ok {
			fields = append(fields, "caller", caller.ID())
		}
		for k, v := range appErr.Details {
			fields = append(fields, "detail_"+k, v)
		}

		switch {
		case appErr.Type == apperrors.ErrReadOnly:
			c.Header("Retry-After", strconv.Itoa(maintenanceRetrySeconds))
			logger.Debug(appErr.Message, fields...)
		case appErr.Type == apperrors.ErrRateLimited:
			logger.Debug(appErr.Message, fields...)
		case appErr.HTTPStatus >= 500:
			logger.LogError(c.Request.Context(), appErr, "request failed", fields...)
		default:
			logger.Warn(appErr.Message, fields...)
		}

		c.JSON(appErr.HTTPStatus, appErr)
	}
}

const maintenanceRetrySeconds = 30
