package middleware

import (
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/pkg/metrics"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/gin-gonic/gin"
)

func RateLimitMiddleware(callers *service.CallerRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 必须在 AuthMiddleware 之后使用
		caller, ok := CallerFrom(c)
		if !ok {
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "unauthorized", nil))
			c.Abort()
			return
		}

		limiter := callers.Limiter(caller.Address)
		if limiter == nil {
			c.Next()
			return
		}

		if !limiter.Allow() {
			metrics.Rejects.WithLabelValues("rate_limited").Inc()
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
