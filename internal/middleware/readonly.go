package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/GoPolymarket/itemsale/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ReadOnlyMode is the maintenance switch. It starts from server.read_only and
// can be flipped by the owner at runtime.
type ReadOnlyMode struct {
	on atomic.Bool
}

func NewReadOnlyMode(enabled bool) *ReadOnlyMode {
	m := &ReadOnlyMode{}
	m.on.Store(enabled)
	return m
}

func (m *ReadOnlyMode) Enabled() bool { return m != nil && m.on.Load() }

// Set returns true when the mode actually changed.
func (m *ReadOnlyMode) Set(enabled bool) bool {
	changed := m.on.Swap(enabled) != enabled
	if changed {
		logger.Warn("read-only mode changed", "enabled", enabled)
	}
	return changed
}

// ReadOnlyMiddleware refuses purchases and admin writes while maintenance is
// on. Routes listed in exempt (the switch itself) always pass.
func ReadOnlyMiddleware(mode *ReadOnlyMode, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(exempt))
	for _, route := range exempt {
		skip[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if !mode.Enabled() {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if _, ok := skip[c.FullPath()]; ok {
			c.Next()
			return
		}
		c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
		c.Abort()
	}
}
