package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newGatedRouter(mode *ReadOnlyMode) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler())
	g := r.Group("/v1", ReadOnlyMiddleware(mode, "/v1/admin/read-only"))
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	g.GET("/orders/:id", ok)
	g.POST("/purchases", ok)
	g.PUT("/admin/read-only", ok)
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader("{}")))
	return w
}

func TestReadOnlyMiddleware(t *testing.T) {
	mode := NewReadOnlyMode(false)
	r := newGatedRouter(mode)

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/v1/purchases").Code)

	assert.True(t, mode.Set(true))
	assert.False(t, mode.Set(true))

	w := serve(r, http.MethodPost, "/v1/purchases")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	var body apperrors.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrReadOnly, body.Type)

	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/v1/orders/1").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPut, "/v1/admin/read-only").Code)

	mode.Set(false)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/v1/purchases").Code)
}

func TestErrorHandlerWrapsUnknownErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/boom", func(c *gin.Context) { c.Error(errors.New("db exploded")) })
	r.GET("/bad", func(c *gin.Context) {
		c.Error(apperrors.NewInvalidRequest("bad items").WithDetail("size", "7"))
	})

	w := serve(r, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db exploded")

	w = serve(r, http.MethodGet, "/bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body apperrors.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "7", body.Details["size"])
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(502))
	assert.Equal(t, "other", statusClass(0))
}

func TestIdempotencyMiddleware(t *testing.T) {
	store := NewInMemIdempotencyStore()
	settled := 0
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(func(c *gin.Context) {
		c.Set(ContextCallerKey, &model.Caller{Address: common.HexToAddress("0xb0b")})
	})
	r.Use(IdempotencyMiddleware(store))
	r.POST("/v1/purchases", func(c *gin.Context) {
		var req struct {
			OrderID string `json:"order_id"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.OrderID == "bad" {
			c.Error(apperrors.NewInvalidRequest("bad order"))
			return
		}
		settled++
		c.JSON(http.StatusOK, gin.H{"order_id": req.OrderID, "n": settled})
	})

	post := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/purchases", strings.NewReader(body))
		req.Header.Set(HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := post("k1", `{"order_id":"1"}`)
	require.Equal(t, http.StatusOK, first.Code)

	again := post("k1", `{"order_id":"1"}`)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replay"))
	assert.Equal(t, first.Body.String(), again.Body.String())
	assert.Equal(t, 1, settled)

	w := post("k1", `{"order_id":"2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, settled)

	// rejected requests release the key
	assert.Equal(t, http.StatusBadRequest, post("k2", `{"order_id":"bad"}`).Code)
	assert.Equal(t, http.StatusOK, post("k2", `{"order_id":"3"}`).Code)
	assert.Equal(t, 2, settled)
}

func TestInMemIdempotencyInFlight(t *testing.T) {
	store := NewInMemIdempotencyStore()
	_, hit := store.GetOrLock("k", "0x01")
	require.False(t, hit)

	rec, hit := store.GetOrLock("k", "0x01")
	require.True(t, hit)
	assert.True(t, rec.Processing)

	store.Unlock("k")
	_, hit = store.GetOrLock("k", "0x01")
	assert.False(t, hit)
}
