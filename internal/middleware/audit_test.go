package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactAuditBody(t *testing.T) {
	t.Run("purchase signatures are masked", func(t *testing.T) {
		body := []byte(`{"order_id":"9","signature":"0xdead","item_ids":["1","2"],"extra":[{"sig":"0xbeef"}]}`)

		var data map[string]any
		require.NoError(t, json.Unmarshal([]byte(redactAuditBody("/v1/purchases/free", body)), &data))
		assert.Equal(t, "***", data["signature"])
		assert.Equal(t, "9", data["order_id"])
		assert.Equal(t, []any{"1", "2"}, data["item_ids"])
		extra := data["extra"].([]any)
		assert.Equal(t, "***", extra[0].(map[string]any)["sig"])
	})

	t.Run("admin key fields are masked", func(t *testing.T) {
		out := redactAuditBody("/v1/admin/signer", []byte(`{"address":"0x01","Admin_Key":"k"}`))
		assert.JSONEq(t, `{"address":"0x01","Admin_Key":"***"}`, out)
	})

	t.Run("public reads pass through", func(t *testing.T) {
		body := `{"signature":"0xdead"}`
		assert.Equal(t, body, redactAuditBody("/v1/orders/1", []byte(body)))
	})

	t.Run("unparseable sensitive body", func(t *testing.T) {
		assert.Equal(t, "[redacted]", redactAuditBody("/v1/purchases", []byte("0xdead")))
	})

	t.Run("empty body", func(t *testing.T) {
		assert.Empty(t, redactAuditBody("/v1/purchases", nil))
	})
}

func TestAuditMiddlewareRecordsRequests(t *testing.T) {
	svc := service.NewAuditService(t.TempDir(), 1, nil)
	defer svc.Close()

	r := gin.New()
	r.Use(AuditMiddleware(svc, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/purchases/free", func(c *gin.Context) {
		AddAuditContext(c, "order_id", "5")
		c.JSON(http.StatusOK, gin.H{"order_id": "5"})
	})

	upstream := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/v1/purchases/free", strings.NewReader(`{"order_id":"5","signature":"0xdead"}`))
	req.Header.Set(HeaderRequestID, upstream)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, upstream, w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get(HeaderRequestID))

	got, err := svc.List(context.Background(), model.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, upstream, got[0].ID)
	assert.Equal(t, "5", got[0].OrderID())
	assert.NotContains(t, got[0].RequestBody, "0xdead")
}

func TestAuditMiddlewareReplacesBadRequestID(t *testing.T) {
	svc := service.NewAuditService(t.TempDir(), 1, nil)
	defer svc.Close()
	r := gin.New()
	r.Use(AuditMiddleware(svc))
	r.GET("/v1/config", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/v1/config", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err)
}
