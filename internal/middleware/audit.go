package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/GoPolymarket/itemsale/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextAuditLog = "audit_log"
	HeaderRequestID = "X-Request-ID"

	// auditBodyLimit caps how much of each body lands in the trail.
	auditBodyLimit = 16 << 10
)

// bodyLogWriter 包装 ResponseWriter 以捕获响应体 (最多 auditBodyLimit 字节)
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := auditBodyLimit - w.body.Len(); room > 0 {
		w.body.Write(b[:min(len(b), room)])
	}
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware records every API request. Probes and the event stream
// are skipped; an upstream X-Request-ID is kept when it is a UUID.
func AuditMiddleware(auditSvc *service.AuditService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skipped[c.FullPath()]; ok || c.IsWebsocket() {
			c.Next()
			return
		}
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Header(HeaderRequestID, reqID)

		// 1. 读取请求体 (并写回以便后续 Bind 使用)
		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		// 2. 审计对象放入 Context，Handler 可通过 AddAuditContext 追加订单号等
		entry := &model.AuditLog{
			ID:        reqID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start,
			Context:   make(map[string]interface{}),
		}
		c.Set(ContextAuditLog, entry)

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if caller, ok := CallerFrom(c); ok {
			entry.CallerID = caller.ID()
		}
		entry.RequestHeader = auditHeaders(c)
		if len(c.Errors) > 0 {
			entry.Context["error"] = c.Errors.Last().Error()
		}
		if len(reqBody) > auditBodyLimit {
			reqBody = reqBody[:auditBodyLimit]
			entry.Context["request_truncated"] = true
		}
		entry.RequestBody = redactAuditBody(c.Request.URL.Path, reqBody)
		entry.StatusCode = c.Writer.Status()
		entry.ResponseBody = redactAuditBody(c.Request.URL.Path, blw.body.Bytes())
		entry.LatencyMs = time.Since(start).Milliseconds()

		// 异步写入
		auditSvc.Log(entry)
	}
}

// AddAuditContext 辅助函数：允许 Handler/Service 向审计日志添加业务上下文
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if val, exists := c.Get(ContextAuditLog); exists {
		if entry, ok := val.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

// auditHeaders keeps the headers worth correlating on, never credentials.
func auditHeaders(c *gin.Context) string {
	parts := make([]string, 0, 2)
	if v := c.GetHeader(HeaderIdempotencyKey); v != "" {
		parts = append(parts, HeaderIdempotencyKey+"="+v)
	}
	if v := c.GetHeader("Content-Type"); v != "" {
		parts = append(parts, "Content-Type="+v)
	}
	return strings.Join(parts, "; ")
}

func redactAuditBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/v1/purchases"):
		return true
	case strings.HasPrefix(path, "/v1/admin"):
		return true
	default:
		return false
	}
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api_key",
		"private_key",
		"signer_key",
		"signature",
		"sig",
		"jwt",
		"token",
		"admin_key":
		return true
	default:
		return false
	}
}
