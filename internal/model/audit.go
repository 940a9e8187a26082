package model

import (
	"time"
)

// AuditLog 代表一次完整的操作审计记录
type AuditLog struct {
	ID        string `json:"id"`         // 唯一请求 ID (UUID)
	CallerID  string `json:"caller_id"`  // 调用方链上地址
	Method    string `json:"method"`     // HTTP 方法
	Path      string `json:"path"`       // 请求路径
	IP        string `json:"ip"`         // 客户端 IP
	UserAgent string `json:"user_agent"` // 客户端 UA

	// 请求详情
	RequestBody   string `json:"request_body"`   // 请求体 (脱敏后)
	RequestHeader string `json:"request_header"` // 关键 Header

	// 响应详情
	StatusCode   int    `json:"status_code"`   // HTTP 状态码
	ResponseBody string `json:"response_body"` // 响应体
	LatencyMs    int64  `json:"latency_ms"`    // 耗时 (毫秒)

	// 业务上下文: 订单号、结算事件 ID、拒绝原因等
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}

// AuditQuery filters the audit trail. Zero values match everything.
type AuditQuery struct {
	CallerID string
	OrderID  string
	Limit    int
	From     *time.Time
	To       *time.Time
}

// Matches applies the filter to an entry already in memory.
func (q AuditQuery) Matches(entry *AuditLog) bool {
	if entry == nil {
		return false
	}
	if q.CallerID != "" && entry.CallerID != q.CallerID {
		return false
	}
	if q.OrderID != "" && entry.OrderID() != q.OrderID {
		return false
	}
	if q.From != nil && entry.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && entry.CreatedAt.After(*q.To) {
		return false
	}
	return true
}

// OrderID is the order recorded by the purchase handlers, if any.
func (a *AuditLog) OrderID() string {
	if v, ok := a.Context["order_id"].(string); ok {
		return v
	}
	return ""
}
