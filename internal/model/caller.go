package model

import "github.com/ethereum/go-ethereum/common"

// RateLimitConfig 定义调用方的限流规则
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`   // 每秒查询数
	Burst int     `json:"burst"` // 突发桶大小
}

// Caller 代表一个接入方 (钱包前端, 运营后台)
// Address 是该调用方在链上的身份，作为结算中的 buyer / owner。
type Caller struct {
	Name    string          `json:"name"`
	APIKey  string          `json:"-"`
	Address common.Address  `json:"address"`
	Rate    RateLimitConfig `json:"rate_limit"`
}

// ID is the stable identifier used for audit, idempotency and rate limiting.
func (c *Caller) ID() string {
	return c.Address.Hex()
}
