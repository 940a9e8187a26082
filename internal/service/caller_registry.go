package service

import (
	"fmt"
	"sync"

	"github.com/GoPolymarket/itemsale/internal/config"
	"github.com/GoPolymarket/itemsale/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// DefaultCallerRate applies to callers that authenticate by token and have no
// configured entry.
var DefaultCallerRate = model.RateLimitConfig{QPS: 10, Burst: 20}

// CallerRegistry 管理调用方身份 (API key -> 链上地址) 以及限流器
type CallerRegistry struct {
	mu       sync.RWMutex
	byKey    map[string]*model.Caller // Key: API key
	byAddr   map[common.Address]*model.Caller
	limiters map[common.Address]*rate.Limiter
}

func NewCallerRegistry(callers []config.CallerConfig) (*CallerRegistry, error) {
	r := &CallerRegistry{
		byKey:    make(map[string]*model.Caller),
		byAddr:   make(map[common.Address]*model.Caller),
		limiters: make(map[common.Address]*rate.Limiter),
	}
	for i, c := range callers {
		if !common.IsHexAddress(c.Address) {
			return nil, fmt.Errorf("callers[%d]: invalid address %q", i, c.Address)
		}
		if c.APIKey == "" {
			return nil, fmt.Errorf("callers[%d]: api_key is required", i)
		}
		r.Register(&model.Caller{
			Name:    c.Name,
			APIKey:  c.APIKey,
			Address: common.HexToAddress(c.Address),
			Rate:    model.RateLimitConfig{QPS: c.QPS, Burst: c.Burst},
		})
	}
	return r, nil
}

func (r *CallerRegistry) Register(c *model.Caller) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.APIKey != "" {
		r.byKey[c.APIKey] = c
	}
	r.byAddr[c.Address] = c
	r.limiters[c.Address] = newLimiter(c.Rate)
}

func (r *CallerRegistry) ByAPIKey(apiKey string) (*model.Caller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[apiKey]
	return c, ok
}

// ForAddress returns the configured caller for addr, registering an
// anonymous one with the default rate when none exists.
func (r *CallerRegistry) ForAddress(addr common.Address) *model.Caller {
	r.mu.RLock()
	c, ok := r.byAddr[addr]
	r.mu.RUnlock()
	if ok {
		return c
	}
	c = &model.Caller{Name: "token", Address: addr, Rate: DefaultCallerRate}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byAddr[addr]; ok {
		return existing
	}
	r.byAddr[addr] = c
	r.limiters[addr] = newLimiter(c.Rate)
	return c
}

// Limiter 获取调用方的限流器
func (r *CallerRegistry) Limiter(addr common.Address) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[addr]
}

func newLimiter(cfg model.RateLimitConfig) *rate.Limiter {
	// 配置为 0 视为不限流
	limit := rate.Limit(cfg.QPS)
	if limit == 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}
