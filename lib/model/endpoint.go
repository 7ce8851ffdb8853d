package model

import (
	"net/url"
	"strings"
	"time"
)

// Endpoint RPC 节点地址和可选代理
type Endpoint struct {
	URL   string `json:"url" yaml:"url"`
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// Key 用于在节点池中索引健康状态
func (e Endpoint) Key() string {
	if e.Proxy == "" {
		return e.URL
	}
	return e.URL + "|" + e.Proxy
}

// String 日志中隐藏代理里的账号密码
func (e Endpoint) String() string {
	if e.Proxy == "" {
		return e.URL
	}
	return e.URL + " via " + RedactURL(e.Proxy)
}

// Status 节点健康状态
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Health 最近一次探测结果
type Health struct {
	Status  Status
	Latency time.Duration
	Slot    uint64
	Err     error
}

// RedactURL 去掉 URL 中的用户信息
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User("***")
	return u.String()
}

// ValidateHTTPURL 检查 RPC 或代理地址是否可用
func ValidateHTTPURL(raw string, schemes ...string) bool {
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}
