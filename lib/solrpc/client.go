// Package solrpc talks to Solana JSON-RPC nodes: balances, transfers,
// confirmation polling and liveness checks.
package solrpc

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"mmsol/lib/model"
	"mmsol/lib/proxy"
	"mmsol/lib/wallet"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 2 * time.Second

	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Config 客户端配置
type Config struct {
	RequestTimeout time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Commitment     string

	// Proxies 节点未指定代理时按请求轮换
	Proxies *proxy.Rotator
	Keyring *wallet.Keyring
	Logger  *zap.Logger
}

// Client 按 (节点, 代理) 缓存 JSON-RPC 连接
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*gethrpc.Client
}

func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = defaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if n := cfg.Proxies.Len(); n > 0 {
		logger.Debug("请求通过代理轮换发送", zap.Int("proxies", n))
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*gethrpc.Client),
	}
}

// Close 关闭所有缓存的连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, cl := range c.clients {
		cl.Close()
		delete(c.clients, key)
	}
}

func (c *Client) rpcFor(ctx context.Context, ep model.Endpoint) (*gethrpc.Client, error) {
	proxyURL := ep.Proxy
	if proxyURL == "" {
		proxyURL = c.cfg.Proxies.Next()
	}
	key := model.Endpoint{URL: ep.URL, Proxy: proxyURL}.Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}

	hc, err := newHTTPClient(proxyURL, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	// http 节点的 Dial 不会发起网络请求
	cl, err := gethrpc.DialOptions(ctx, ep.URL, gethrpc.WithHTTPClient(hc))
	if err != nil {
		return nil, model.InvalidRequest("无效的 RPC 地址 %q: %v", ep.URL, err)
	}
	c.clients[key] = cl
	return cl, nil
}

func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Host == "" {
			return nil, model.InvalidRequest("无效的代理地址 %q", model.RedactURL(proxyURL))
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

// call 发起一次 JSON-RPC 调用并对错误分类
func (c *Client) call(ctx context.Context, ep model.Endpoint, result any, method string, args ...any) error {
	cl, err := c.rpcFor(ctx, ep)
	if err != nil {
		return err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if err := cl.CallContext(reqCtx, result, method, args...); err != nil {
		c.logger.Debug("rpc 调用失败",
			zap.String("method", method),
			zap.Stringer("endpoint", ep),
			zap.Error(err))
		return classify(method, err)
	}
	return nil
}

type commitmentConfig struct {
	Commitment string `json:"commitment,omitempty"`
}

func (c *Client) commitment() commitmentConfig {
	return commitmentConfig{Commitment: c.cfg.Commitment}
}
