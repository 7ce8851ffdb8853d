package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mmsol/lib/balances"
	"mmsol/lib/model"
	"mmsol/lib/node"
	"mmsol/lib/proxy"
	"mmsol/lib/solrpc"
	"mmsol/lib/transfer"
)

const proxiesFetchTimeout = 15 * time.Second

// rpcAdapter 命令使用的节点客户端，测试中可以替换
type rpcAdapter interface {
	node.Pinger
	balances.Querier
	transfer.Submitter
	Close()
}

var newAdapter = func(cfg solrpc.Config) rpcAdapter {
	return solrpc.New(cfg)
}

// loadProxies 合并配置中的代理和 proxies_url 下载的代理
func loadProxies(ctx context.Context, static []string, proxiesURL string) (*proxy.Rotator, error) {
	proxies := append([]string(nil), static...)
	if proxiesURL != "" {
		client := &http.Client{Timeout: proxiesFetchTimeout}
		fetched, err := proxy.Fetch(ctx, client, proxiesURL)
		if err != nil {
			return nil, errors.Wrapf(err, "获取代理列表失败 (%s)", model.RedactURL(proxiesURL))
		}
		logger.Info("已加载代理", zap.Int("count", len(fetched)), zap.String("url", model.RedactURL(proxiesURL)))
		proxies = append(proxies, fetched...)
	}
	if len(proxies) == 0 {
		return nil, nil
	}
	return proxy.NewRotator(proxies), nil
}

// probePool 多个节点时先检查一遍，避免把请求发到不可用的节点
func probePool(ctx context.Context, pinger node.Pinger, endpoints []model.Endpoint, timeout time.Duration) *node.Pool {
	pool := node.NewPool(endpoints...)
	if len(endpoints) < 2 {
		return pool
	}
	results := node.NewProber(pinger, timeout, logger).Probe(ctx, endpoints)
	pool.Record(results)
	for _, r := range results {
		if !r.Healthy() {
			logger.Warn("节点不可用", zap.Stringer("endpoint", r.Endpoint), zap.Error(r.Health.Err))
		}
	}
	return pool
}
