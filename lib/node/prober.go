package node

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmsol/lib/model"
)

const DefaultTimeout = 5 * time.Second

// Pinger 对单个节点做一次轻量的存活检查
type Pinger interface {
	Ping(ctx context.Context, ep model.Endpoint) (uint64, error)
}

// ProbeResult 单个节点的检查结果
type ProbeResult struct {
	Endpoint model.Endpoint
	Health   model.Health
}

func (r ProbeResult) Healthy() bool { return r.Health.Status == model.StatusHealthy }

// Prober 并发检查节点，每个节点只尝试一次
type Prober struct {
	pinger  Pinger
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(pinger Pinger, timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{pinger: pinger, timeout: timeout, logger: logger}
}

// Probe 结果顺序与输入一致，超时或报错的节点标记为 unhealthy
func (p *Prober) Probe(ctx context.Context, endpoints []model.Endpoint) []ProbeResult {
	results := make([]ProbeResult, len(endpoints))
	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = p.probeOne(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Prober) probeOne(ctx context.Context, ep model.Endpoint) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	slot, err := p.pinger.Ping(ctx, ep)
	latency := time.Since(start)

	if err != nil {
		p.logger.Debug("节点不可用", zap.Stringer("endpoint", ep), zap.Duration("latency", latency), zap.Error(err))
		return ProbeResult{Endpoint: ep, Health: model.Health{Status: model.StatusUnhealthy, Latency: latency, Err: err}}
	}
	return ProbeResult{Endpoint: ep, Health: model.Health{Status: model.StatusHealthy, Latency: latency, Slot: slot}}
}

// Stats 健康节点的响应时间统计
type Stats struct {
	Healthy int
	Total   int
	Average time.Duration
	Fastest *ProbeResult
	Slowest *ProbeResult
}

func Summarize(results []ProbeResult) Stats {
	stats := Stats{Total: len(results)}
	var total time.Duration
	for i := range results {
		r := &results[i]
		if !r.Healthy() {
			continue
		}
		stats.Healthy++
		total += r.Health.Latency
		if stats.Fastest == nil || r.Health.Latency < stats.Fastest.Health.Latency {
			stats.Fastest = r
		}
		if stats.Slowest == nil || r.Health.Latency > stats.Slowest.Health.Latency {
			stats.Slowest = r
		}
	}
	if stats.Healthy > 0 {
		stats.Average = total / time.Duration(stats.Healthy)
	}
	return stats
}
