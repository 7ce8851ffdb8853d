// Package node probes RPC endpoints and keeps the pool of usable ones.
package node

import (
	"sync"

	"mmsol/lib/model"
)

// Pool 有序的节点列表以及按节点记录的健康状态
type Pool struct {
	endpoints []model.Endpoint

	mu     sync.RWMutex
	health map[string]model.Health
}

func NewPool(endpoints ...model.Endpoint) *Pool {
	return &Pool{
		endpoints: append([]model.Endpoint(nil), endpoints...),
		health:    make(map[string]model.Health, len(endpoints)),
	}
}

// Endpoints 返回全部节点
func (p *Pool) Endpoints() []model.Endpoint {
	return append([]model.Endpoint(nil), p.endpoints...)
}

func (p *Pool) Len() int { return len(p.endpoints) }

// Record 写入探测结果，每个节点只覆盖自己的记录
func (p *Pool) Record(results []ProbeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range results {
		p.health[r.Endpoint.Key()] = r.Health
	}
}

// Health 未探测过的节点返回 unknown
func (p *Pool) Health(ep model.Endpoint) model.Health {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.health[ep.Key()]
	if !ok {
		return model.Health{Status: model.StatusUnknown}
	}
	return h
}

// Healthy 按输入顺序返回 healthy 或 unknown 的节点
func (p *Pool) Healthy() []model.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if h, ok := p.health[ep.Key()]; ok && h.Status == model.StatusUnhealthy {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// Pick 第 i 个任务使用的节点和备用节点，在可用节点间轮询
// 只有一个可用节点时 hasFallback 为 false
func (p *Pool) Pick(i int) (primary, fallback model.Endpoint, hasFallback bool) {
	usable := p.Healthy()
	if len(usable) == 0 {
		// 全部不可用时仍然按原列表尝试，由调用方记录失败
		usable = p.endpoints
	}
	if len(usable) == 0 {
		return model.Endpoint{}, model.Endpoint{}, false
	}
	primary = usable[i%len(usable)]
	if len(usable) < 2 {
		return primary, model.Endpoint{}, false
	}
	return primary, usable[(i+1)%len(usable)], true
}
