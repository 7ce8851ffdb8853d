// Package balances runs batches of account balance queries against a pool of
// RPC endpoints with bounded concurrency and per-query failure isolation.
package balances

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmsol/lib/model"
	"mmsol/lib/node"
)

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 10 * time.Second
)

// Querier 查询单个账户余额，solrpc.Client 实现了该接口
type Querier interface {
	QueryBalance(ctx context.Context, ep model.Endpoint, account, token string) (model.Amount, error)
}

type Options struct {
	Concurrency int
	// Timeout 单次请求的超时，包括取消后仍在执行的请求
	Timeout time.Duration
}

type Orchestrator struct {
	querier Querier
	pool    *node.Pool
	opts    Options
	logger  *zap.Logger
}

func New(querier Querier, pool *node.Pool, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{querier: querier, pool: pool, opts: opts, logger: logger}
}

// Run 返回与 queries 一一对应的结果。ctx 取消后不再发起新的查询，
// 未开始的查询记为 Cancelled，已经开始的请求在超时内继续完成。
func (o *Orchestrator) Run(ctx context.Context, queries []model.AccountQuery) model.BatchReport[model.BalanceResult] {
	id := uuid.NewString()
	logger := o.logger.With(zap.String("batch", id))
	results := make([]model.BalanceResult, len(queries))

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for i, q := range queries {
		if ctx.Err() != nil {
			results[i] = model.BalanceResult{Index: i, Query: q, Err: model.Cancelled(ctx.Err())}
			continue
		}
		// SetLimit 下 Go 会阻塞，等待期间发生的取消在 goroutine 内处理
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = model.BalanceResult{Index: i, Query: q, Err: model.Cancelled(ctx.Err())}
				return nil
			}
			results[i] = o.query(ctx, i, q)
			if err := results[i].Err; err != nil {
				logger.Warn("余额查询失败",
					zap.Int("index", i),
					zap.String("account", q.Account),
					zap.String("token", q.TokenName()),
					zap.String("kind", string(model.KindOf(err))),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report := model.NewBatchReport(id, results)
	logger.Info("余额查询完成",
		zap.Int("total", len(results)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report
}

// query 网络错误时换一个可用节点重试一次
func (o *Orchestrator) query(ctx context.Context, i int, q model.AccountQuery) model.BalanceResult {
	res := model.BalanceResult{Index: i, Query: q}
	primary, fallback, hasFallback := o.pool.Pick(i)

	res.Amount, res.Err = o.call(ctx, primary, q)
	res.Endpoint = primary.String()
	if res.Err == nil || !hasFallback || !model.IsRetryable(res.Err) || ctx.Err() != nil {
		return res
	}

	o.logger.Debug("切换节点重试",
		zap.Int("index", i),
		zap.Stringer("from", primary),
		zap.Stringer("to", fallback),
		zap.Error(res.Err))
	res.Amount, res.Err = o.call(ctx, fallback, q)
	res.Endpoint = fallback.String()
	return res
}

func (o *Orchestrator) call(ctx context.Context, ep model.Endpoint, q model.AccountQuery) (model.Amount, error) {
	// 已经开始的请求不受外部取消影响，只受单次超时约束
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.Timeout)
	defer cancel()
	return o.querier.QueryBalance(callCtx, ep, q.Account, q.Token)
}
