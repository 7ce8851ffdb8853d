// Package transfer submits batches of SOL transfers. Transfers from the same
// sender run one after another in input order, different senders run
// concurrently. Each transfer is signed exactly once; a retry after a network
// error re-sends the same signed bytes, so the chain executes it at most once.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmsol/lib/model"
)

const DefaultConcurrency = 5

// Submitter 签名、发送并确认交易，solrpc.Client 实现了该接口。
// SendTransfer 必须可以对同一个 SignedTransfer 重复调用。
type Submitter interface {
	SignTransfer(ctx context.Context, ep model.Endpoint, req model.TransferRequest) (model.SignedTransfer, error)
	SendTransfer(ctx context.Context, ep model.Endpoint, tx model.SignedTransfer) error
	ConfirmTransfer(ctx context.Context, ep model.Endpoint, txID string) error
}

type Options struct {
	// Concurrency 同时处理的发送方数量
	Concurrency int
	// MaxRetries 网络错误时额外的发送次数
	MaxRetries int
	RetryDelay time.Duration
	// Delay 同一发送方两笔转账之间的间隔
	Delay time.Duration
}

type Orchestrator struct {
	submitter Submitter
	endpoint  model.Endpoint
	opts      Options
	recorder  Recorder
	logger    *zap.Logger
}

// New recorder 可以为 nil
func New(submitter Submitter, endpoint model.Endpoint, opts Options, recorder Recorder, logger *zap.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		submitter: submitter,
		endpoint:  endpoint,
		opts:      opts,
		recorder:  recorder,
		logger:    logger,
	}
}

// lane 同一发送方的转账下标，保持输入顺序
type lane struct {
	from    string
	indexes []int
}

func groupBySender(requests []model.TransferRequest) []lane {
	var lanes []lane
	pos := make(map[string]int)
	for i, r := range requests {
		p, ok := pos[r.From]
		if !ok {
			p = len(lanes)
			pos[r.From] = p
			lanes = append(lanes, lane{from: r.From})
		}
		lanes[p].indexes = append(lanes[p].indexes, i)
	}
	return lanes
}

// Run 返回与 requests 一一对应的结果。ctx 取消后不再开始新的转账，
// 已经发出的交易继续等待确认。
func (o *Orchestrator) Run(ctx context.Context, requests []model.TransferRequest) model.BatchReport[model.TransferResult] {
	batch := uuid.NewString()
	logger := o.logger.With(zap.String("batch", batch))
	results := make([]model.TransferResult, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for _, l := range groupBySender(requests) {
		if ctx.Err() != nil {
			o.cancelRest(ctx, requests, l.indexes, results)
			continue
		}
		g.Go(func() error {
			o.runLane(ctx, batch, logger, requests, l, results)
			return nil
		})
	}
	_ = g.Wait()

	report := model.NewBatchReport(batch, results)
	logger.Info("转账完成",
		zap.Int("total", len(results)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report
}

func (o *Orchestrator) runLane(ctx context.Context, batch string, logger *zap.Logger, requests []model.TransferRequest, l lane, results []model.TransferResult) {
	for n, i := range l.indexes {
		if n > 0 && o.opts.Delay > 0 {
			if !sleep(ctx, o.opts.Delay) {
				o.cancelRest(ctx, requests, l.indexes[n:], results)
				return
			}
		}
		if ctx.Err() != nil {
			o.cancelRest(ctx, requests, l.indexes[n:], results)
			return
		}

		res := o.transfer(ctx, batch, i, requests[i])
		results[i] = res
		fields := []zap.Field{
			zap.Int("index", i),
			zap.String("from", res.Request.From),
			zap.String("to", res.Request.To),
			zap.String("state", string(res.State)),
			zap.String("tx", res.TxID),
			zap.Int("attempts", res.Attempts),
		}
		if res.Err != nil {
			logger.Warn("转账失败", append(fields, zap.String("kind", string(model.KindOf(res.Err))), zap.Error(res.Err))...)
		} else {
			logger.Info("转账成功", fields...)
		}
	}
}

func (o *Orchestrator) cancelRest(ctx context.Context, requests []model.TransferRequest, indexes []int, results []model.TransferResult) {
	for _, i := range indexes {
		results[i] = model.TransferResult{
			Index:   i,
			Request: requests[i],
			State:   model.StatePending,
			Err:     model.Cancelled(ctx.Err()),
		}
	}
}

func (o *Orchestrator) transfer(ctx context.Context, batch string, i int, req model.TransferRequest) model.TransferResult {
	res := model.TransferResult{Index: i, Request: req, State: model.StatePending}
	o.record(batch, res)

	// 已经开始的转账不受外部取消影响，超时由 Submitter 控制
	callCtx := context.WithoutCancel(ctx)

	// 签名前没有发出任何交易，网络错误可以放心重试
	var tx model.SignedTransfer
	_, err := o.retry(ctx, batch, i, func() error {
		var err error
		tx, err = o.submitter.SignTransfer(callCtx, o.endpoint, req)
		return err
	})
	if err != nil {
		res.State = model.StateFailed
		res.Err = err
		o.record(batch, res)
		return res
	}

	// 签名先写入日志，发送过程中进程退出也能按签名核查
	res.TxID = tx.TxID
	o.record(batch, res)

	// 重试只重发同一笔已签名的交易，签名不变。
	// 出现过网络错误后，之后的拒绝也不能说明交易没有上链。
	uncertain := false
	res.Attempts, err = o.retry(ctx, batch, i, func() error {
		err := o.submitter.SendTransfer(callCtx, o.endpoint, tx)
		if model.IsRetryable(err) {
			uncertain = true
		}
		return err
	})
	if err != nil && !uncertain {
		res.TxID = ""
		res.State = model.StateFailed
		res.Err = err
		o.record(batch, res)
		return res
	}
	if err != nil {
		// 超时或连接中断时节点可能已经收到，按签名查询结果
		o.logger.Warn("发送结果未知，查询交易状态",
			zap.String("batch", batch), zap.Int("index", i), zap.String("tx", res.TxID), zap.Error(err))
	}

	res.State = model.StateSubmitted
	o.record(batch, res)

	if err := o.submitter.ConfirmTransfer(callCtx, o.endpoint, res.TxID); err != nil {
		switch model.KindOf(err) {
		case model.KindRPC:
			// 交易已上链但执行失败
			res.State = model.StateFailed
		case model.KindUnconfirmed:
			res.State = model.StateUnconfirmed
		default:
			res.State = model.StateUnconfirmed
			err = model.UnconfirmedError(err, "交易 %s 未确认", res.TxID)
		}
		res.Err = err
		o.record(batch, res)
		return res
	}

	res.State = model.StateConfirmed
	res.Err = nil
	o.record(batch, res)
	return res
}

// retry 只对网络错误重试，最多 MaxRetries 次，返回实际调用次数
func (o *Orchestrator) retry(ctx context.Context, batch string, i int, fn func() error) (int, error) {
	var err error
	attempts := 0
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			o.logger.Debug("网络错误，重试", zap.String("batch", batch), zap.Int("index", i), zap.Int("attempt", attempt+1), zap.Error(err))
			if !sleep(ctx, o.opts.RetryDelay) {
				break
			}
		}
		attempts++
		err = fn()
		if err == nil || !model.IsRetryable(err) {
			break
		}
	}
	return attempts, err
}

func (o *Orchestrator) record(batch string, res model.TransferResult) {
	if o.recorder == nil {
		return
	}
	e := Entry{
		Batch:    batch,
		Index:    res.Index,
		State:    res.State,
		From:     res.Request.From,
		To:       res.Request.To,
		Lamports: res.Request.Lamports,
		TxID:     res.TxID,
		Attempts: res.Attempts,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	if err := o.recorder.Record(e); err != nil {
		o.logger.Error("写入转账日志失败", zap.String("batch", batch), zap.Int("index", res.Index), zap.Error(err))
		return
	}
	if res.State.Terminal() {
		o.logger.Debug("转账结束", zap.String("batch", batch), zap.Int("index", res.Index), zap.String("state", string(res.State)))
	}
}

// sleep 在 ctx 取消时提前返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
