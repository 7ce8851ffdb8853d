package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmsol/lib/model"
)

// mockSubmitter implements Submitter for testing.
type mockSubmitter struct {
	mu        sync.Mutex
	signed    []model.TransferRequest
	sent      []model.SignedTransfer
	confirmed []string

	SignFn    func(ctx context.Context, req model.TransferRequest, attempt int) (model.SignedTransfer, error)
	SendFn    func(ctx context.Context, tx model.SignedTransfer, attempt int) error
	ConfirmFn func(ctx context.Context, txID string) error
}

func signed(req model.TransferRequest) model.SignedTransfer {
	return model.SignedTransfer{TxID: "tx-" + req.Memo, Raw: []byte(req.From + "/" + req.Memo)}
}

func (m *mockSubmitter) SignTransfer(ctx context.Context, ep model.Endpoint, req model.TransferRequest) (model.SignedTransfer, error) {
	m.mu.Lock()
	attempt := 0
	for _, r := range m.signed {
		if r == req {
			attempt++
		}
	}
	m.signed = append(m.signed, req)
	m.mu.Unlock()
	if m.SignFn == nil {
		return signed(req), nil
	}
	return m.SignFn(ctx, req, attempt)
}

func (m *mockSubmitter) SendTransfer(ctx context.Context, ep model.Endpoint, tx model.SignedTransfer) error {
	m.mu.Lock()
	attempt := 0
	for _, s := range m.sent {
		if s.TxID == tx.TxID {
			attempt++
		}
	}
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	if m.SendFn == nil {
		return nil
	}
	return m.SendFn(ctx, tx, attempt)
}

func (m *mockSubmitter) ConfirmTransfer(ctx context.Context, ep model.Endpoint, txID string) error {
	m.mu.Lock()
	m.confirmed = append(m.confirmed, txID)
	m.mu.Unlock()
	if m.ConfirmFn == nil {
		return nil
	}
	return m.ConfirmFn(ctx, txID)
}

func (m *mockSubmitter) signCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.signed)
}

func (m *mockSubmitter) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSubmitter) sentTxs() []model.SignedTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SignedTransfer(nil), m.sent...)
}

// memRecorder keeps journal entries in memory.
type memRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *memRecorder) Record(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) states(index int) []model.TransferState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TransferState
	for _, e := range r.entries {
		if e.Index == index {
			out = append(out, e.State)
		}
	}
	return out
}

func req(from, memo string) model.TransferRequest {
	return model.TransferRequest{From: from, To: "dest", Lamports: 1000, Memo: memo}
}

var testNode = model.Endpoint{URL: "http://node"}

func TestGroupBySender(t *testing.T) {
	lanes := groupBySender([]model.TransferRequest{req("A", "1"), req("B", "2"), req("A", "3"), req("C", "4"), req("B", "5")})
	require.Len(t, lanes, 3)
	assert.Equal(t, lane{from: "A", indexes: []int{0, 2}}, lanes[0])
	assert.Equal(t, lane{from: "B", indexes: []int{1, 4}}, lanes[1])
	assert.Equal(t, lane{from: "C", indexes: []int{3}}, lanes[2])
}

func TestRunKeepsPerSenderOrder(t *testing.T) {
	requests := []model.TransferRequest{
		req("A", "a1"), req("B", "b1"), req("A", "a2"), req("B", "b2"), req("A", "a3"), req("B", "b3"),
	}
	var mu sync.Mutex
	order := map[string][]string{}
	inFlight := map[string]bool{}
	senderOf := map[string]string{}

	sub := &mockSubmitter{
		SignFn: func(ctx context.Context, r model.TransferRequest, attempt int) (model.SignedTransfer, error) {
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, inFlight[r.From], "sender %s has overlapping transfers", r.From)
			inFlight[r.From] = true
			order[r.From] = append(order[r.From], r.Memo)
			tx := signed(r)
			senderOf[tx.TxID] = r.From
			return tx, nil
		},
		ConfirmFn: func(ctx context.Context, txID string) error {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight[senderOf[txID]] = false
			mu.Unlock()
			return nil
		},
	}

	report := New(sub, testNode, Options{Concurrency: 2}, nil, nil).Run(context.Background(), requests)
	require.Len(t, report.Results, 6)
	assert.Equal(t, 6, report.Succeeded)
	assert.Equal(t, []string{"a1", "a2", "a3"}, order["A"])
	assert.Equal(t, []string{"b1", "b2", "b3"}, order["B"])
	for i, r := range report.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, model.StateConfirmed, r.State)
		assert.Equal(t, "tx-"+requests[i].Memo, r.TxID)
		assert.Equal(t, 1, r.Attempts)
	}
}

func TestRunNeverResubmitsAfterSignature(t *testing.T) {
	sub := &mockSubmitter{ConfirmFn: func(ctx context.Context, txID string) error {
		return model.UnconfirmedError(nil, "交易 %s 未确认", txID)
	}}
	rec := &memRecorder{}

	report := New(sub, testNode, Options{MaxRetries: 3}, rec, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
	res := report.Results[0]

	assert.Equal(t, 1, sub.signCount())
	assert.Equal(t, 1, sub.sendCount())
	assert.Equal(t, model.StateUnconfirmed, res.State)
	assert.Equal(t, "tx-x", res.TxID)
	assert.Equal(t, model.KindUnconfirmed, model.KindOf(res.Err))
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []model.TransferState{model.StatePending, model.StatePending, model.StateSubmitted, model.StateUnconfirmed}, rec.states(0))
}

func TestRunConfirmNetworkErrorIsUnconfirmed(t *testing.T) {
	sub := &mockSubmitter{ConfirmFn: func(ctx context.Context, txID string) error {
		return model.NetworkError(errors.New("connection reset"), "getSignatureStatuses")
	}}
	report := New(sub, testNode, Options{MaxRetries: 2}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
	res := report.Results[0]

	assert.Equal(t, 1, sub.sendCount())
	assert.Equal(t, model.StateUnconfirmed, res.State)
	assert.Equal(t, model.KindUnconfirmed, model.KindOf(res.Err))
	assert.Equal(t, "tx-x", res.TxID)
}

func TestRunOnChainFailure(t *testing.T) {
	sub := &mockSubmitter{ConfirmFn: func(ctx context.Context, txID string) error {
		return model.RPCError(nil, "交易 %s 执行失败", txID)
	}}
	report := New(sub, testNode, Options{MaxRetries: 2}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
	res := report.Results[0]

	assert.Equal(t, 1, sub.sendCount())
	assert.Equal(t, model.StateFailed, res.State)
	assert.Equal(t, model.KindRPC, model.KindOf(res.Err))
	assert.Equal(t, "tx-x", res.TxID)
}

func TestRunRetriesResendSameSignedTx(t *testing.T) {
	sub := &mockSubmitter{SendFn: func(ctx context.Context, tx model.SignedTransfer, attempt int) error {
		if attempt < 2 {
			return model.NetworkError(errors.New("timeout"), "sendTransaction")
		}
		return nil
	}}
	rec := &memRecorder{}
	report := New(sub, testNode, Options{MaxRetries: 2, RetryDelay: time.Millisecond}, rec, nil).
		Run(context.Background(), []model.TransferRequest{req("A", "x")})
	res := report.Results[0]

	assert.NoError(t, res.Err)
	assert.Equal(t, model.StateConfirmed, res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "tx-x", res.TxID)

	// 只签名一次，三次发送的是同一笔交易
	assert.Equal(t, 1, sub.signCount())
	sent := sub.sentTxs()
	require.Len(t, sent, 3)
	for _, tx := range sent {
		assert.Equal(t, sent[0], tx)
	}
	assert.Equal(t, []model.TransferState{model.StatePending, model.StatePending, model.StateSubmitted, model.StateConfirmed}, rec.states(0))
}

func TestRunRetriesSigningNetworkErrors(t *testing.T) {
	sub := &mockSubmitter{SignFn: func(ctx context.Context, r model.TransferRequest, attempt int) (model.SignedTransfer, error) {
		if attempt == 0 {
			return model.SignedTransfer{}, model.NetworkError(errors.New("timeout"), "getLatestBlockhash")
		}
		return signed(r), nil
	}}
	report := New(sub, testNode, Options{MaxRetries: 1}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
	res := report.Results[0]

	assert.Equal(t, 2, sub.signCount())
	assert.Equal(t, 1, sub.sendCount())
	assert.Equal(t, model.StateConfirmed, res.State)
	assert.Equal(t, 1, res.Attempts)
}

func TestRunSendOutcomeUnknownChecksSignature(t *testing.T) {
	sendFails := func(ctx context.Context, tx model.SignedTransfer, attempt int) error {
		return model.NetworkError(errors.New("timeout"), "sendTransaction")
	}

	t.Run("landed", func(t *testing.T) {
		sub := &mockSubmitter{SendFn: sendFails}
		report := New(sub, testNode, Options{MaxRetries: 1}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
		res := report.Results[0]

		assert.Equal(t, 1, sub.signCount())
		assert.Equal(t, 2, sub.sendCount())
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, model.StateConfirmed, res.State)
		assert.Equal(t, "tx-x", res.TxID)
		assert.Equal(t, []string{"tx-x"}, sub.confirmed)
	})

	t.Run("not found", func(t *testing.T) {
		sub := &mockSubmitter{SendFn: sendFails, ConfirmFn: func(ctx context.Context, txID string) error {
			return model.UnconfirmedError(nil, "交易 %s 未确认", txID)
		}}
		report := New(sub, testNode, Options{MaxRetries: 1}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
		res := report.Results[0]

		assert.Equal(t, 1, sub.signCount())
		assert.Equal(t, model.StateUnconfirmed, res.State)
		assert.Equal(t, model.KindUnconfirmed, model.KindOf(res.Err))
		assert.Equal(t, "tx-x", res.TxID)
	})
}

func TestRunRejectionAfterTimeoutStillChecksSignature(t *testing.T) {
	sub := &mockSubmitter{SendFn: func(ctx context.Context, tx model.SignedTransfer, attempt int) error {
		if attempt == 0 {
			return model.NetworkError(errors.New("timeout"), "sendTransaction")
		}
		return model.RPCError(errors.New("Blockhash not found"), "sendTransaction")
	}}
	report := New(sub, testNode, Options{MaxRetries: 2}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
	res := report.Results[0]

	assert.Equal(t, 2, sub.sendCount())
	assert.Equal(t, []string{"tx-x"}, sub.confirmed)
	assert.Equal(t, model.StateConfirmed, res.State)
	assert.Equal(t, "tx-x", res.TxID)
}

func TestRunDoesNotRetryNonNetworkErrors(t *testing.T) {
	for _, err := range []error{
		model.RPCError(errors.New("insufficient funds"), "sendTransaction"),
		model.InvalidRequest("无效的接收方地址"),
	} {
		t.Run(string(model.KindOf(err)), func(t *testing.T) {
			sub := &mockSubmitter{SendFn: func(ctx context.Context, tx model.SignedTransfer, attempt int) error {
				return err
			}}
			report := New(sub, testNode, Options{MaxRetries: 5}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
			res := report.Results[0]
			assert.Equal(t, 1, sub.sendCount())
			assert.Equal(t, model.StateFailed, res.State)
			assert.Equal(t, model.KindOf(err), model.KindOf(res.Err))
			assert.Empty(t, res.TxID)
			assert.Empty(t, sub.confirmed)
		})
	}

	t.Run("sign rejected", func(t *testing.T) {
		sub := &mockSubmitter{SignFn: func(ctx context.Context, r model.TransferRequest, attempt int) (model.SignedTransfer, error) {
			return model.SignedTransfer{}, model.InvalidRequest("缺少发送方私钥")
		}}
		report := New(sub, testNode, Options{MaxRetries: 5}, nil, nil).Run(context.Background(), []model.TransferRequest{req("A", "x")})
		res := report.Results[0]
		assert.Equal(t, 1, sub.signCount())
		assert.Zero(t, sub.sendCount())
		assert.Equal(t, model.StateFailed, res.State)
		assert.Equal(t, model.KindInvalidRequest, model.KindOf(res.Err))
	})
}

func TestRunFailureDoesNotStopLane(t *testing.T) {
	sub := &mockSubmitter{SendFn: func(ctx context.Context, tx model.SignedTransfer, attempt int) error {
		if tx.TxID == "tx-bad" {
			return model.RPCError(nil, "rejected")
		}
		return nil
	}}
	report := New(sub, testNode, Options{}, nil, nil).Run(context.Background(),
		[]model.TransferRequest{req("A", "1"), req("A", "bad"), req("A", "3")})
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Error(t, report.Results[1].Err)
}

func TestRunCancelledStartsNothing(t *testing.T) {
	sub := &mockSubmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(sub, testNode, Options{}, nil, nil).Run(ctx, []model.TransferRequest{req("A", "1"), req("B", "2")})
	assert.Zero(t, sub.signCount())
	require.Len(t, report.Results, 2)
	for i, r := range report.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, model.StatePending, r.State)
		assert.Equal(t, model.KindCancelled, model.KindOf(r.Err))
	}
}

func TestRunCancelDuringLaneFinishesInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &mockSubmitter{ConfirmFn: func(c context.Context, txID string) error {
		cancel()
		// 已提交的交易不受取消影响
		return c.Err()
	}}

	report := New(sub, testNode, Options{}, nil, nil).Run(ctx, []model.TransferRequest{req("A", "1"), req("A", "2"), req("A", "3")})
	assert.Equal(t, 1, sub.sendCount())
	assert.Equal(t, model.StateConfirmed, report.Results[0].State)
	for _, i := range []int{1, 2} {
		assert.Equal(t, model.KindCancelled, model.KindOf(report.Results[i].Err), fmt.Sprint(i))
	}
}

func TestEntryNeedsFollowUp(t *testing.T) {
	assert.False(t, Entry{State: model.StatePending}.NeedsFollowUp())
	assert.True(t, Entry{State: model.StatePending, TxID: "tx"}.NeedsFollowUp())
	assert.True(t, Entry{State: model.StateSubmitted, TxID: "tx"}.NeedsFollowUp())
	assert.True(t, Entry{State: model.StateUnconfirmed, TxID: "tx"}.NeedsFollowUp())
	assert.False(t, Entry{State: model.StateConfirmed, TxID: "tx"}.NeedsFollowUp())
	assert.False(t, Entry{State: model.StateFailed}.NeedsFollowUp())
}

func TestJournalPending(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir)
	require.NoError(t, err)

	sub := &mockSubmitter{ConfirmFn: func(ctx context.Context, txID string) error {
		if txID == "tx-slow" {
			return model.UnconfirmedError(nil, "timeout")
		}
		return nil
	}}
	report := New(sub, testNode, Options{}, j, nil).Run(context.Background(),
		[]model.TransferRequest{req("A", "ok"), req("B", "slow")})
	require.Equal(t, 1, report.Failed)

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, report.ID, entries[0].Batch)

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Index)
	assert.Equal(t, "tx-slow", pending[0].TxID)
	assert.Equal(t, model.StateUnconfirmed, pending[0].State)
	require.NoError(t, j.Close())

	// 重新打开后仍能读到
	j2, err := OpenJournal(dir)
	require.NoError(t, err)
	defer j2.Close()
	pending, err = j2.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "tx-slow", pending[0].TxID)
}
