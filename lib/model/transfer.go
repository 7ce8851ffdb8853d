package model

import "github.com/shopspring/decimal"

// TransferRequest 一笔 SOL 转账
type TransferRequest struct {
	From     string
	To       string
	Lamports uint64
	Memo     string
}

// SolAmount 以 SOL 表示的金额
func (r TransferRequest) SolAmount() decimal.Decimal {
	return Lamports(r.Lamports).Display()
}

// SignedTransfer 已签名的交易。TxID 是本地算出的签名，网络错误后原样重发 Raw，
// 签名不变，节点最多执行一次。
type SignedTransfer struct {
	TxID string
	Raw  []byte
}

// TransferState 单笔转账的状态
//
//	pending -> submitted -> confirmed
//	pending -> failed
//	submitted -> unconfirmed
type TransferState string

const (
	StatePending     TransferState = "pending"
	StateSubmitted   TransferState = "submitted"
	StateConfirmed   TransferState = "confirmed"
	StateFailed      TransferState = "failed"
	StateUnconfirmed TransferState = "unconfirmed"
)

// Terminal 是否为终态
func (s TransferState) Terminal() bool {
	switch s {
	case StateConfirmed, StateFailed, StateUnconfirmed:
		return true
	}
	return false
}

// TransferResult 转账完成后生成，之后不再修改
type TransferResult struct {
	Index    int
	Request  TransferRequest
	State    TransferState
	TxID     string
	Attempts int
	Err      error
}

// Failure 实现 Outcome
func (r TransferResult) Failure() error { return r.Err }
