package solrpc

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"mmsol/lib/model"
)

var memoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

type latestBlockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

type sendConfig struct {
	Encoding            string `json:"encoding"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
}

type signatureStatus struct {
	Slot               uint64  `json:"slot"`
	Confirmations      *uint64 `json:"confirmations"`
	Err                any     `json:"err"`
	ConfirmationStatus string  `json:"confirmationStatus"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}

type statusesConfig struct {
	SearchTransactionHistory bool `json:"searchTransactionHistory"`
}

// SignTransfer 取最新 blockhash，构造并签名一笔 SOL 转账，不发送
func (c *Client) SignTransfer(ctx context.Context, ep model.Endpoint, req model.TransferRequest) (model.SignedTransfer, error) {
	from, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.From))
	if err != nil {
		return model.SignedTransfer{}, model.InvalidRequest("无效的发送方地址 %q", req.From)
	}
	to, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.To))
	if err != nil {
		return model.SignedTransfer{}, model.InvalidRequest("无效的接收方地址 %q", req.To)
	}
	if req.Lamports == 0 {
		return model.SignedTransfer{}, model.InvalidRequest("转账金额必须大于 0")
	}
	if _, ok := c.cfg.Keyring.Get(from); !ok {
		return model.SignedTransfer{}, model.InvalidRequest("缺少发送方 %s 的私钥", from)
	}

	var bh latestBlockhashResult
	if err := c.call(ctx, ep, &bh, "getLatestBlockhash", c.commitment()); err != nil {
		return model.SignedTransfer{}, err
	}
	blockhash, err := solana.HashFromBase58(bh.Value.Blockhash)
	if err != nil {
		return model.SignedTransfer{}, model.RPCError(err, "节点返回了无效的 blockhash %q", bh.Value.Blockhash)
	}

	tx, err := buildTransfer(req, from, to, blockhash)
	if err != nil {
		return model.SignedTransfer{}, model.InvalidRequest("构造交易失败: %v", err)
	}
	if _, err := tx.Sign(c.cfg.Keyring.Signer()); err != nil {
		return model.SignedTransfer{}, model.InvalidRequest("签名交易失败: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return model.SignedTransfer{}, model.InvalidRequest("序列化交易失败: %v", err)
	}
	return model.SignedTransfer{TxID: tx.Signatures[0].String(), Raw: raw}, nil
}

// SendTransfer 发送已签名的交易。同一笔交易可以重复发送，
// 节点报告已处理过时视为成功。
func (c *Client) SendTransfer(ctx context.Context, ep model.Endpoint, tx model.SignedTransfer) error {
	if len(tx.Raw) == 0 {
		return model.InvalidRequest("交易 %s 未签名", tx.TxID)
	}
	var sig string
	err := c.call(ctx, ep, &sig, "sendTransaction",
		base64.StdEncoding.EncodeToString(tx.Raw),
		sendConfig{Encoding: "base64", PreflightCommitment: c.cfg.Commitment},
	)
	if err != nil {
		if alreadyProcessed(err) {
			c.logger.Debug("交易已被节点处理过", zap.String("tx", tx.TxID), zap.Stringer("endpoint", ep))
			return nil
		}
		return err
	}
	if sig != "" && sig != tx.TxID {
		c.logger.Warn("节点返回的签名与本地签名不一致", zap.String("tx", tx.TxID), zap.String("returned", sig))
	}
	c.logger.Debug("交易已发送", zap.String("tx", tx.TxID), zap.Stringer("endpoint", ep))
	return nil
}

func buildTransfer(req model.TransferRequest, from, to solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	instructions := []solana.Instruction{
		system.NewTransferInstruction(req.Lamports, from, to).Build(),
	}
	if req.Memo != "" {
		instructions = append(instructions, solana.NewInstruction(
			memoProgramID,
			solana.AccountMetaSlice{solana.NewAccountMeta(from, false, true)},
			[]byte(req.Memo),
		))
	}
	return solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(from))
}

// ConfirmTransfer 轮询交易状态直到达到配置的确认级别，超时返回 UnconfirmedError
func (c *Client) ConfirmTransfer(ctx context.Context, ep model.Endpoint, txID string) error {
	if _, err := solana.SignatureFromBase58(txID); err != nil {
		return model.InvalidRequest("无效的交易签名 %q", txID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		var res signatureStatusesResult
		err := c.call(ctx, ep, &res, "getSignatureStatuses", []string{txID}, statusesConfig{SearchTransactionHistory: true})
		switch {
		case err != nil:
			lastErr = err
		case len(res.Value) > 0 && res.Value[0] != nil:
			st := res.Value[0]
			if st.Err != nil {
				return model.RPCError(nil, "交易 %s 执行失败: %v", txID, st.Err)
			}
			if reached(st.ConfirmationStatus, c.cfg.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return model.UnconfirmedError(lastErr, "交易 %s 在 %s 内未达到 %s", txID, c.cfg.ConfirmTimeout, c.cfg.Commitment)
		case <-ticker.C:
		}
	}
}

func commitmentRank(s string) int {
	switch s {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

func reached(status, target string) bool {
	rank := commitmentRank(status)
	return rank > 0 && rank >= commitmentRank(target)
}
