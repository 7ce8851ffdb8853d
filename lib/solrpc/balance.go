package solrpc

import (
	"context"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"

	"mmsol/lib/model"
)

type balanceResult struct {
	Value uint64 `json:"value"`
}

type uiTokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

type tokenAccountsResult struct {
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						Mint        string        `json:"mint"`
						TokenAmount uiTokenAmount `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

type tokenSupplyResult struct {
	Value uiTokenAmount `json:"value"`
}

type mintFilter struct {
	Mint string `json:"mint"`
}

type accountsConfig struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment,omitempty"`
}

// QueryBalance 查询 SOL 余额，token 不为空时查询该代币在所有账户上的合计余额
func (c *Client) QueryBalance(ctx context.Context, ep model.Endpoint, account, token string) (model.Amount, error) {
	owner, err := solana.PublicKeyFromBase58(strings.TrimSpace(account))
	if err != nil {
		return model.Amount{}, model.InvalidRequest("无效的账户地址 %q", account)
	}

	if token == "" {
		var res balanceResult
		if err := c.call(ctx, ep, &res, "getBalance", owner.String(), c.commitment()); err != nil {
			return model.Amount{}, err
		}
		return model.Lamports(res.Value), nil
	}

	mint, err := solana.PublicKeyFromBase58(strings.TrimSpace(token))
	if err != nil {
		return model.Amount{}, model.InvalidRequest("无效的代币地址 %q", token)
	}
	return c.tokenBalance(ctx, ep, owner, mint)
}

func (c *Client) tokenBalance(ctx context.Context, ep model.Endpoint, owner, mint solana.PublicKey) (model.Amount, error) {
	var res tokenAccountsResult
	err := c.call(ctx, ep, &res, "getTokenAccountsByOwner",
		owner.String(),
		mintFilter{Mint: mint.String()},
		accountsConfig{Encoding: "jsonParsed", Commitment: c.cfg.Commitment},
	)
	if err != nil {
		return model.Amount{}, err
	}

	if len(res.Value) == 0 {
		// 没有代币账户时余额为 0，精度从 mint 获取
		var supply tokenSupplyResult
		if err := c.call(ctx, ep, &supply, "getTokenSupply", mint.String(), c.commitment()); err != nil {
			return model.Amount{}, err
		}
		return model.Amount{Raw: new(big.Int), Decimals: supply.Value.Decimals}, nil
	}

	total := new(big.Int)
	var decimals uint8
	for _, acc := range res.Value {
		amount := acc.Account.Data.Parsed.Info.TokenAmount
		n, ok := new(big.Int).SetString(amount.Amount, 10)
		if !ok {
			return model.Amount{}, model.RPCError(nil, "代币账户 %s 返回了无效的数量 %q", acc.Pubkey, amount.Amount)
		}
		total.Add(total, n)
		decimals = amount.Decimals
	}
	return model.Amount{Raw: total, Decimals: decimals}, nil
}
