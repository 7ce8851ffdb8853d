package model

// AccountQuery 一条余额查询
type AccountQuery struct {
	Account string
	// Token 为空表示查询原生 SOL
	Token string
	Unit  Unit
}

// IsNative 是否查询 SOL 余额
func (q AccountQuery) IsNative() bool { return q.Token == "" }

// TokenName 输出时使用的币种名称
func (q AccountQuery) TokenName() string {
	if q.IsNative() {
		return NativeTokenName
	}
	return q.Token
}

// BalanceResult 与输入一一对应的查询结果
type BalanceResult struct {
	Index    int
	Query    AccountQuery
	Amount   Amount
	Endpoint string
	Err      error
}

// Failure 实现 Outcome
func (r BalanceResult) Failure() error { return r.Err }

// Value 按查询指定的单位格式化
func (r BalanceResult) Value() string {
	if r.Err != nil {
		return ""
	}
	return r.Amount.Format(r.Query.Unit)
}
