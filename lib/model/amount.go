package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// SolDecimals lamport 与 SOL 的换算精度
	SolDecimals     = 9
	LamportsPerSol  = 1_000_000_000
	NativeTokenName = "SOL"
)

// Unit 余额展示单位
type Unit string

const (
	UnitSol     Unit = "sol"
	UnitLamport Unit = "lamport"
)

// Amount 以最小单位保存的数量
type Amount struct {
	Raw      *big.Int
	Decimals uint8
}

// Lamports 构造原生 SOL 数量
func Lamports(v uint64) Amount {
	return Amount{Raw: new(big.Int).SetUint64(v), Decimals: SolDecimals}
}

// Display 返回按精度换算后的数值
func (a Amount) Display() decimal.Decimal {
	if a.Raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.Raw, -int32(a.Decimals))
}

// Format 按单位输出，lamport 输出原始整数
func (a Amount) Format(unit Unit) string {
	if a.Raw == nil {
		return "0"
	}
	if unit == UnitLamport {
		return a.Raw.String()
	}
	return a.Display().String()
}

// ToSmallestUnit 把可读数量换算成最小单位，超出精度的小数部分截断
func ToSmallestUnit(v decimal.Decimal, decimals uint8) *big.Int {
	return v.Shift(int32(decimals)).Truncate(0).BigInt()
}
