package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Keypair 一个 Solana 账户
type Keypair struct {
	Address       string
	PrivateBase58 string
	PrivateArray  []int
	Mnemonic      string
	Path          string
}

// PrivateKey 转换回 solana-go 的私钥
func (k Keypair) PrivateKey() (solana.PrivateKey, error) {
	return solana.PrivateKeyFromBase58(k.PrivateBase58)
}

// ArrayString 以 [1,2,3] 的形式输出私钥，兼容 solana-keygen 的 json 文件
func (k Keypair) ArrayString() string {
	b, _ := json.Marshal(k.PrivateArray)
	return string(b)
}

func newKeypair(priv solana.PrivateKey) Keypair {
	arr := make([]int, len(priv))
	for i, b := range priv {
		arr[i] = int(b)
	}
	return Keypair{
		Address:       priv.PublicKey().String(),
		PrivateBase58: priv.String(),
		PrivateArray:  arr,
	}
}

// Generate 生成指定数量的随机账户
func Generate(n int) ([]Keypair, error) {
	if n <= 0 {
		return nil, errors.Errorf("生成数量必须大于 0: %d", n)
	}
	out := make([]Keypair, 0, n)
	for i := 0; i < n; i++ {
		priv, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, errors.Wrap(err, "生成私钥失败")
		}
		out = append(out, newKeypair(priv))
	}
	return out, nil
}

// ParseKeypair 解析 base58 或 [n,n,...] 数组格式的私钥
func ParseKeypair(s string) (Keypair, error) {
	priv, err := ParsePrivateKey(s)
	if err != nil {
		return Keypair{}, err
	}
	return newKeypair(priv), nil
}

// ParsePrivateKey 解析私钥并校验公钥部分与种子一致
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("私钥为空")
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var arr []int
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, errors.Wrap(err, "私钥数组格式错误")
		}
		raw = make([]byte, len(arr))
		for i, v := range arr {
			if v < 0 || v > 255 {
				return nil, errors.Errorf("私钥数组第 %d 个元素超出范围: %d", i, v)
			}
			raw[i] = byte(v)
		}
	} else {
		priv, err := solana.PrivateKeyFromBase58(s)
		if err != nil {
			return nil, errors.Wrap(err, "私钥 base58 格式错误")
		}
		raw = priv
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("私钥长度不正确: %d", len(raw))
	}
	expected := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(expected, raw) {
		return nil, errors.New("私钥中的公钥与种子不匹配")
	}
	return solana.PrivateKey(raw), nil
}

// ValidateAddress 检查 base58 公钥
func ValidateAddress(addr string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(addr))
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(err, "地址格式不正确: %q", addr)
	}
	return pk, nil
}
