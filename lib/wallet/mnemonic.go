package wallet

import (
	"fmt"
	"strings"

	"github.com/anyproto/go-slip10"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

const solanaCoinType = 501

// NewMnemonic 生成 12 个单词的助记词
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", errors.Wrap(err, "生成熵失败")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errors.Wrap(err, "生成助记词失败")
	}
	return mnemonic, nil
}

// DerivationPath 第 i 个账户的路径，与 Phantom / solana-keygen 一致
func DerivationPath(i int) string {
	return fmt.Sprintf("m/44'/%d'/%d'/0'", solanaCoinType, i)
}

// FromMnemonic 按 m/44'/501'/i'/0' 派生前 n 个账户
func FromMnemonic(mnemonic string, n int) ([]Keypair, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("助记词无效")
	}
	if n <= 0 {
		return nil, errors.Errorf("派生数量必须大于 0: %d", n)
	}
	seed := bip39.NewSeed(mnemonic, "")

	out := make([]Keypair, 0, n)
	for i := 0; i < n; i++ {
		path := DerivationPath(i)
		node, err := slip10.DeriveForPath(path, seed)
		if err != nil {
			return nil, errors.Wrapf(err, "派生 %s 失败", path)
		}
		_, priv := node.Keypair()
		kp := newKeypair(solana.PrivateKey(priv))
		kp.Mnemonic = mnemonic
		kp.Path = path
		out = append(out, kp)
	}
	return out, nil
}
