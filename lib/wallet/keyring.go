package wallet

import (
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Keyring 按地址保存签名私钥
type Keyring struct {
	mu   sync.RWMutex
	keys map[solana.PublicKey]solana.PrivateKey
}

func NewKeyring(keys ...solana.PrivateKey) *Keyring {
	k := &Keyring{keys: make(map[solana.PublicKey]solana.PrivateKey, len(keys))}
	for _, key := range keys {
		k.Add(key)
	}
	return k
}

// Add 加入私钥，返回对应地址
func (k *Keyring) Add(key solana.PrivateKey) solana.PublicKey {
	pub := key.PublicKey()
	k.mu.Lock()
	k.keys[pub] = key
	k.mu.Unlock()
	return pub
}

// Get 查找地址对应的私钥
func (k *Keyring) Get(pub solana.PublicKey) (solana.PrivateKey, bool) {
	if k == nil {
		return nil, false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[pub]
	return key, ok
}

// Signer 供 Transaction.Sign 使用
func (k *Keyring) Signer() func(solana.PublicKey) *solana.PrivateKey {
	return func(pub solana.PublicKey) *solana.PrivateKey {
		key, ok := k.Get(pub)
		if !ok {
			return nil
		}
		return &key
	}
}

func (k *Keyring) Len() int {
	if k == nil {
		return 0
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Addresses 按地址排序返回所有公钥
func (k *Keyring) Addresses() []solana.PublicKey {
	if k == nil {
		return nil
	}
	k.mu.RLock()
	out := make([]solana.PublicKey, 0, len(k.keys))
	for pub := range k.keys {
		out = append(out, pub)
	}
	k.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
