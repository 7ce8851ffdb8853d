package config

import (
	"strings"

	"gopkg.in/yaml.v3"

	"mmsol/lib/model"
	"mmsol/lib/wallet"
)

// Balances balances 命令的配置
type Balances struct {
	Common
	Source  string
	Lamport bool
	Queries []model.AccountQuery
}

type balancesTmp struct {
	commonTmp `yaml:",inline"`
	Lamport   bool           `yaml:"lamport"`
	Accounts  []accountEntry `yaml:"accounts"`
	Tokens    []string       `yaml:"tokens"`
}

// accountEntry 可以是单独的地址，也可以是 {account, token, unit}
type accountEntry struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Unit    string `yaml:"unit"`
}

func (a *accountEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.Account = node.Value
		return nil
	}
	type plain accountEntry
	return node.Decode((*plain)(a))
}

// LoadBalances 读取并校验 balances 配置文件
func LoadBalances(path string) (*Balances, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBalances(data, path)
}

// ParseBalances tokens 中的每个代币会对所有未指定 token 的账户再查询一次
func ParseBalances(data []byte, source string) (*Balances, error) {
	cerr := &model.ConfigError{Source: source}
	var tmp balancesTmp
	if err := decode(data, &tmp, cerr); err != nil {
		return nil, err
	}

	cfg := &Balances{
		Common:  tmp.commonTmp.build(cerr),
		Source:  source,
		Lamport: tmp.Lamport,
	}
	defaultUnit := model.UnitSol
	if tmp.Lamport {
		defaultUnit = model.UnitLamport
	}

	if len(tmp.Accounts) == 0 {
		cerr.Add("accounts: 至少需要一个账户")
	}
	var plainAccounts []string
	for i, a := range tmp.Accounts {
		account := strings.TrimSpace(a.Account)
		token := strings.TrimSpace(a.Token)
		ok := true
		if _, err := wallet.ValidateAddress(account); err != nil {
			cerr.Add("accounts[%d].account: 无效的地址 %q", i, a.Account)
			ok = false
		}
		if token != "" {
			if _, err := wallet.ValidateAddress(token); err != nil {
				cerr.Add("accounts[%d].token: 无效的代币地址 %q", i, a.Token)
				ok = false
			}
		}
		unit := defaultUnit
		switch model.Unit(strings.ToLower(strings.TrimSpace(a.Unit))) {
		case "":
		case model.UnitSol:
			unit = model.UnitSol
		case model.UnitLamport:
			unit = model.UnitLamport
		default:
			cerr.Add("accounts[%d].unit: 只支持 sol 或 lamport, 实际为 %q", i, a.Unit)
			ok = false
		}
		if !ok {
			continue
		}
		cfg.Queries = append(cfg.Queries, model.AccountQuery{Account: account, Token: token, Unit: unit})
		if token == "" {
			plainAccounts = append(plainAccounts, account)
		}
	}

	for i, raw := range tmp.Tokens {
		token := strings.TrimSpace(raw)
		if _, err := wallet.ValidateAddress(token); err != nil {
			cerr.Add("tokens[%d]: 无效的代币地址 %q", i, raw)
			continue
		}
		for _, account := range plainAccounts {
			cfg.Queries = append(cfg.Queries, model.AccountQuery{Account: account, Token: token, Unit: defaultUnit})
		}
	}

	if err := cerr.OrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type balancesView struct {
	Nodes       []string `yaml:"nodes"`
	Proxies     []string `yaml:"proxies,omitempty"`
	ProxiesURL  string   `yaml:"proxies_url,omitempty"`
	Concurrency int      `yaml:"concurrency"`
	Timeout     string   `yaml:"timeout"`
	Lamport     bool     `yaml:"lamport"`
	Queries     []string `yaml:"queries"`
}

// Redacted 用于 --config 输出，隐藏代理中的账号密码
func (b *Balances) Redacted() any {
	v := balancesView{
		Nodes:       endpointURLs(b.Nodes),
		Proxies:     redactAll(b.Proxies),
		ProxiesURL:  model.RedactURL(b.ProxiesURL),
		Concurrency: b.Concurrency,
		Timeout:     b.Timeout.String(),
		Lamport:     b.Lamport,
	}
	for _, q := range b.Queries {
		v.Queries = append(v.Queries, q.Account+" "+q.TokenName()+" ("+string(q.Unit)+")")
	}
	return v
}

func endpointURLs(eps []model.Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.String()
	}
	return out
}

func redactAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = model.RedactURL(s)
	}
	return out
}
