package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"mmsol/lib/model"
	"mmsol/lib/solrpc"
	"mmsol/lib/wallet"
)

const (
	DefaultMaxRetries     = 2
	DefaultRetryDelay     = time.Second
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = 2 * time.Second
)

// Transfers transfer-sol 命令的配置
type Transfers struct {
	Common
	Source         string
	MaxRetries     int
	RetryDelay     time.Duration
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Commitment     string
	Delay          time.Duration
	JournalDir     string
	Keyring        *wallet.Keyring
	Requests       []model.TransferRequest
}

type transfersTmp struct {
	commonTmp      `yaml:",inline"`
	MaxRetries     *int            `yaml:"max_retries"`
	RetryDelay     string          `yaml:"retry_delay"`
	ConfirmTimeout string          `yaml:"confirm_timeout"`
	PollInterval   string          `yaml:"poll_interval"`
	Commitment     string          `yaml:"commitment"`
	Delay          string          `yaml:"delay"`
	JournalDir     string          `yaml:"journal_dir"`
	PrivateKeys    []string        `yaml:"private_keys"`
	PrivateKeysCSV string          `yaml:"private_keys_csv"`
	Transfers      []transferEntry `yaml:"transfers"`
}

type transferEntry struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
	Memo   string `yaml:"memo"`
}

// LoadTransfers 读取并校验 transfer-sol 配置文件
func LoadTransfers(path string) (*Transfers, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTransfers(data, path)
}

func ParseTransfers(data []byte, source string) (*Transfers, error) {
	cerr := &model.ConfigError{Source: source}
	var tmp transfersTmp
	if err := decode(data, &tmp, cerr); err != nil {
		return nil, err
	}

	cfg := &Transfers{
		Common:         tmp.commonTmp.build(cerr),
		Source:         source,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     parseDuration(cerr, "retry_delay", tmp.RetryDelay, DefaultRetryDelay),
		ConfirmTimeout: parseDuration(cerr, "confirm_timeout", tmp.ConfirmTimeout, DefaultConfirmTimeout),
		PollInterval:   parseDuration(cerr, "poll_interval", tmp.PollInterval, DefaultPollInterval),
		Delay:          parseDuration(cerr, "delay", tmp.Delay, 0),
		JournalDir:     strings.TrimSpace(tmp.JournalDir),
		Keyring:        wallet.NewKeyring(),
	}
	if tmp.MaxRetries != nil {
		if *tmp.MaxRetries < 0 {
			cerr.Add("max_retries: 不能为负数: %d", *tmp.MaxRetries)
		} else {
			cfg.MaxRetries = *tmp.MaxRetries
		}
	}

	switch c := strings.ToLower(strings.TrimSpace(tmp.Commitment)); c {
	case "":
		cfg.Commitment = solrpc.CommitmentConfirmed
	case solrpc.CommitmentProcessed, solrpc.CommitmentConfirmed, solrpc.CommitmentFinalized:
		cfg.Commitment = c
	default:
		cerr.Add("commitment: 只支持 processed, confirmed 或 finalized, 实际为 %q", tmp.Commitment)
	}

	for i, raw := range tmp.PrivateKeys {
		key, err := wallet.ParsePrivateKey(raw)
		if err != nil {
			// 不输出私钥内容
			cerr.Add("private_keys[%d]: %s", i, errors.Cause(err).Error())
			continue
		}
		cfg.Keyring.Add(key)
	}

	if p := strings.TrimSpace(tmp.PrivateKeysCSV); p != "" {
		loadKeysCSV(cerr, resolvePath(source, p), cfg.Keyring)
	}

	if len(tmp.Transfers) == 0 {
		cerr.Add("transfers: 至少需要一笔转账")
	}
	for i, t := range tmp.Transfers {
		req, ok := buildTransfer(cerr, i, t, cfg.Keyring)
		if ok {
			cfg.Requests = append(cfg.Requests, req)
		}
	}

	if err := cerr.OrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadKeysCSV 从 wallet new -o 生成的 CSV 中读取私钥
func loadKeysCSV(cerr *model.ConfigError, path string, keyring *wallet.Keyring) {
	file, err := os.Open(path)
	if err != nil {
		cerr.Add("private_keys_csv: 无法打开 %s: %v", path, err)
		return
	}
	defer file.Close()

	records, err := wallet.ReadCSV(file)
	if err != nil {
		cerr.Add("private_keys_csv: %v", err)
		return
	}
	for _, r := range wallet.Verify(records) {
		if !r.OK {
			cerr.Add("private_keys_csv 第 %d 行: %s", r.Row, r.Reason)
			continue
		}
		key, _ := wallet.ParsePrivateKey(records[r.Row-2].PrivateKey)
		keyring.Add(key)
	}
}

// resolvePath 相对路径按配置文件所在目录解析
func resolvePath(source, p string) string {
	if filepath.IsAbs(p) || source == "" {
		return p
	}
	return filepath.Join(filepath.Dir(source), p)
}

func buildTransfer(cerr *model.ConfigError, i int, t transferEntry, keyring *wallet.Keyring) (model.TransferRequest, bool) {
	ok := true
	from, err := wallet.ValidateAddress(t.From)
	if err != nil {
		cerr.Add("transfers[%d].from: 无效的地址 %q", i, t.From)
		ok = false
	} else if _, found := keyring.Get(from); !found {
		cerr.Add("transfers[%d].from: private_keys 中没有 %s 的私钥", i, from)
		ok = false
	}
	to, err := wallet.ValidateAddress(t.To)
	if err != nil {
		cerr.Add("transfers[%d].to: 无效的地址 %q", i, t.To)
		ok = false
	}
	lamports, err := ParseLamports(t.Amount)
	if err != nil {
		cerr.Add("transfers[%d].amount: %v", i, err)
		ok = false
	}
	if !ok {
		return model.TransferRequest{}, false
	}
	return model.TransferRequest{
		From:     from.String(),
		To:       to.String(),
		Lamports: lamports,
		Memo:     t.Memo,
	}, true
}

// ParseLamports 解析 "0.5 sol"、"1000 lamport" 或整数 lamport
func ParseLamports(raw string) (uint64, error) {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 || len(fields) > 2 {
		return 0, errors.Errorf("无效的金额 %q (示例: 0.5 sol, 1000 lamport)", raw)
	}
	value, err := decimal.NewFromString(fields[0])
	if err != nil {
		return 0, errors.Errorf("无效的金额 %q", raw)
	}

	unit := model.UnitLamport
	if len(fields) == 2 {
		unit = model.Unit(strings.TrimSuffix(fields[1], "s"))
	}

	var v *big.Int
	switch unit {
	case model.UnitSol:
		v = model.ToSmallestUnit(value, model.SolDecimals)
	case model.UnitLamport:
		if !value.IsInteger() {
			return 0, errors.Errorf("lamport 必须是整数: %q", raw)
		}
		v = value.BigInt()
	default:
		return 0, errors.Errorf("未知的金额单位 %q", fields[1])
	}

	if v.Sign() <= 0 {
		return 0, errors.Errorf("金额必须大于 0: %q", raw)
	}
	if !v.IsUint64() {
		return 0, errors.Errorf("金额超出范围: %q", raw)
	}
	return v.Uint64(), nil
}

type transfersView struct {
	Nodes          []string `yaml:"nodes"`
	Proxies        []string `yaml:"proxies,omitempty"`
	ProxiesURL     string   `yaml:"proxies_url,omitempty"`
	Concurrency    int      `yaml:"concurrency"`
	Timeout        string   `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryDelay     string   `yaml:"retry_delay"`
	ConfirmTimeout string   `yaml:"confirm_timeout"`
	PollInterval   string   `yaml:"poll_interval"`
	Commitment     string   `yaml:"commitment"`
	Delay          string   `yaml:"delay"`
	JournalDir     string   `yaml:"journal_dir,omitempty"`
	PrivateKeys    []string `yaml:"private_keys"`
	Transfers      []string `yaml:"transfers"`
}

// Redacted 私钥只显示对应的地址
func (t *Transfers) Redacted() any {
	v := transfersView{
		Nodes:          endpointURLs(t.Nodes),
		Proxies:        redactAll(t.Proxies),
		ProxiesURL:     model.RedactURL(t.ProxiesURL),
		Concurrency:    t.Concurrency,
		Timeout:        t.Timeout.String(),
		MaxRetries:     t.MaxRetries,
		RetryDelay:     t.RetryDelay.String(),
		ConfirmTimeout: t.ConfirmTimeout.String(),
		PollInterval:   t.PollInterval.String(),
		Commitment:     t.Commitment,
		Delay:          t.Delay.String(),
		JournalDir:     t.JournalDir,
	}
	for _, pub := range t.Keyring.Addresses() {
		v.PrivateKeys = append(v.PrivateKeys, pub.String()+": ***")
	}
	for _, r := range t.Requests {
		line := r.From + " -> " + r.To + " " + r.SolAmount().String() + " SOL"
		if r.Memo != "" {
			line += " memo=" + r.Memo
		}
		v.Transfers = append(v.Transfers, line)
	}
	return v
}
