package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mmsol/lib/balances"
	"mmsol/lib/config"
	"mmsol/lib/model"
	"mmsol/lib/solrpc"
)

type balanceOptions struct {
	token      string
	url        string
	proxiesURL string
	lamport    bool
}

var balanceOpts balanceOptions

// BalanceCmd 查询单个账户的余额
var BalanceCmd = &cobra.Command{
	Use:   "balance <wallet>",
	Short: "查询单个账户的 SOL 或代币余额",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBalance(cmd, args[0], balanceOpts)
	},
}

func init() {
	BalanceCmd.Flags().StringVarP(&balanceOpts.token, "token", "t", "", "代币 mint 地址，不填查询 SOL")
	BalanceCmd.Flags().StringVarP(&balanceOpts.url, "url", "u", "", "RPC 节点地址 (默认读取 "+envRPCURL+")")
	BalanceCmd.Flags().StringVar(&balanceOpts.proxiesURL, "proxies-url", "", "代理列表地址 (默认读取 "+envProxiesURL+")")
	BalanceCmd.Flags().BoolVarP(&balanceOpts.lamport, "lamport", "l", false, "以 lamport 输出")
}

func runBalance(cmd *cobra.Command, account string, opts balanceOptions) error {
	rpcURL := strings.TrimSpace(envDefault(opts.url, envRPCURL))
	proxiesURL := strings.TrimSpace(envDefault(opts.proxiesURL, envProxiesURL))

	cerr := &model.ConfigError{Source: cmd.CommandPath()}
	switch {
	case rpcURL == "":
		cerr.Add("需要 --url 或环境变量 %s", envRPCURL)
	case !model.ValidateHTTPURL(rpcURL):
		cerr.Add("无效的节点地址 %q", rpcURL)
	}
	if proxiesURL != "" && !model.ValidateHTTPURL(proxiesURL) {
		cerr.Add("无效的代理列表地址 %q", model.RedactURL(proxiesURL))
	}
	if err := cerr.OrNil(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	rotator, err := loadProxies(ctx, nil, proxiesURL)
	if err != nil {
		return err
	}
	adapter := newAdapter(solrpc.Config{RequestTimeout: config.DefaultTimeout, Proxies: rotator, Logger: logger})
	defer adapter.Close()

	unit := model.UnitSol
	if opts.lamport {
		unit = model.UnitLamport
	}
	query := model.AccountQuery{Account: strings.TrimSpace(account), Token: strings.TrimSpace(opts.token), Unit: unit}

	pool := probePool(ctx, adapter, []model.Endpoint{{URL: rpcURL}}, config.DefaultTimeout)
	report := balances.New(adapter, pool, balances.Options{Concurrency: 1}, logger).
		Run(ctx, []model.AccountQuery{query})

	res := report.Results[0]
	if res.Err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorCell(res.Err))
		return errPartialFailure
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Value())
	return nil
}
