package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mmsol/lib/balances"
	"mmsol/lib/config"
	"mmsol/lib/model"
	"mmsol/lib/solrpc"
)

type balancesOptions struct {
	printConfig bool
}

var balancesOpts balancesOptions

// BalancesCmd 按配置文件批量查询余额
var BalancesCmd = &cobra.Command{
	Use:   "balances <config.yml>",
	Short: "批量查询配置文件中账户的 SOL 和代币余额",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBalances(cmd, args[0], balancesOpts)
	},
}

func init() {
	BalancesCmd.Flags().BoolVarP(&balancesOpts.printConfig, "config", "c", false, "输出解析后的配置并退出")
}

func runBalances(cmd *cobra.Command, path string, opts balancesOptions) error {
	cfg, err := config.LoadBalances(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if opts.printConfig {
		return printYAML(out, cfg.Redacted())
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	rotator, err := loadProxies(ctx, cfg.Proxies, cfg.ProxiesURL)
	if err != nil {
		return err
	}
	adapter := newAdapter(solrpc.Config{RequestTimeout: cfg.Timeout, Proxies: rotator, Logger: logger})
	defer adapter.Close()

	pool := probePool(ctx, adapter, cfg.Nodes, cfg.Timeout)
	report := balances.New(adapter, pool, balances.Options{Concurrency: cfg.Concurrency, Timeout: cfg.Timeout}, logger).
		Run(ctx, cfg.Queries)

	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		rows = append(rows, []string{
			fmt.Sprint(r.Index + 1),
			r.Query.Account,
			r.Query.TokenName(),
			balanceCell(r),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"#", "账户", "币种", "余额"}, rows))
	printSummary(out, report)
	return reportErr(report)
}

func balanceCell(r model.BalanceResult) string {
	if r.Err != nil {
		return errorCell(r.Err)
	}
	v := r.Value()
	if r.Query.IsNative() && r.Query.Unit == model.UnitLamport {
		v += " lamport"
	}
	return v
}
