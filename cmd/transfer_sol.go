package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mmsol/lib/config"
	"mmsol/lib/model"
	"mmsol/lib/solrpc"
	"mmsol/lib/transfer"
)

type transferSolOptions struct {
	printConfig bool
}

var transferSolOpts transferSolOptions

// TransferSolCmd 按配置文件批量转账 SOL
var TransferSolCmd = &cobra.Command{
	Use:   "transfer-sol <config.yml>",
	Short: "按配置文件批量转账 SOL",
	Long: `按配置文件批量转账 SOL。同一发送方的转账按顺序执行，不同发送方并发执行。
已经拿到交易签名的转账不会重发，未确认的交易需要通过 journal 命令人工核查。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransferSol(cmd, args[0], transferSolOpts)
	},
}

func init() {
	TransferSolCmd.Flags().BoolVarP(&transferSolOpts.printConfig, "config", "c", false, "输出解析后的配置并退出")
}

func runTransferSol(cmd *cobra.Command, path string, opts transferSolOptions) error {
	cfg, err := config.LoadTransfers(path)
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

	var recorder transfer.Recorder
	if cfg.JournalDir != "" {
		journal, err := transfer.OpenJournal(cfg.JournalDir)
		if err != nil {
			return err
		}
		defer journal.Close()
		recorder = journal
	}

	adapter := newAdapter(solrpc.Config{
		RequestTimeout: cfg.Timeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.PollInterval,
		Commitment:     cfg.Commitment,
		Proxies:        rotator,
		Keyring:        cfg.Keyring,
		Logger:         logger,
	})
	defer adapter.Close()

	pool := probePool(ctx, adapter, cfg.Nodes, cfg.Timeout)
	endpoint, _, _ := pool.Pick(0)
	logger.Info("使用节点", zap.Stringer("endpoint", endpoint))

	report := transfer.New(adapter, endpoint, transfer.Options{
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Delay:       cfg.Delay,
	}, recorder, logger).Run(ctx, cfg.Requests)

	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		rows = append(rows, []string{
			fmt.Sprint(r.Index + 1),
			r.Request.From,
			r.Request.To,
			r.Request.SolAmount().String(),
			stateCell(r.State),
			r.TxID,
			errorCell(r.Err),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"#", "发送方", "接收方", "SOL", "状态", "交易", "错误"}, rows))
	printSummary(out, report)
	return reportErr(report)
}

func stateCell(s model.TransferState) string {
	switch s {
	case model.StateConfirmed:
		return styleOK.Render(string(s))
	case model.StateFailed:
		return styleError.Render(string(s))
	default:
		return styleWarn.Render(string(s))
	}
}
