package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mmsol/lib/model"
	"mmsol/lib/transfer"
)

type journalOptions struct {
	all bool
}

var journalOpts journalOptions

// JournalCmd 列出需要人工核查的转账
var JournalCmd = &cobra.Command{
	Use:   "journal <dir>",
	Short: "列出已提交但未确认的转账",
	Long:  `读取 transfer-sol 的 journal_dir，列出最新状态为 submitted 或 unconfirmed 的转账，用于人工核查交易是否上链。`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJournal(cmd, args[0], journalOpts)
	},
}

func init() {
	JournalCmd.Flags().BoolVarP(&journalOpts.all, "all", "a", false, "列出所有转账的最新状态")
}

func runJournal(cmd *cobra.Command, dir string, opts journalOptions) error {
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{fmt.Sprintf("日志目录不存在: %s", dir)}}
	}
	journal, err := transfer.OpenJournal(dir)
	if err != nil {
		return err
	}
	defer journal.Close()

	var entries []transfer.Entry
	if opts.all {
		entries, err = journal.Entries()
	} else {
		entries, err = journal.Pending()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, styleOK.Render("没有需要核查的转账"))
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Batch,
			fmt.Sprint(e.Index + 1),
			e.From,
			e.To,
			model.Lamports(e.Lamports).Display().String(),
			stateCell(e.State),
			e.TxID,
			e.Time.Local().Format(time.DateTime),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"批次", "#", "发送方", "接收方", "SOL", "状态", "交易", "时间"}, rows))
	return nil
}
