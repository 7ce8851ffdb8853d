package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mmsol/lib/model"
	"mmsol/lib/node"
	"mmsol/lib/proxy"
	"mmsol/lib/solrpc"
)

type nodeOptions struct {
	proxy   string
	timeout int
	stats   bool
	format  string
}

var nodeOpts nodeOptions

// NodeCmd 检查 RPC 节点的可用性和响应时间
var NodeCmd = &cobra.Command{
	Use:   "node <url>...",
	Short: "检查 Solana RPC 节点的可用性和响应时间",
	Long:  `并发检查多个 RPC 节点的健康状态、响应时间和当前 slot，结果按输入顺序输出。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, args, nodeOpts)
	},
}

func init() {
	NodeCmd.Flags().StringVarP(&nodeOpts.proxy, "proxy", "p", "", "通过代理访问节点")
	NodeCmd.Flags().IntVar(&nodeOpts.timeout, "timeout", 5, "RPC 请求超时时间（秒）")
	NodeCmd.Flags().BoolVar(&nodeOpts.stats, "stats", false, "显示统计信息")
	NodeCmd.Flags().StringVar(&nodeOpts.format, "format", "text", "输出格式 (text, json, csv)")
}

// nodeRow 单个节点的输出
type nodeRow struct {
	URL          string  `json:"url"`
	Status       string  `json:"status"`
	ResponseTime float64 `json:"response_time_ms"`
	Slot         uint64  `json:"slot,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func runNode(cmd *cobra.Command, urls []string, opts nodeOptions) error {
	cerr := &model.ConfigError{Source: cmd.CommandPath()}
	endpoints := make([]model.Endpoint, 0, len(urls))
	for i, raw := range urls {
		u := strings.TrimSpace(raw)
		if !model.ValidateHTTPURL(u) {
			cerr.Add("第 %d 个节点地址无效: %q", i+1, raw)
			continue
		}
		endpoints = append(endpoints, model.Endpoint{URL: u, Proxy: strings.TrimSpace(opts.proxy)})
	}
	if opts.proxy != "" && !proxy.Validate(strings.TrimSpace(opts.proxy)) {
		cerr.Add("无效的代理地址 %q", model.RedactURL(opts.proxy))
	}
	if opts.timeout <= 0 {
		cerr.Add("--timeout 必须大于 0")
	}
	switch opts.format {
	case "text", "json", "csv":
	default:
		cerr.Add("不支持的输出格式 %q (text, json, csv)", opts.format)
	}
	if err := cerr.OrNil(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	timeout := time.Duration(opts.timeout) * time.Second
	adapter := newAdapter(solrpc.Config{RequestTimeout: timeout, Logger: logger})
	defer adapter.Close()

	results := node.NewProber(adapter, timeout, logger).Probe(ctx, endpoints)

	out := cmd.OutOrStdout()
	var err error
	switch opts.format {
	case "json":
		err = outputJSON(out, results)
	case "csv":
		err = outputCSV(out, results)
	default:
		outputText(out, results, opts.stats)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		if !r.Healthy() {
			return errPartialFailure
		}
	}
	return nil
}

func toNodeRow(r node.ProbeResult) nodeRow {
	row := nodeRow{
		URL:          r.Endpoint.URL,
		Status:       string(r.Health.Status),
		ResponseTime: millis(r.Health.Latency),
		Slot:         r.Health.Slot,
	}
	if r.Health.Err != nil {
		row.Error = r.Health.Err.Error()
	}
	return row
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// outputJSON 以 JSON 格式输出结果
func outputJSON(w io.Writer, results []node.ProbeResult) error {
	rows := make([]nodeRow, len(results))
	for i, r := range results {
		rows[i] = toNodeRow(r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// outputCSV 以 CSV 格式输出结果
func outputCSV(w io.Writer, results []node.ProbeResult) error {
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"URL", "状态", "响应时间(ms)", "Slot", "错误"})
	for _, r := range results {
		row := toNodeRow(r)
		slot := ""
		if row.Slot > 0 {
			slot = fmt.Sprint(row.Slot)
		}
		_ = writer.Write([]string{row.URL, row.Status, fmt.Sprintf("%.2f", row.ResponseTime), slot, row.Error})
	}
	writer.Flush()
	return writer.Error()
}

// outputText 以表格输出结果
func outputText(w io.Writer, results []node.ProbeResult, showStats bool) {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		row := toNodeRow(r)
		status := styleOK.Render(row.Status)
		slot := fmt.Sprint(row.Slot)
		if !r.Healthy() {
			status = styleError.Render(row.Status)
			slot = row.Error
		}
		rows = append(rows, []string{fmt.Sprint(i + 1), row.URL, status, fmt.Sprintf("%.2f ms", row.ResponseTime), slot})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "URL", "状态", "响应时间", "Slot"}, rows))

	if !showStats {
		return
	}
	stats := node.Summarize(results)
	fmt.Fprintf(w, "\n统计信息: %d/%d 个节点可用\n", stats.Healthy, stats.Total)
	if stats.Healthy == 0 {
		return
	}
	fmt.Fprintf(w, "- 平均响应时间: %.2f ms\n", millis(stats.Average))
	fmt.Fprintf(w, "- 最快节点: %s (%.2f ms)\n", stats.Fastest.Endpoint.URL, millis(stats.Fastest.Health.Latency))
	fmt.Fprintf(w, "- 最慢节点: %s (%.2f ms)\n", stats.Slowest.Endpoint.URL, millis(stats.Slowest.Health.Latency))
}
