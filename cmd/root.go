package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mmsol/lib/model"
)

const (
	ExitOK      = 0
	ExitPartial = 1
	ExitConfig  = 2
	ExitFatal   = 3

	envRPCURL     = "MM_SOL_RPC_URL"
	envProxiesURL = "MM_SOL_PROXIES_URL"
)

// Version 构建时通过 -ldflags 覆盖
var Version = "dev"

// errPartialFailure 部分记录失败，结果已经输出
var errPartialFailure = errors.New("部分记录失败")

var (
	logLevel string
	logger   = zap.NewNop()
)

// RootCmd 是 mm-sol 的根命令
var RootCmd = &cobra.Command{
	Use:           "mm-sol",
	Short:         "Solana 批量余额查询与转账工具",
	Long:          `查询 SOL 和代币余额、批量转账 SOL、生成钱包以及检查 RPC 节点。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logLevel)
		if err != nil {
			return &model.ConfigError{Source: "--log-level", Problems: []string{err.Error()}}
		}
		logger = l
		return nil
	},
}

func init() {
	RootCmd.Version = Version
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "日志级别 (debug, info, warn, error)")
	RootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &model.ConfigError{Source: c.CommandPath(), Problems: []string{err.Error()}}
	})

	RootCmd.AddCommand(BalanceCmd)
	RootCmd.AddCommand(BalancesCmd)
	RootCmd.AddCommand(TransferSolCmd)
	RootCmd.AddCommand(NodeCmd)
	RootCmd.AddCommand(WalletCmd)
	RootCmd.AddCommand(JournalCmd)
	RootCmd.AddCommand(ExampleCmd)
}

// Execute 运行根命令并返回进程退出码
func Execute() int {
	wrapArgs.Do(func() { argsAsConfigError(RootCmd) })
	err := RootCmd.Execute()
	_ = logger.Sync()

	code := exitCode(err)
	if code != ExitOK && code != ExitPartial {
		fmt.Fprintln(RootCmd.ErrOrStderr(), styleError.Render("错误:"), err)
	}
	return code
}

var wrapArgs sync.Once

// argsAsConfigError 参数个数不对与 flag 错误一样按配置错误处理。
// 子命令在各自文件的 init 中注册，所以在 Execute 时再包装。
func argsAsConfigError(c *cobra.Command) {
	if validate := c.Args; validate != nil {
		c.Args = func(cmd *cobra.Command, args []string) error {
			if err := validate(cmd, args); err != nil {
				return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{err.Error()}}
			}
			return nil
		}
	}
	for _, sub := range c.Commands() {
		argsAsConfigError(sub)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errPartialFailure):
		return ExitPartial
	case model.KindOf(err) == model.KindConfig:
		return ExitConfig
	default:
		return ExitFatal
	}
}

// newLogger 日志输出到 stderr，不影响 stdout 上的结果
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "无效的日志级别 %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

// signalContext Ctrl+C 后停止发起新的请求
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// envDefault 参数为空时使用环境变量
func envDefault(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}
