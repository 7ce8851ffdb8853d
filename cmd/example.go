package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mmsol/lib/config"
	"mmsol/lib/model"
)

// ExampleCmd 输出配置文件示例
var ExampleCmd = &cobra.Command{
	Use:       "example <balances|transfer-sol>",
	Short:     "输出命令的配置文件示例",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Kinds,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := config.Example(args[0])
		if err != nil {
			return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{err.Error()}}
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	},
}
