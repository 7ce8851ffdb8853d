package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"mmsol/lib/model"
	"mmsol/lib/wallet"
)

// WalletCmd 钱包相关命令
var WalletCmd = &cobra.Command{
	Use:     "wallet",
	Aliases: []string{"w"},
	Short:   "生成账户、解析私钥、校验钱包 CSV",
}

type walletNewOptions struct {
	limit    int
	array    bool
	mnemonic bool
	output   string
}

var walletNewOpts walletNewOptions

var walletNewCmd = &cobra.Command{
	Use:   "new",
	Short: "批量生成账户",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWalletNew(cmd, walletNewOpts)
	},
}

var walletKeypairCmd = &cobra.Command{
	Use:   "keypair <private-key>",
	Short: "根据私钥输出地址、base58 私钥和数组格式私钥",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWalletKeypair(cmd, args[0])
	},
}

var verifyFile string

var walletVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "校验 CSV 文件中的地址和私钥是否匹配",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWalletVerify(cmd, verifyFile)
	},
}

func init() {
	walletNewCmd.Flags().IntVarP(&walletNewOpts.limit, "limit", "l", 5, "生成账户数量")
	walletNewCmd.Flags().BoolVar(&walletNewOpts.array, "array", false, "以数组格式输出私钥")
	walletNewCmd.Flags().BoolVar(&walletNewOpts.mnemonic, "mnemonic", false, "生成助记词并按 m/44'/501'/i'/0' 派生账户")
	walletNewCmd.Flags().StringVarP(&walletNewOpts.output, "output", "o", "", "写入 CSV 文件 (Address,Private Key,Mnemonic)")

	walletVerifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "要校验的CSV文件路径")

	WalletCmd.AddCommand(walletNewCmd)
	WalletCmd.AddCommand(walletKeypairCmd)
	WalletCmd.AddCommand(walletVerifyCmd)
}

func runWalletNew(cmd *cobra.Command, opts walletNewOptions) error {
	if opts.limit <= 0 {
		return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{fmt.Sprintf("--limit 必须大于 0: %d", opts.limit)}}
	}

	var keypairs []wallet.Keypair
	var err error
	if opts.mnemonic {
		var mnemonic string
		mnemonic, err = wallet.NewMnemonic()
		if err != nil {
			return err
		}
		keypairs, err = wallet.FromMnemonic(mnemonic, opts.limit)
	} else {
		keypairs, err = wallet.Generate(opts.limit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		if dir := filepath.Dir(opts.output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "创建目录失败")
			}
		}
		if err := wallet.WriteCSVFile(opts.output, keypairs); err != nil {
			return err
		}
		fmt.Fprintln(out, styleOK.Render("生成成功，写入文件："), opts.output)
		return nil
	}

	if opts.mnemonic {
		fmt.Fprintln(out, styleHeader.Render("助记词:"), keypairs[0].Mnemonic)
	}
	rows := make([][]string, 0, len(keypairs))
	for i, kp := range keypairs {
		key := kp.PrivateBase58
		if opts.array {
			key = kp.ArrayString()
		}
		row := []string{fmt.Sprint(i + 1), kp.Address, key}
		if opts.mnemonic {
			row = append(row, kp.Path)
		}
		rows = append(rows, row)
	}
	headers := []string{"#", "地址", "私钥"}
	if opts.mnemonic {
		headers = append(headers, "路径")
	}
	fmt.Fprintln(out, renderTable(headers, rows))
	return nil
}

type keypairView struct {
	Public        string `json:"public"`
	PrivateBase58 string `json:"private_base58"`
	PrivateArray  []int  `json:"private_arr"`
}

func runWalletKeypair(cmd *cobra.Command, key string) error {
	kp, err := wallet.ParseKeypair(key)
	if err != nil {
		return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{errors.Cause(err).Error()}}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(keypairView{Public: kp.Address, PrivateBase58: kp.PrivateBase58, PrivateArray: kp.PrivateArray})
}

func runWalletVerify(cmd *cobra.Command, path string) error {
	if path == "" {
		return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{"请使用 --file 或 -f 指定要校验的CSV文件路径"}}
	}
	file, err := os.Open(path)
	if err != nil {
		return &model.ConfigError{Source: cmd.CommandPath(), Problems: []string{fmt.Sprintf("找不到文件 %s", path)}}
	}
	defer file.Close()

	records, err := wallet.ReadCSV(file)
	if err != nil {
		return &model.ConfigError{Source: path, Problems: []string{err.Error()}}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "开始验证地址和私钥匹配...")
	results := wallet.Verify(records)
	matched := 0
	var mismatched []wallet.VerifyResult
	for _, r := range results {
		if r.OK {
			matched++
			fmt.Fprintf(out, "行 %d: %s - %s\n", r.Row, styleOK.Render("匹配成功"), r.Address)
			continue
		}
		mismatched = append(mismatched, r)
		fmt.Fprintf(out, "行 %d: %s - %s (%s)\n", r.Row, styleError.Render("匹配失败"), r.Address, r.Reason)
	}

	fmt.Fprintln(out, "\n验证结果总结:")
	fmt.Fprintf(out, "总计: %d 个地址\n", len(results))
	fmt.Fprintf(out, "匹配成功: %d 个\n", matched)
	fmt.Fprintf(out, "匹配失败: %d 个\n", len(mismatched))
	if len(mismatched) > 0 {
		fmt.Fprintln(out, "\n不匹配的地址列表:")
		for _, r := range mismatched {
			fmt.Fprintf(out, "行 %d: %s (%s)\n", r.Row, r.Address, r.Reason)
		}
		return errPartialFailure
	}
	return nil
}
