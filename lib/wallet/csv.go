package wallet

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

var csvHeader = []string{"Address", "Private Key", "Mnemonic"}

// Record CSV 中的一行钱包信息
type Record struct {
	Address    string
	PrivateKey string
	Mnemonic   string
}

// WriteCSV 写入表头和钱包
func WriteCSV(w io.Writer, keypairs []Keypair) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return errors.Wrap(err, "写入表头失败")
	}
	for _, kp := range keypairs {
		if err := writer.Write([]string{kp.Address, kp.PrivateBase58, kp.Mnemonic}); err != nil {
			return errors.Wrapf(err, "写入钱包 %s 失败", kp.Address)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile 创建文件并写入
func WriteCSVFile(path string, keypairs []Keypair) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "创建文件失败")
	}
	defer file.Close()
	return WriteCSV(file, keypairs)
}

// ReadCSV 读取钱包 CSV，校验表头
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "读取 CSV 文件失败")
	}
	if len(records) < 2 {
		return nil, errors.New("CSV 文件为空或格式不正确")
	}

	headers := records[0]
	if len(headers) < 2 || headers[0] != csvHeader[0] || headers[1] != csvHeader[1] {
		return nil, errors.Errorf("CSV 表头不正确，期望: %v, 实际: %v", csvHeader, headers)
	}

	out := make([]Record, 0, len(records)-1)
	for _, row := range records[1:] {
		rec := Record{}
		if len(row) > 0 {
			rec.Address = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			rec.PrivateKey = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			rec.Mnemonic = strings.TrimSpace(row[2])
		}
		out = append(out, rec)
	}
	return out, nil
}

// VerifyResult 单行校验结果，Row 为 CSV 中的行号（含表头）
type VerifyResult struct {
	Row     int
	Address string
	OK      bool
	Reason  string
}

// Verify 校验每行地址与私钥是否匹配
func Verify(records []Record) []VerifyResult {
	out := make([]VerifyResult, 0, len(records))
	for i, rec := range records {
		ok, reason := checkAddressPrivateKey(rec.Address, rec.PrivateKey)
		out = append(out, VerifyResult{Row: i + 2, Address: rec.Address, OK: ok, Reason: reason})
	}
	return out
}

func checkAddressPrivateKey(address, privateKey string) (bool, string) {
	if address == "" {
		return false, "地址为空"
	}
	if privateKey == "" {
		return false, "私钥为空"
	}
	pub, err := ValidateAddress(address)
	if err != nil {
		return false, "地址格式不正确"
	}
	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return false, "私钥格式错误"
	}
	if !priv.PublicKey().Equals(pub) {
		return false, "地址与私钥不匹配"
	}
	return true, "地址匹配"
}
