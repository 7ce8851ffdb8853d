package solrpc

import (
	"encoding/json"
	"net/http"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"mmsol/lib/model"
)

// classify 把传输层与协议层错误映射到统一的错误分类
func classify(method string, err error) error {
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
			return model.NetworkError(err, "%s: http %d", method, httpErr.StatusCode)
		}
		return model.RPCError(err, "%s: http %d", method, httpErr.StatusCode)
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return model.RPCError(err, "%s: code %d", method, rpcErr.ErrorCode())
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return model.RPCError(err, "%s: 响应格式错误", method)
	}

	if errors.Is(err, gethrpc.ErrNoResult) {
		return model.RPCError(err, "%s: 空响应", method)
	}

	return model.NetworkError(err, "%s", method)
}

// alreadyProcessed 重发的交易已经被节点执行过
func alreadyProcessed(err error) bool {
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Error()), "already been processed")
}
