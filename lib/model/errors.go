package model

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind 是单条记录失败的分类
type ErrorKind string

const (
	KindConfig         ErrorKind = "ConfigError"
	KindInvalidRequest ErrorKind = "InvalidRequest"
	KindNetwork        ErrorKind = "NetworkError"
	KindRPC            ErrorKind = "RpcError"
	KindUnconfirmed    ErrorKind = "UnconfirmedError"
	KindCancelled      ErrorKind = "Cancelled"
	KindUnknown        ErrorKind = "Unknown"
)

// Error 携带分类信息的错误
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// InvalidRequest 地址或金额格式错误，不可重试
func InvalidRequest(format string, args ...any) error {
	return newError(KindInvalidRequest, nil, format, args...)
}

// NetworkError 连接失败或超时，可重试
func NetworkError(err error, format string, args ...any) error {
	return newError(KindNetwork, err, format, args...)
}

// RPCError 节点返回了协议层错误
func RPCError(err error, format string, args ...any) error {
	return newError(KindRPC, err, format, args...)
}

// UnconfirmedError 交易已提交但未能确认最终性，需要人工核查
func UnconfirmedError(err error, format string, args ...any) error {
	return newError(KindUnconfirmed, err, format, args...)
}

// Cancelled 因取消而未开始执行
func Cancelled(err error) error {
	return newError(KindCancelled, err, "未执行")
}

// KindOf 返回错误分类，nil 返回空字符串
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return KindConfig
	}
	return KindUnknown
}

// IsRetryable 只有网络错误允许重试
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// ConfigError 汇总配置中的全部问题，在任何网络请求之前返回
type ConfigError struct {
	Source   string
	Problems []string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "配置错误 (%s)", e.Source)
	} else {
		b.WriteString("配置错误")
	}
	fmt.Fprintf(&b, ": 共 %d 处问题", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p)
	}
	return b.String()
}

// Add 追加一条问题
func (e *ConfigError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil 没有问题时返回 nil
func (e *ConfigError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
