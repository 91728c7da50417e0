package errs

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindNetwork
	KindValidation
	KindTransaction
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindTransaction:
		return "transaction"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

var (
	ErrGasUnavailable    = errors.New("gas recommendation unavailable")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrQueueClosed       = errors.New("queue is shut down")
	ErrCancelled         = errors.New("cancelled")

	// 已广播交易的终态失败, 重新提交会再付一次 gas
	ErrReverted  = errors.New("transaction reverted")
	ErrNoReceipt = errors.New("no receipt")
)

// Error 带分类的错误, Op 记录出错的操作
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Configuration(op string, err error) error { return newError(KindConfiguration, op, err) }
func Network(op string, err error) error       { return newError(KindNetwork, op, err) }
func Validation(op string, err error) error    { return newError(KindValidation, op, err) }
func Transaction(op string, err error) error   { return newError(KindTransaction, op, err) }
func Internal(op string, err error) error      { return newError(KindInternal, op, err) }

// Validationf 构造校验错误
func Validationf(op, format string, args ...interface{}) error {
	return Validation(op, fmt.Errorf(format, args...))
}

// Configurationf 构造配置错误
func Configurationf(op, format string, args ...interface{}) error {
	return Configuration(op, fmt.Errorf(format, args...))
}

// KindOf 返回错误链上最外层的分类
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable 网络错误和广播前被节点拒绝的交易错误可以重试
// 链上回滚、无回执、校验和配置错误不可重试
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrCancelled) || errors.Is(err, ErrReverted) || errors.Is(err, ErrNoReceipt) {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindTransaction:
		return true
	default:
		return false
	}
}
