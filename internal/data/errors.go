package data

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 数据源层错误分类：
//   - ErrProviderUnavailable：网络/认证/限流等瞬态失败，可切换下一个数据源；
//   - ErrProviderData：返回内容畸形（空、乱序、重复时间戳），对该数据源不可重试。
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderData        = errors.New("provider data error")
	ErrUnknownProvider     = errors.New("unknown provider")
)

// UnavailableError 包装瞬态失败并携带数据源名称。
type UnavailableError struct {
	Provider string
	Cause    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return ErrProviderUnavailable }

// DataError 包装畸形数据失败并携带数据源名称。
type DataError struct {
	Provider string
	Cause    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Cause)
}

func (e *DataError) Unwrap() error { return ErrProviderData }

// DataUnavailableError 请求级终态错误：缓存与所有数据源都无法补齐指定区间。
// 错误信息必须指明未解决的 symbol/区间，不允许静默截断。
type DataUnavailableError struct {
	Symbol   string
	Interval string
	From     int64
	To       int64
	Attempts []string
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("data unavailable: %s@%s [%s, %s]",
		e.Symbol, e.Interval,
		time.UnixMilli(e.From).UTC().Format("2006-01-02"),
		time.UnixMilli(e.To).UTC().Format("2006-01-02"))
	if len(e.Attempts) > 0 {
		msg += " (" + strings.Join(e.Attempts, "; ") + ")"
	}
	return msg
}
