package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport 网络错误或非预期 HTTP 状态。
	ErrTransport = errors.New("transport error")
	// ErrDecode 响应不是预期的 JSON。
	ErrDecode = errors.New("decode error")
	// ErrNoData retCode=0 但缺少期望字段（空列表、非数字等）。
	ErrNoData = errors.New("no data")
)

// APIError 表示交易所返回了非零 retCode。
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit error: retCode=%d retMsg=%s", e.Code, e.Msg)
}

// IsRejection 判断错误是否为交易所拒绝（而非网络/解析问题）。
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
