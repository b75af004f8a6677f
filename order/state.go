package order

import (
	"time"

	"github.com/google/uuid"
)

// Side 表示买卖方向，取值与交易所字段一致。
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// TypeLimit 是唯一使用的订单类型。
const TypeLimit = "Limit"

// Intent 描述一次下单尝试。每次尝试都必须带新的 LinkID，
// 否则交易所会把并发的同价同量订单当成重复请求。
type Intent struct {
	Symbol string
	Side   Side
	Type   string
	Qty    string
	Price  string
	LinkID string

	// 仅用于本地日志/统计，不会发送到交易所。
	Wave    int
	Attempt int
}

// NewIntent 生成带新 LinkID 的限价单意图。
func NewIntent(symbol string, side Side, qty, price string) Intent {
	return Intent{
		Symbol: symbol,
		Side:   side,
		Type:   TypeLimit,
		Qty:    qty,
		Price:  price,
		LinkID: uuid.NewString(),
	}
}

// Result 是单次下单尝试的结果。
type Result struct {
	Intent   Intent
	Accepted bool
	RetCode  int
	RetMsg   string
	OrderID  string
	Err      error
	Latency  time.Duration
}
