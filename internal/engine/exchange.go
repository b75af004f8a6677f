package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"spot-sniper/gateway"
	"spot-sniper/infrastructure/monitor"
	"spot-sniper/order"
)

var (
	_ Exchange  = (*gateway.BybitRESTClient)(nil)
	_ PriceFeed = (*gateway.BybitTickerStream)(nil)
	_ Metrics   = (*monitor.Monitor)(nil)
)

// Exchange 是引擎依赖的交易所能力，gateway.BybitRESTClient 实现该接口。
type Exchange interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	WalletBalance(ctx context.Context, coin string) (decimal.Decimal, error)
	CreateOrder(ctx context.Context, in order.Intent) order.Result
	CancelOrder(ctx context.Context, symbol, linkID string) error
}

// PriceFeed 推送最新成交价，gateway.BybitTickerStream 实现该接口。
// ctx 结束后通道关闭。
type PriceFeed interface {
	Prices(ctx context.Context, symbol string) <-chan decimal.Decimal
}

// Metrics 是引擎上报的指标，infrastructure/monitor.Monitor 实现该接口。
type Metrics interface {
	RecordOrderResult(side string, accepted bool, err error, latency time.Duration)
	RecordOrderCanceled()
	RecordWave()
	RecordSurplusFills(n int)
	UpdateLastPrice(v float64)
	UpdateBuyPrice(v float64)
	UpdateTargetPrice(v float64)
	UpdatePhase(ordinal int)
}

type nopMetrics struct{}

func (nopMetrics) RecordOrderResult(string, bool, error, time.Duration) {}
func (nopMetrics) RecordOrderCanceled()                                 {}
func (nopMetrics) RecordWave()                                          {}
func (nopMetrics) RecordSurplusFills(int)                               {}
func (nopMetrics) UpdateLastPrice(float64)                              {}
func (nopMetrics) UpdateBuyPrice(float64)                               {}
func (nopMetrics) UpdateTargetPrice(float64)                            {}
func (nopMetrics) UpdatePhase(int)                                      {}

// sleep 等待 d 或 ctx 结束。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
