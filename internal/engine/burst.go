package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-sniper/gateway"
	"spot-sniper/infrastructure/logger"
	"spot-sniper/order"
)

// BurstConfig 抢单参数
type BurstConfig struct {
	Symbol        string
	QuoteAmount   decimal.Decimal
	Waves         int           // 每次报价最多发几轮
	WaveSize      int           // 每轮并发下单数
	WaveDelay     time.Duration // 一轮全部被拒后的等待
	PriceRetry    time.Duration // 取价失败后的等待
	Timeout       time.Duration // 0 表示只受 ctx 约束
	CancelSurplus bool          // 多笔被接受时撤掉多余的
}

// BurstResult 抢单结果。Accepted[0] 视为唯一有效的买单，其余为多余成交。
type BurstResult struct {
	Price    decimal.Decimal
	Qty      string
	Waves    int
	Accepted []order.Result
	Canceled int
}

// BurstPlacer 在窗口打开后以多轮并发限价单抢买。
// 每轮结果经通道汇总到调用方 goroutine，整轮收齐后才决定是否继续。
type BurstPlacer struct {
	cfg     BurstConfig
	ex      Exchange
	logger  *logger.Logger
	metrics Metrics
}

// NewBurstPlacer 创建抢单器
func NewBurstPlacer(cfg BurstConfig, ex Exchange, log *logger.Logger, m Metrics) *BurstPlacer {
	if cfg.Waves <= 0 {
		cfg.Waves = 5
	}
	if cfg.WaveSize <= 0 {
		cfg.WaveSize = 20
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &BurstPlacer{cfg: cfg, ex: ex, logger: log, metrics: m}
}

// Place 一直下单直到至少一笔买单被接受。
// 所有轮次失败后重新取价再来；只有 ctx 结束（或 Timeout）才会返回错误。
func (b *BurstPlacer) Place(ctx context.Context) (BurstResult, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	var res BurstResult
	for round := 1; ; round++ {
		last, err := b.lastPrice(ctx)
		if err != nil {
			return res, err
		}
		price, qty, err := order.BuyLimit(last, b.cfg.QuoteAmount)
		if err != nil {
			b.logger.Warn("cannot size buy order", zap.String("last", last.String()), zap.Error(err))
			if err := sleep(ctx, b.cfg.PriceRetry); err != nil {
				return res, err
			}
			continue
		}
		probe := order.NewIntent(b.cfg.Symbol, order.SideBuy, qty, order.FormatPrice(price))
		if err := probe.Validate(); err != nil {
			return res, fmt.Errorf("buy order for %s at %s: %w", b.cfg.QuoteAmount, price, err)
		}
		res.Price, res.Qty = price, qty

		b.logger.Info("burst round",
			zap.Int("round", round),
			zap.String("last", last.String()),
			zap.String("price", order.FormatPrice(price)),
			zap.String("qty", qty))

		for wave := 1; wave <= b.cfg.Waves; wave++ {
			accepted := b.fire(ctx, wave, price, qty)
			res.Waves++
			if len(accepted) > 0 {
				res.Accepted = accepted
				res.Canceled = b.handleSurplus(ctx, accepted)
				return res, nil
			}
			if err := sleep(ctx, b.cfg.WaveDelay); err != nil {
				return res, err
			}
		}
	}
}

func (b *BurstPlacer) lastPrice(ctx context.Context) (decimal.Decimal, error) {
	for {
		p, err := b.ex.LastPrice(ctx, b.cfg.Symbol)
		if err == nil {
			b.metrics.UpdateLastPrice(p.InexactFloat64())
			return p, nil
		}
		b.logger.Warn("fetch last price failed", zap.String("symbol", b.cfg.Symbol), zap.Error(err))
		if err := sleep(ctx, b.cfg.PriceRetry); err != nil {
			return decimal.Zero, err
		}
	}
}

// fire 并发发出一轮买单并收齐全部结果，返回被接受的那些（按到达顺序）。
func (b *BurstPlacer) fire(ctx context.Context, wave int, price decimal.Decimal, qty string) []order.Result {
	results := make(chan order.Result, b.cfg.WaveSize)
	px := order.FormatPrice(price)
	for i := 1; i <= b.cfg.WaveSize; i++ {
		in := order.NewIntent(b.cfg.Symbol, order.SideBuy, qty, px)
		in.Wave, in.Attempt = wave, i
		go func() {
			results <- b.ex.CreateOrder(ctx, in)
		}()
	}

	var accepted []order.Result
	for i := 0; i < b.cfg.WaveSize; i++ {
		r := <-results
		b.record(r)
		if r.Accepted {
			accepted = append(accepted, r)
		}
	}
	b.metrics.RecordWave()
	b.logger.Debug("wave finished",
		zap.Int("wave", wave),
		zap.Int("sent", b.cfg.WaveSize),
		zap.Int("accepted", len(accepted)))
	return accepted
}

func (b *BurstPlacer) record(r order.Result) {
	b.metrics.RecordOrderResult(string(r.Intent.Side), r.Accepted, r.Err, r.Latency)
	switch {
	case r.Accepted:
		b.logger.LogOrder("buy_accepted", r.Intent.LinkID, map[string]interface{}{
			"symbol":     r.Intent.Symbol,
			"side":       string(r.Intent.Side),
			"price":      r.Intent.Price,
			"qty":        r.Intent.Qty,
			"orderId":    r.OrderID,
			"wave":       r.Intent.Wave,
			"attempt":    r.Intent.Attempt,
			"latency_ms": r.Latency.Milliseconds(),
		})
	case r.Err != nil:
		b.logger.Debug("buy attempt failed",
			zap.Int("wave", r.Intent.Wave),
			zap.Int("attempt", r.Intent.Attempt),
			zap.Error(r.Err))
	default:
		b.logger.Debug("buy attempt rejected",
			zap.Int("wave", r.Intent.Wave),
			zap.Int("attempt", r.Intent.Attempt),
			zap.Int("retCode", r.RetCode),
			zap.String("retMsg", r.RetMsg))
	}
}

// handleSurplus 处理同一轮里多于一笔被接受的情况，返回成功撤销的数量。
func (b *BurstPlacer) handleSurplus(ctx context.Context, accepted []order.Result) int {
	surplus := len(accepted) - 1
	if surplus <= 0 {
		return 0
	}
	b.metrics.RecordSurplusFills(surplus)
	links := make([]string, 0, surplus)
	for _, r := range accepted[1:] {
		links = append(links, r.Intent.LinkID)
	}
	b.logger.LogAnomaly("surplus_buy_accepted", map[string]interface{}{
		"symbol":         b.cfg.Symbol,
		"count":          len(accepted),
		"keptLinkId":     accepted[0].Intent.LinkID,
		"surplusLinkIds": links,
		"cancelSurplus":  b.cfg.CancelSurplus,
	})
	if !b.cfg.CancelSurplus {
		return 0
	}

	canceled := 0
	for _, link := range links {
		if err := b.ex.CancelOrder(ctx, b.cfg.Symbol, link); err != nil {
			if gateway.IsRejection(err) {
				// 交易所拒绝撤单，多半已经成交，余额会在卖出时一并处理
				b.logger.Info("surplus order not cancelable", zap.String("orderLinkId", link), zap.Error(err))
				continue
			}
			b.logger.Warn("cancel surplus order failed", zap.String("orderLinkId", link), zap.Error(err))
			continue
		}
		canceled++
		b.metrics.RecordOrderCanceled()
	}
	return canceled
}
