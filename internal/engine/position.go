package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spot-sniper/infrastructure/logger"
	"spot-sniper/order"
)

// PositionConfig 持仓阶段参数
type PositionConfig struct {
	Symbol         string
	Coin           string
	SellMultiplier decimal.Decimal
	BalanceRetry   time.Duration // 余额/价格查询失败后的等待，也是确认成交的轮询间隔
	PriceRetry     time.Duration
	WatchPoll      time.Duration // 盯价短周期
	WatchBurst     int           // 每个长周期内的短周期次数
	WatchPause     time.Duration // 长周期间隔
	SellRetry      time.Duration
}

// Exit 记录一次持仓从确认成交到卖出的关键价格。
type Exit struct {
	// ApproxBuyPrice 是余额首次变为正数那一轮并发采样到的最新价，已按价格档位截断，
	// 止盈目标价由它乘以倍数得到。它与成交本身没有因果关系，只是买入价的近似值。
	ApproxBuyPrice decimal.Decimal
	Target         decimal.Decimal
	TriggerPrice   decimal.Decimal // 触发卖出时截断后的最新价
	SellPrice      decimal.Decimal
	SellQty        string
	SellLinkID     string
	SellAttempts   int
}

// Position 驱动 AWAITING_FILL → WATCHING_PRICE → SELLING → DONE。
type Position struct {
	cfg     PositionConfig
	ex      Exchange
	feed    PriceFeed
	sm      *order.StateMachine
	logger  *logger.Logger
	metrics Metrics

	// 基线固定为 0，启动前已持有的同币余额会被直接当作成交
	baseline decimal.Decimal
}

// NewPosition 创建持仓状态机驱动。feed 为 nil 时盯价使用 REST 轮询。
func NewPosition(cfg PositionConfig, ex Exchange, feed PriceFeed, sm *order.StateMachine, log *logger.Logger, m Metrics) *Position {
	if cfg.WatchBurst <= 0 {
		cfg.WatchBurst = 10
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Position{
		cfg:      cfg,
		ex:       ex,
		feed:     feed,
		sm:       sm,
		logger:   log,
		metrics:  m,
		baseline: decimal.Zero,
	}
}

// Run 从 AWAITING_FILL 开始推进到 DONE。
func (p *Position) Run(ctx context.Context) (Exit, error) {
	var exit Exit
	if cur := p.sm.Current(); cur != order.PhaseAwaitingFill {
		return exit, fmt.Errorf("position must start in %s, got %s", order.PhaseAwaitingFill, cur)
	}

	approx, err := p.AwaitFill(ctx)
	if err != nil {
		return exit, fmt.Errorf("await fill: %w", err)
	}
	exit.ApproxBuyPrice = approx
	exit.Target = approx.Mul(p.cfg.SellMultiplier)
	if err := p.sm.Advance(order.PhaseWatching); err != nil {
		return exit, err
	}

	trigger, err := p.WatchPrice(ctx, exit.Target)
	if err != nil {
		return exit, fmt.Errorf("watch price: %w", err)
	}
	exit.TriggerPrice = trigger
	if err := p.sm.Advance(order.PhaseSelling); err != nil {
		return exit, err
	}

	res, attempts, err := p.Sell(ctx, trigger)
	exit.SellAttempts = attempts
	if err != nil {
		return exit, fmt.Errorf("sell: %w", err)
	}
	px, _ := decimal.NewFromString(res.Intent.Price)
	exit.SellPrice = px
	exit.SellQty = res.Intent.Qty
	exit.SellLinkID = res.Intent.LinkID
	if err := p.sm.Advance(order.PhaseDone); err != nil {
		return exit, err
	}
	return exit, nil
}

// AwaitFill 每轮同时查询余额与最新价并等两者都返回，余额高于基线即视为成交，
// 返回同一轮采样到的最新价（按档位截断）作为近似买入价。
func (p *Position) AwaitFill(ctx context.Context) (decimal.Decimal, error) {
	for {
		var balance, price decimal.Decimal
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			balance, err = p.pollBalance(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			price, err = p.pollPrice(gctx)
			if err != nil {
				return err
			}
			return sleep(gctx, p.cfg.PriceRetry)
		})
		if err := g.Wait(); err != nil {
			return decimal.Zero, err
		}

		if balance.GreaterThan(p.baseline) {
			approx := order.TruncatePrice(price)
			p.metrics.UpdateBuyPrice(approx.InexactFloat64())
			p.logger.LogTrade("fill_detected", map[string]interface{}{
				"symbol":         p.cfg.Symbol,
				"coin":           p.cfg.Coin,
				"balance":        balance.String(),
				"last":           price.String(),
				"approxBuyPrice": approx.String(),
			})
			return approx, nil
		}
		if err := sleep(ctx, p.cfg.BalanceRetry); err != nil {
			return decimal.Zero, err
		}
	}
}

func (p *Position) pollBalance(ctx context.Context) (decimal.Decimal, error) {
	for {
		b, err := p.ex.WalletBalance(ctx, p.cfg.Coin)
		if err == nil {
			return b, nil
		}
		p.logger.Warn("fetch wallet balance failed", zap.String("coin", p.cfg.Coin), zap.Error(err))
		if err := sleep(ctx, p.cfg.BalanceRetry); err != nil {
			return decimal.Zero, err
		}
	}
}

func (p *Position) pollPrice(ctx context.Context) (decimal.Decimal, error) {
	for {
		px, err := p.ex.LastPrice(ctx, p.cfg.Symbol)
		if err == nil {
			p.metrics.UpdateLastPrice(px.InexactFloat64())
			return px, nil
		}
		p.logger.Warn("fetch last price failed", zap.String("symbol", p.cfg.Symbol), zap.Error(err))
		if err := sleep(ctx, p.cfg.PriceRetry); err != nil {
			return decimal.Zero, err
		}
	}
}

// TargetReached 以截断后的价格与目标价比较，达到即触发。
func TargetReached(last, target decimal.Decimal) (decimal.Decimal, bool) {
	tp := order.TruncatePrice(last)
	return tp, tp.GreaterThanOrEqual(target)
}

// WatchPrice 等待截断后的最新价达到 target，返回触发时的截断价格。
func (p *Position) WatchPrice(ctx context.Context, target decimal.Decimal) (decimal.Decimal, error) {
	p.metrics.UpdateTargetPrice(target.InexactFloat64())
	p.logger.LogTrade("watch_started", map[string]interface{}{
		"symbol": p.cfg.Symbol,
		"target": target.String(),
		"feed":   p.feed != nil,
	})
	if p.feed != nil {
		return p.watchFeed(ctx, target)
	}
	return p.watchPoll(ctx, target)
}

func (p *Position) watchPoll(ctx context.Context, target decimal.Decimal) (decimal.Decimal, error) {
	for {
		for i := 0; i < p.cfg.WatchBurst; i++ {
			last, err := p.ex.LastPrice(ctx, p.cfg.Symbol)
			if err != nil {
				p.logger.Debug("watch price fetch failed", zap.Error(err))
			} else if tp, ok := p.check(last, target); ok {
				return tp, nil
			}
			if err := sleep(ctx, p.cfg.WatchPoll); err != nil {
				return decimal.Zero, err
			}
		}
		if err := sleep(ctx, p.cfg.WatchPause); err != nil {
			return decimal.Zero, err
		}
	}
}

// watchFeed 以推送为主；超过 WatchPause 没有推送（断线重连中）时用 REST 补查一次。
func (p *Position) watchFeed(ctx context.Context, target decimal.Decimal) (decimal.Decimal, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	prices := p.feed.Prices(fctx, p.cfg.Symbol)

	idle := p.cfg.WatchPause
	if idle <= 0 {
		idle = time.Second
	}
	quiet := time.NewTimer(idle)
	defer quiet.Stop()
	for {
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case last, ok := <-prices:
			if !ok {
				p.logger.Warn("price feed closed, falling back to polling")
				return p.watchPoll(ctx, target)
			}
			if tp, hit := p.check(last, target); hit {
				return tp, nil
			}
			quiet.Reset(idle)
		case <-quiet.C:
			last, err := p.ex.LastPrice(ctx, p.cfg.Symbol)
			if err != nil {
				p.logger.Debug("feed idle, rest price fetch failed", zap.Error(err))
			} else if tp, hit := p.check(last, target); hit {
				return tp, nil
			}
			quiet.Reset(idle)
		}
	}
}

func (p *Position) check(last, target decimal.Decimal) (decimal.Decimal, bool) {
	p.metrics.UpdateLastPrice(last.InexactFloat64())
	tp, ok := TargetReached(last, target)
	if ok {
		p.logger.LogTrade("target_reached", map[string]interface{}{
			"symbol": p.cfg.Symbol,
			"last":   last.String(),
			"price":  tp.String(),
			"target": target.String(),
		})
	}
	return tp, ok
}

// Sell 以触发价下浮后的限价卖出全部余额（扣手续费缓冲），直到交易所接受。
// 每次重试都重新读取余额并生成新的 LinkID，价格始终基于触发价。
func (p *Position) Sell(ctx context.Context, trigger decimal.Decimal) (order.Result, int, error) {
	attempts := 0
	for {
		balance, err := p.ex.WalletBalance(ctx, p.cfg.Coin)
		if err != nil {
			p.logger.Warn("fetch balance before sell failed", zap.Error(err))
			if err := sleep(ctx, p.cfg.SellRetry); err != nil {
				return order.Result{}, attempts, err
			}
			continue
		}

		price, qty := order.SellLimit(trigger, balance)
		in := order.NewIntent(p.cfg.Symbol, order.SideSell, qty, order.FormatPrice(price))
		attempts++
		in.Attempt = attempts
		res := p.ex.CreateOrder(ctx, in)
		p.metrics.RecordOrderResult(string(order.SideSell), res.Accepted, res.Err, res.Latency)
		if res.Accepted {
			p.logger.LogOrder("sell_accepted", in.LinkID, map[string]interface{}{
				"symbol":   in.Symbol,
				"side":     string(in.Side),
				"price":    in.Price,
				"qty":      in.Qty,
				"orderId":  res.OrderID,
				"attempts": attempts,
			})
			return res, attempts, nil
		}
		p.logger.Debug("sell attempt not accepted",
			zap.Int("attempt", attempts),
			zap.String("price", in.Price),
			zap.String("qty", in.Qty),
			zap.Int("retCode", res.RetCode),
			zap.String("retMsg", res.RetMsg),
			zap.Error(res.Err))
		if err := sleep(ctx, p.cfg.SellRetry); err != nil {
			return res, attempts, err
		}
	}
}
