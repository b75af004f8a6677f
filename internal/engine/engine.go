package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-sniper/config"
	"spot-sniper/infrastructure/logger"
	"spot-sniper/order"
	"spot-sniper/schedule"
)

// Config 引擎配置
type Config struct {
	TriggerTime string        // HH:MM:SS，本地时间
	Lead        time.Duration // 窗口提前量
	TriggerPoll time.Duration // 等待窗口时的轮询间隔
	Burst       BurstConfig
	Position    PositionConfig
}

// ConfigFromApp 将加载好的配置映射为引擎配置。
func ConfigFromApp(app config.AppConfig) Config {
	t, e := app.Trade, app.Execution
	return Config{
		TriggerTime: t.TriggerTime,
		Lead:        t.Lead(),
		TriggerPoll: e.TriggerPoll(),
		Burst: BurstConfig{
			Symbol:        t.Symbol,
			QuoteAmount:   t.QuoteAmountDecimal(),
			Waves:         e.Waves,
			WaveSize:      e.WaveSize,
			WaveDelay:     e.WaveDelay(),
			PriceRetry:    e.PriceRetry(),
			Timeout:       e.BuyTimeout(),
			CancelSurplus: e.CancelSurplus,
		},
		Position: PositionConfig{
			Symbol:         t.Symbol,
			Coin:           t.Coin,
			SellMultiplier: t.SellMultiplierDecimal(),
			BalanceRetry:   e.BalanceRetry(),
			PriceRetry:     e.PriceRetry(),
			WatchPoll:      e.WatchPoll(),
			WatchBurst:     e.WatchBurst,
			WatchPause:     e.WatchPause(),
			SellRetry:      e.SellRetry(),
		},
	}
}

// Components 引擎依赖组件
type Components struct {
	Exchange Exchange
	Feed     PriceFeed // 可选
	Logger   *logger.Logger
	Metrics  Metrics        // 可选
	Clock    schedule.Clock // 可选，默认本地时钟
}

// Report 一次完整买卖周期的结果。
type Report struct {
	BuyPrice       decimal.Decimal // 买单限价
	BuyQty         string
	BuyLinkID      string
	Waves          int
	Accepted       int // >1 表示出现多余成交
	Canceled       int
	ApproxBuyPrice decimal.Decimal // 近似值，见 Exit.ApproxBuyPrice
	Target         decimal.Decimal
	TriggerPrice   decimal.Decimal
	SellPrice      decimal.Decimal
	SellQty        string
	SellLinkID     string
}

// Engine 串联触发窗口、抢单和持仓三个阶段。
type Engine struct {
	cfg      Config
	logger   *logger.Logger
	clock    schedule.Clock
	sm       *order.StateMachine
	burst    *BurstPlacer
	position *Position
}

// New 创建引擎
func New(cfg Config, c Components) (*Engine, error) {
	if c.Exchange == nil {
		return nil, errors.New("exchange is required")
	}
	if cfg.Burst.Symbol == "" || cfg.Position.Coin == "" {
		return nil, errors.New("symbol and coin are required")
	}
	if !cfg.Burst.QuoteAmount.IsPositive() {
		return nil, fmt.Errorf("quote amount must be > 0, got %s", cfg.Burst.QuoteAmount)
	}
	if !cfg.Position.SellMultiplier.IsPositive() {
		return nil, fmt.Errorf("sell multiplier must be > 0, got %s", cfg.Position.SellMultiplier)
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = schedule.Local
	}

	sm := order.NewStateMachine()
	log, metrics := c.Logger, c.Metrics
	sm.OnChange(func(from, to order.Phase) {
		metrics.UpdatePhase(to.Ordinal())
		log.LogPhase(string(from), string(to), map[string]interface{}{
			"symbol": cfg.Burst.Symbol,
		})
	})
	metrics.UpdatePhase(sm.Current().Ordinal())

	return &Engine{
		cfg:      cfg,
		logger:   log,
		clock:    c.Clock,
		sm:       sm,
		burst:    NewBurstPlacer(cfg.Burst, c.Exchange, log, metrics),
		position: NewPosition(cfg.Position, c.Exchange, c.Feed, sm, log, metrics),
	}, nil
}

// Phase 返回当前阶段。
func (e *Engine) Phase() order.Phase {
	return e.sm.Current()
}

// Run 执行一次完整的买卖周期，到 DONE 后返回。Engine 只能运行一次。
func (e *Engine) Run(ctx context.Context) (Report, error) {
	var rep Report
	if e.sm.Current() != order.PhaseScheduled {
		return rep, fmt.Errorf("engine already ran (phase %s)", e.sm.Current())
	}

	w, err := schedule.NewWindow(e.clock.Now(), e.cfg.TriggerTime, e.cfg.Lead)
	if err != nil {
		return rep, err
	}
	e.logger.Info("waiting for trigger window",
		zap.String("symbol", e.cfg.Burst.Symbol),
		zap.Time("start", w.Start),
		zap.Time("end", w.End),
		zap.Duration("in", w.Until(e.clock.Now())))

	tr := schedule.Trigger{Window: w, Clock: e.clock, Interval: e.cfg.TriggerPoll}
	if err := tr.Wait(ctx); err != nil {
		return rep, fmt.Errorf("wait trigger: %w", err)
	}
	if err := e.sm.Advance(order.PhaseBuying); err != nil {
		return rep, err
	}

	buy, err := e.burst.Place(ctx)
	rep.Waves = buy.Waves
	rep.BuyPrice, rep.BuyQty = buy.Price, buy.Qty
	if err != nil {
		return rep, fmt.Errorf("place buy: %w", err)
	}
	rep.Accepted = len(buy.Accepted)
	rep.Canceled = buy.Canceled
	rep.BuyLinkID = buy.Accepted[0].Intent.LinkID
	if err := e.sm.Advance(order.PhaseAwaitingFill); err != nil {
		return rep, err
	}

	exit, err := e.position.Run(ctx)
	rep.ApproxBuyPrice = exit.ApproxBuyPrice
	rep.Target = exit.Target
	rep.TriggerPrice = exit.TriggerPrice
	rep.SellPrice = exit.SellPrice
	rep.SellQty = exit.SellQty
	rep.SellLinkID = exit.SellLinkID
	if err != nil {
		return rep, err
	}

	e.logger.LogTrade("cycle_done", map[string]interface{}{
		"symbol":         e.cfg.Burst.Symbol,
		"buyPrice":       rep.BuyPrice.String(),
		"buyQty":         rep.BuyQty,
		"approxBuyPrice": rep.ApproxBuyPrice.String(),
		"sellPrice":      rep.SellPrice.String(),
		"sellQty":        rep.SellQty,
		"waves":          rep.Waves,
		"accepted":       rep.Accepted,
	})
	return rep, nil
}
