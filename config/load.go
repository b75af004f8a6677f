package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"spot-sniper/infrastructure/logger"
)

// AppConfig holds the runtime configuration. It is loaded once at startup
// and treated as read-only afterwards.
type AppConfig struct {
	Env       string          `yaml:"env"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Trade     TradeConfig     `yaml:"trade"`
	Execution ExecutionConfig `yaml:"execution"`
	Log       logger.Config   `yaml:"log"`
}

type GatewayConfig struct {
	APIKey     string  `yaml:"apiKey"`
	APISecret  string  `yaml:"apiSecret"`
	RecvWindow string  `yaml:"recvWindow"`
	BaseURL    string  `yaml:"baseURL"`
	WSURL      string  `yaml:"wsURL"`
	TimeoutMs  int     `yaml:"timeoutMs"`
	RestRate   float64 `yaml:"restRate"`  // GET 轮询限流，<=0 关闭
	RestBurst  int     `yaml:"restBurst"` // 令牌桶容量
}

// TradeConfig describes the single buy→sell cycle. Amounts are decimal strings
// so that no binary float rounding creeps in before quantization.
type TradeConfig struct {
	Symbol         string `yaml:"symbol"`
	Coin           string `yaml:"coin"`           // base asset used for balance lookups
	QuoteAmount    string `yaml:"quoteAmount"`    // quote currency to spend, e.g. "100"
	TriggerTime    string `yaml:"triggerTime"`    // HH:MM:SS, local time, same day
	LeadSeconds    int    `yaml:"leadSeconds"`    // window opens this long before triggerTime
	SellMultiplier string `yaml:"sellMultiplier"` // e.g. "1.05"
}

type ExecutionConfig struct {
	Waves          int    `yaml:"waves"`
	WaveSize       int    `yaml:"waveSize"`
	WaveDelayMs    int    `yaml:"waveDelayMs"`
	PriceRetryMs   int    `yaml:"priceRetryMs"`
	BalanceRetryMs int    `yaml:"balanceRetryMs"`
	TriggerPollMs  int    `yaml:"triggerPollMs"`
	WatchPollMs    int    `yaml:"watchPollMs"`
	WatchBurst     int    `yaml:"watchBurst"`
	WatchPauseMs   int    `yaml:"watchPauseMs"`
	SellRetryMs    int    `yaml:"sellRetryMs"`
	BuyTimeoutSec  int    `yaml:"buyTimeoutSec"` // 0 表示不限时
	CancelSurplus  bool   `yaml:"cancelSurplus"`
	PriceFeed      string `yaml:"priceFeed"` // rest | ws
}

const (
	PriceFeedREST = "rest"
	PriceFeedWS   = "ws"
)

// DefaultExecution returns the burst/polling cadence used by the bot.
func DefaultExecution() ExecutionConfig {
	return ExecutionConfig{
		Waves:          5,
		WaveSize:       20,
		WaveDelayMs:    1000,
		PriceRetryMs:   1000,
		BalanceRetryMs: 1000,
		TriggerPollMs:  66,
		WatchPollMs:    100,
		WatchBurst:     10,
		WatchPauseMs:   1000,
		SellRetryMs:    100,
		PriceFeed:      PriceFeedREST,
	}
}

// ApplyDefaults fills zero values.
func (cfg *AppConfig) ApplyDefaults() {
	def := DefaultExecution()
	e := &cfg.Execution
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setInt(&e.Waves, def.Waves)
	setInt(&e.WaveSize, def.WaveSize)
	setInt(&e.WaveDelayMs, def.WaveDelayMs)
	setInt(&e.PriceRetryMs, def.PriceRetryMs)
	setInt(&e.BalanceRetryMs, def.BalanceRetryMs)
	setInt(&e.TriggerPollMs, def.TriggerPollMs)
	setInt(&e.WatchPollMs, def.WatchPollMs)
	setInt(&e.WatchBurst, def.WatchBurst)
	setInt(&e.WatchPauseMs, def.WatchPauseMs)
	setInt(&e.SellRetryMs, def.SellRetryMs)
	if e.PriceFeed == "" {
		e.PriceFeed = def.PriceFeed
	}
	if cfg.Gateway.RecvWindow == "" {
		cfg.Gateway.RecvWindow = "5000"
	}
	if cfg.Gateway.TimeoutMs == 0 {
		cfg.Gateway.TimeoutMs = 5000
	}
	if cfg.Gateway.RestBurst == 0 {
		cfg.Gateway.RestBurst = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}

// Load reads YAML config from path, applies defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	return finish(cfg)
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("SNIPER_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("SNIPER_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	return finish(cfg)
}

func parse(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

func finish(cfg AppConfig) (AppConfig, error) {
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// QuoteAmountDecimal returns the parsed quote spend.
func (t TradeConfig) QuoteAmountDecimal() decimal.Decimal {
	return decimal.RequireFromString(t.QuoteAmount)
}

// SellMultiplierDecimal returns the parsed take-profit multiplier.
func (t TradeConfig) SellMultiplierDecimal() decimal.Decimal {
	return decimal.RequireFromString(t.SellMultiplier)
}

// Lead returns the pre-trigger lead interval.
func (t TradeConfig) Lead() time.Duration {
	return time.Duration(t.LeadSeconds) * time.Second
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (e ExecutionConfig) WaveDelay() time.Duration    { return ms(e.WaveDelayMs) }
func (e ExecutionConfig) PriceRetry() time.Duration   { return ms(e.PriceRetryMs) }
func (e ExecutionConfig) BalanceRetry() time.Duration { return ms(e.BalanceRetryMs) }
func (e ExecutionConfig) TriggerPoll() time.Duration  { return ms(e.TriggerPollMs) }
func (e ExecutionConfig) WatchPoll() time.Duration    { return ms(e.WatchPollMs) }
func (e ExecutionConfig) WatchPause() time.Duration   { return ms(e.WatchPauseMs) }
func (e ExecutionConfig) SellRetry() time.Duration    { return ms(e.SellRetryMs) }
func (e ExecutionConfig) BuyTimeout() time.Duration {
	return time.Duration(e.BuyTimeoutSec) * time.Second
}

func (g GatewayConfig) Timeout() time.Duration { return ms(g.TimeoutMs) }
