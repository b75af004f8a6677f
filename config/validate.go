package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validate ensures required fields are present and well-formed. Any error
// here is fatal at startup; nothing is retried.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return ErrInvalid("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if n, err := strconv.Atoi(cfg.Gateway.RecvWindow); err != nil || n <= 0 {
		return ErrInvalid(fmt.Sprintf("gateway.recvWindow must be a positive integer, got %q", cfg.Gateway.RecvWindow))
	}
	if cfg.Gateway.TimeoutMs < 0 {
		return ErrInvalid("gateway.timeoutMs must be >= 0")
	}
	if err := validateTrade(cfg.Trade); err != nil {
		return err
	}
	return validateExecution(cfg.Execution)
}

func validateTrade(t TradeConfig) error {
	if t.Symbol == "" || strings.ToUpper(t.Symbol) != t.Symbol {
		return ErrInvalid(fmt.Sprintf("trade.symbol must be upper-case, got %q", t.Symbol))
	}
	if t.Coin == "" {
		return ErrInvalid("trade.coin is required")
	}
	if !strings.HasPrefix(t.Symbol, t.Coin) {
		return ErrInvalid(fmt.Sprintf("trade.coin %s is not the base asset of %s", t.Coin, t.Symbol))
	}
	q, err := decimal.NewFromString(t.QuoteAmount)
	if err != nil || !q.IsPositive() {
		return ErrInvalid(fmt.Sprintf("trade.quoteAmount must be a positive decimal, got %q", t.QuoteAmount))
	}
	m, err := decimal.NewFromString(t.SellMultiplier)
	if err != nil || !m.IsPositive() {
		return ErrInvalid(fmt.Sprintf("trade.sellMultiplier must be a positive decimal, got %q", t.SellMultiplier))
	}
	if _, err := time.Parse("15:04:05", t.TriggerTime); err != nil {
		return ErrInvalid(fmt.Sprintf("trade.triggerTime must be HH:MM:SS, got %q", t.TriggerTime))
	}
	if t.LeadSeconds <= 0 {
		return ErrInvalid("trade.leadSeconds must be > 0")
	}
	return nil
}

func validateExecution(e ExecutionConfig) error {
	if e.Waves <= 0 || e.WaveSize <= 0 {
		return ErrInvalid("execution.waves/waveSize must be > 0")
	}
	if e.WatchBurst <= 0 {
		return ErrInvalid("execution.watchBurst must be > 0")
	}
	for name, v := range map[string]int{
		"waveDelayMs":    e.WaveDelayMs,
		"priceRetryMs":   e.PriceRetryMs,
		"balanceRetryMs": e.BalanceRetryMs,
		"triggerPollMs":  e.TriggerPollMs,
		"watchPollMs":    e.WatchPollMs,
		"watchPauseMs":   e.WatchPauseMs,
		"sellRetryMs":    e.SellRetryMs,
		"buyTimeoutSec":  e.BuyTimeoutSec,
	} {
		if v < 0 {
			return ErrInvalid(fmt.Sprintf("execution.%s must be >= 0", name))
		}
	}
	if e.PriceFeed != PriceFeedREST && e.PriceFeed != PriceFeedWS {
		return ErrInvalid(fmt.Sprintf("execution.priceFeed must be %q or %q, got %q", PriceFeedREST, PriceFeedWS, e.PriceFeed))
	}
	return nil
}
