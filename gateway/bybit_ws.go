package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const DefaultSpotWSURL = "wss://stream.bybit.com/v5/public/spot"

// BybitTickerStream 订阅现货 tickers.<symbol> 推送，输出 lastPrice。
// 断线后按 ReconnectDelay 重连，直到 ctx 取消。
type BybitTickerStream struct {
	URL            string
	Dialer         *websocket.Dialer
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	// OnConnect / OnDisconnect 可选，用于日志与指标。
	OnConnect    func()
	OnDisconnect func(err error)
}

func NewBybitTickerStream(url string) *BybitTickerStream {
	if url == "" {
		url = DefaultSpotWSURL
	}
	return &BybitTickerStream{
		URL:            url,
		Dialer:         websocket.DefaultDialer,
		PingInterval:   20 * time.Second,
		ReconnectDelay: time.Second,
	}
}

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type tickerFrame struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// Prices 返回最新成交价通道；ctx 取消后通道关闭。
func (s *BybitTickerStream) Prices(ctx context.Context, symbol string) <-chan decimal.Decimal {
	out := make(chan decimal.Decimal, 16)
	go func() {
		defer close(out)
		for {
			err := s.runOnce(ctx, symbol, out)
			if ctx.Err() != nil {
				return
			}
			if s.OnDisconnect != nil {
				s.OnDisconnect(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.ReconnectDelay):
			}
		}
	}()
	return out
}

func (s *BybitTickerStream) runOnce(ctx context.Context, symbol string, out chan<- decimal.Decimal) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.URL, err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}
	if err := write(wsRequest{Op: "subscribe", Args: []string{"tickers." + symbol}}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if s.OnConnect != nil {
		s.OnConnect()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		interval := s.PingInterval
		if interval <= 0 {
			interval = 20 * time.Second
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// 解除 ReadMessage 阻塞
				_ = conn.Close()
				return
			case <-t.C:
				_ = write(wsRequest{Op: "ping"})
			}
		}
	}()

	topic := "tickers." + symbol
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		price, ok := parseTickerFrame(msg, topic)
		if !ok {
			continue
		}
		select {
		case out <- price:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseTickerFrame 解析 ticker 推送；订阅回执、pong 或无效价格返回 false。
func parseTickerFrame(msg []byte, topic string) (decimal.Decimal, bool) {
	var f tickerFrame
	if err := json.Unmarshal(msg, &f); err != nil || f.Topic != topic {
		return decimal.Zero, false
	}
	if f.Data.LastPrice == "" {
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(f.Data.LastPrice)
	if err != nil || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}
