package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestParseTickerFrame(t *testing.T) {
	topic := "tickers.SOLUSDT"
	p, ok := parseTickerFrame([]byte(`{"topic":"tickers.SOLUSDT","type":"snapshot","data":{"symbol":"SOLUSDT","lastPrice":"52.5"}}`), topic)
	if !ok || p.String() != "52.5" {
		t.Fatalf("unexpected parse: %s %v", p, ok)
	}
	ignored := []string{
		`{"success":true,"ret_msg":"subscribe","op":"subscribe"}`,
		`{"success":true,"ret_msg":"pong","op":"ping"}`,
		`{"topic":"tickers.BTCUSDT","data":{"lastPrice":"65000"}}`,
		`{"topic":"tickers.SOLUSDT","data":{"lastPrice":"abc"}}`,
		`not json`,
	}
	for _, msg := range ignored {
		if _, ok := parseTickerFrame([]byte(msg), topic); ok {
			t.Fatalf("expected frame to be ignored: %s", msg)
		}
	}
}

func TestBybitTickerStreamPrices(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- strings.Join(req.Args, ",")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"op":"subscribe"}`))
		for _, px := range []string{"52.4", "52.5"} {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"topic":"tickers.SOLUSDT","type":"snapshot","data":{"symbol":"SOLUSDT","lastPrice":"`+px+`"}}`))
		}
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stream := NewBybitTickerStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prices := stream.Prices(ctx, "SOLUSDT")
	if got := <-subscribed; got != "tickers.SOLUSDT" {
		t.Fatalf("unexpected subscription %q", got)
	}
	var got []string
	for p := range prices {
		got = append(got, p.String())
		if len(got) == 2 {
			cancel()
		}
	}
	if len(got) < 2 || got[0] != "52.4" || got[1] != "52.5" {
		t.Fatalf("unexpected prices %v", got)
	}
}
