package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spot-sniper/order"
)

var errFlaky = errors.New("flaky")

// fakeExchange 按预设序列返回价格与余额，序列用完后停在最后一个值。
type fakeExchange struct {
	mu sync.Mutex

	prices      []decimal.Decimal
	priceCalls  int
	priceErrs   int // 前 N 次取价失败
	balances    []decimal.Decimal
	balCalls    int
	balanceErrs int

	accept    func(in order.Intent) bool
	orders    []order.Intent
	cancels   []string
	cancelErr error
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decs(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

func pick(seq []decimal.Decimal, i int) decimal.Decimal {
	if len(seq) == 0 {
		return decimal.Zero
	}
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i]
}

func (f *fakeExchange) LastPrice(ctx context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if f.priceErrs > 0 {
		f.priceErrs--
		return decimal.Zero, errFlaky
	}
	p := pick(f.prices, f.priceCalls)
	f.priceCalls++
	return p, nil
}

func (f *fakeExchange) WalletBalance(ctx context.Context, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if f.balanceErrs > 0 {
		f.balanceErrs--
		return decimal.Zero, errFlaky
	}
	b := pick(f.balances, f.balCalls)
	f.balCalls++
	return b, nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, in order.Intent) order.Result {
	f.mu.Lock()
	f.orders = append(f.orders, in)
	accept := f.accept
	f.mu.Unlock()

	res := order.Result{Intent: in, Latency: time.Millisecond}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if accept != nil && accept(in) {
		res.Accepted = true
		res.OrderID = "oid-" + in.LinkID
		return res
	}
	res.RetCode = 170131
	res.RetMsg = "Insufficient balance."
	return res
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancels = append(f.cancels, linkID)
	return nil
}

func (f *fakeExchange) snapshot() (orders []order.Intent, priceCalls, balCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]order.Intent(nil), f.orders...), f.priceCalls, f.balCalls
}

// fakeFeed 依次推送预设价格，推完后保持通道打开直到 ctx 结束。
type fakeFeed struct {
	prices        []decimal.Decimal
	closeWhenDone bool
}

func (f *fakeFeed) Prices(ctx context.Context, _ string) <-chan decimal.Decimal {
	out := make(chan decimal.Decimal)
	go func() {
		defer close(out)
		for _, p := range f.prices {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
		if f.closeWhenDone {
			return
		}
		<-ctx.Done()
	}()
	return out
}

// recordingMetrics 记录阶段变化与计数。
type recordingMetrics struct {
	nopMetrics
	mu       sync.Mutex
	phases   []int
	waves    int
	surplus  int
	canceled int
}

func (m *recordingMetrics) UpdatePhase(ordinal int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, ordinal)
}

func (m *recordingMetrics) RecordWave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waves++
}

func (m *recordingMetrics) RecordSurplusFills(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surplus += n
}

func (m *recordingMetrics) RecordOrderCanceled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled++
}
