package monitor

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOrderMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordOrderResult("Buy", false, nil, 10*time.Millisecond)
	m.RecordOrderResult("Buy", true, nil, 12*time.Millisecond)
	m.RecordOrderResult("Buy", false, errors.New("timeout"), time.Second)
	m.RecordWave()
	m.RecordSurplusFills(2)
	m.RecordSurplusFills(0)

	if got := testutil.ToFloat64(m.orderAttempts.WithLabelValues("Buy")); got != 3 {
		t.Errorf("Expected 3 attempts, got %f", got)
	}
	if got := testutil.ToFloat64(m.orderAccepted.WithLabelValues("Buy")); got != 1 {
		t.Errorf("Expected 1 accepted, got %f", got)
	}
	if got := testutil.ToFloat64(m.orderRejected.WithLabelValues("Buy")); got != 1 {
		t.Errorf("Expected 1 rejected, got %f", got)
	}
	if got := testutil.ToFloat64(m.orderErrors.WithLabelValues("Buy")); got != 1 {
		t.Errorf("Expected 1 error, got %f", got)
	}
	if got := testutil.ToFloat64(m.waves); got != 1 {
		t.Errorf("Expected 1 wave, got %f", got)
	}
	if got := testutil.ToFloat64(m.surplusFills); got != 2 {
		t.Errorf("Expected 2 surplus fills, got %f", got)
	}
}

func TestGaugesAndObserver(t *testing.T) {
	m := New(DefaultConfig())
	m.UpdateLastPrice(52.5)
	m.UpdateTargetPrice(52.5)
	m.UpdatePhase(3)
	m.ObserveRequest("/v5/market/tickers", 5*time.Millisecond, nil)
	m.ObserveRequest("/v5/market/tickers", 5*time.Millisecond, errors.New("boom"))

	if testutil.ToFloat64(m.lastPrice) != 52.5 {
		t.Errorf("unexpected last price gauge")
	}
	if testutil.ToFloat64(m.phase) != 3 {
		t.Errorf("unexpected phase gauge")
	}
	if got := testutil.ToFloat64(m.restRequests.WithLabelValues("/v5/market/tickers")); got != 2 {
		t.Errorf("Expected 2 requests, got %f", got)
	}
	if got := testutil.ToFloat64(m.restErrors.WithLabelValues("/v5/market/tickers")); got != 1 {
		t.Errorf("Expected 1 error, got %f", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordWave()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "sniper_spot_burst_waves_total 1") {
		t.Fatalf("metrics output missing waves counter:\n%s", body)
	}
}
