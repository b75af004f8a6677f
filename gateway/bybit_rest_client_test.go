package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-sniper/order"
)

type recordingObserver struct {
	mu        sync.Mutex
	endpoints []string
	errs      int
}

func (o *recordingObserver) ObserveRequest(endpoint string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.endpoints = append(o.endpoints, endpoint)
	if err != nil {
		o.errs++
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*BybitRESTClient, *recordingObserver) {
	t.Helper()
	timeNowMillis = func() int64 { return 1234567890000 } // deterministic
	t.Cleanup(func() { timeNowMillis = func() int64 { return time.Now().UnixMilli() } })

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	obs := &recordingObserver{}
	return &BybitRESTClient{
		BaseURL:    ts.URL,
		Creds:      Credentials{APIKey: "key", Secret: "secret", RecvWindow: "5000"},
		HTTPClient: ts.Client(),
		Observer:   obs,
	}, obs
}

func assertSigned(t *testing.T, r *http.Request, payload string) {
	t.Helper()
	assert.Equal(t, "key", r.Header.Get("X-BAPI-API-KEY"))
	assert.Equal(t, "2", r.Header.Get("X-BAPI-SIGN-TYPE"))
	assert.Equal(t, "1234567890000", r.Header.Get("X-BAPI-TIMESTAMP"))
	assert.Equal(t, "5000", r.Header.Get("X-BAPI-RECV-WINDOW"))
	assert.Equal(t, Sign("1234567890000", payload, "secret", "key", "5000"), r.Header.Get("X-BAPI-SIGN"))
}

func TestLastPrice(t *testing.T) {
	cli, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, PathTickers, r.URL.Path)
		require.Equal(t, "category=spot&symbol=SOLUSDT", r.URL.RawQuery)
		assertSigned(t, r, r.URL.RawQuery)
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[{"symbol":"SOLUSDT","lastPrice":"50.00"}]}}`)
	})
	p, err := cli.LastPrice(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, "50", p.String())
	assert.Equal(t, []string{PathTickers}, obs.endpoints)
}

func TestLastPriceErrors(t *testing.T) {
	cases := map[string]struct {
		body   string
		status int
		target error
	}{
		"rejection":   {body: `{"retCode":10001,"retMsg":"params error","result":{}}`, status: 200},
		"empty list":  {body: `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`, status: 200, target: ErrNoData},
		"bad number":  {body: `{"retCode":0,"retMsg":"OK","result":{"list":[{"lastPrice":"n/a"}]}}`, status: 200, target: ErrNoData},
		"not json":    {body: `<html>bad gateway</html>`, status: 200, target: ErrDecode},
		"http 502":    {body: `<html>bad gateway</html>`, status: 502, target: ErrTransport},
		"null body":   {body: `null`, status: 200, target: ErrDecode},
		"no retCode":  {body: `{"result":{"list":[{"lastPrice":"1"}]}}`, status: 200, target: ErrDecode},
		"null result": {body: `{"retCode":0,"retMsg":"OK","result":null}`, status: 200, target: ErrNoData},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				io.WriteString(w, c.body)
			})
			_, err := cli.LastPrice(context.Background(), "SOLUSDT")
			require.Error(t, err)
			if c.target != nil {
				assert.ErrorIs(t, err, c.target)
			} else {
				assert.True(t, IsRejection(err))
			}
		})
	}
}

func TestWalletBalance(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathWalletBalance, r.URL.Path)
		require.Equal(t, "accountType=UNIFIED&coin=SOL", r.URL.RawQuery)
		assertSigned(t, r, r.URL.RawQuery)
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"accountType":"UNIFIED","coin":[{"coin":"SOL","walletBalance":"1.9"}]}]}}`)
	})
	bal, err := cli.WalletBalance(context.Background(), "SOL")
	require.NoError(t, err)
	assert.Equal(t, "1.9", bal.String())
}

func TestWalletBalanceMissingCoin(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"coin":[]}]}}`)
	})
	_, err := cli.WalletBalance(context.Background(), "SOL")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCreateOrder(t *testing.T) {
	var got map[string]string
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathOrderCreate, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assertSigned(t, r, string(body))
		require.NoError(t, json.Unmarshal(body, &got))
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"orderId":"1001","orderLinkId":"x"}}`)
	})
	in := order.NewIntent("SOLUSDT", order.SideBuy, "1.9", "50")
	res := cli.CreateOrder(context.Background(), in)
	require.NoError(t, res.Err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "1001", res.OrderID)
	assert.Equal(t, map[string]string{
		"category":    "spot",
		"symbol":      "SOLUSDT",
		"side":        "Buy",
		"orderType":   "Limit",
		"qty":         "1.9",
		"price":       "50",
		"orderLinkId": in.LinkID,
	}, got)
}

// retCode 字段顺序或空格变化不影响判定；非零 retCode 即视为未成功。
func TestCreateOrderDecodesRetCode(t *testing.T) {
	bodies := map[string]bool{
		`{ "retMsg": "OK", "retCode": 0, "result": {} }`:                               true,
		`{"retCode":170131,"retMsg":"Insufficient balance.","result":{}}`:             false,
		`{"retCode":10,"retMsg":"contains \"retCode\":0 in text","result":{}}`:        false,
		`{"retCode":170134,"retMsg":"Order price has too many decimals.","result":{}}`: false,
	}
	for body, want := range bodies {
		cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})
		res := cli.CreateOrder(context.Background(), order.NewIntent("SOLUSDT", order.SideSell, "1", "50"))
		require.NoError(t, res.Err)
		assert.Equal(t, want, res.Accepted, body)
	}
}

func TestCreateOrderTransportError(t *testing.T) {
	cli, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	cli.BaseURL = "http://127.0.0.1:1"
	res := cli.CreateOrder(context.Background(), order.NewIntent("SOLUSDT", order.SideBuy, "1", "50"))
	assert.False(t, res.Accepted)
	assert.True(t, errors.Is(res.Err, ErrTransport))
	assert.Equal(t, 1, obs.errs)
}

func TestCancelOrder(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathOrderCancel, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["orderLinkId"] == "known" {
			io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"orderLinkId":"known"}}`)
			return
		}
		io.WriteString(w, `{"retCode":170213,"retMsg":"Order does not exist.","result":{}}`)
	})
	require.NoError(t, cli.CancelOrder(context.Background(), "SOLUSDT", "known"))
	err := cli.CancelOrder(context.Background(), "SOLUSDT", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 170213, apiErr.Code)
}

func TestGetHonoursContext(t *testing.T) {
	cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := cli.Get(ctx, PathTickers, nil)
	assert.ErrorIs(t, err, ErrTransport)
}
