package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"spot-sniper/order"
)

const (
	DefaultBaseURL = "https://api.bybit.com"

	PathTickers       = "/v5/market/tickers"
	PathWalletBalance = "/v5/account/wallet-balance"
	PathOrderCreate   = "/v5/order/create"
	PathOrderCancel   = "/v5/order/cancel"

	categorySpot = "spot"
)

// RequestObserver 接收每次 REST 调用的耗时与结果，用于指标。
type RequestObserver interface {
	ObserveRequest(endpoint string, elapsed time.Duration, err error)
}

// BybitRESTClient 是可签名的 v5 REST 客户端；HTTPClient 可注入 httptest。
// 客户端本身不做重试，重试策略由调用方决定。
type BybitRESTClient struct {
	BaseURL    string
	Creds      Credentials
	HTTPClient *http.Client
	// Limiter 只作用于 GET 轮询，下单突发不做本地限流。
	Limiter  RateLimiter
	Observer RequestObserver
}

// Response 是 v5 统一响应包。
type Response struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// OK 判断 retCode 是否为 0。
func (r *Response) OK() bool { return r != nil && r.RetCode == 0 }

// Err 在 retCode 非 0 时返回 *APIError。
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	if r == nil {
		return ErrNoData
	}
	return &APIError{Code: r.RetCode, Msg: r.RetMsg}
}

type rawResponse struct {
	RetCode *int            `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// decodeResponse 解析响应包；缺少 retCode 的 JSON 同样视为解析失败，不能当作成功。
func decodeResponse(endpoint string, body []byte) (*Response, error) {
	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, endpoint, err)
	}
	if raw.RetCode == nil {
		return nil, fmt.Errorf("%w: %s: missing retCode", ErrDecode, endpoint)
	}
	return &Response{RetCode: *raw.RetCode, RetMsg: raw.RetMsg, Result: raw.Result, Time: raw.Time}, nil
}

// DecodeResult 将 result 解析到 v；result 缺失时返回 ErrNoData。
func (r *Response) DecodeResult(v any) error {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return ErrNoData
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("%w: result: %v", ErrDecode, err)
	}
	return nil
}

func (c *BybitRESTClient) setAuthHeaders(req *http.Request, payload string) {
	ts := timestamp()
	req.Header.Set("X-BAPI-API-KEY", c.Creds.APIKey)
	req.Header.Set("X-BAPI-SIGN", Sign(ts, payload, c.Creds.Secret, c.Creds.APIKey, c.Creds.RecvWindow))
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.Creds.RecvWindow)
}

// Get 发起签名 GET，返回解析后的响应包。网络错误/非 JSON 返回 error，
// 调用方需自行检查 RetCode。
func (c *BybitRESTClient) Get(ctx context.Context, endpoint string, params Params) (*Response, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	query := params.Encode()
	u := c.baseURL() + endpoint
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setAuthHeaders(req, query)

	body, err := c.do(endpoint, req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(endpoint, body)
}

// Post 发起签名 POST，签名覆盖实际发送的 JSON 字节，返回原始响应文本。
func (c *BybitRESTClient) Post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	if c == nil || c.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setAuthHeaders(req, string(raw))
	req.Header.Set("Content-Type", "application/json")
	return c.do(endpoint, req)
}

func (c *BybitRESTClient) do(endpoint string, req *http.Request) (body []byte, err error) {
	start := time.Now()
	defer func() {
		if c.Observer != nil {
			c.Observer.ObserveRequest(endpoint, time.Since(start), err)
		}
	}()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrTransport, endpoint, err)
	}
	if resp.StatusCode >= 300 && !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s: status %d", ErrTransport, endpoint, resp.StatusCode)
	}
	return body, nil
}

func (c *BybitRESTClient) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

type tickerResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

// LastPrice 查询现货最新成交价（未截断）。
func (c *BybitRESTClient) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := c.Get(ctx, PathTickers, Params{
		{Key: "category", Value: categorySpot},
		{Key: "symbol", Value: symbol},
	})
	if err != nil {
		return decimal.Zero, err
	}
	if err := resp.Err(); err != nil {
		return decimal.Zero, err
	}
	var res tickerResult
	if err := resp.DecodeResult(&res); err != nil {
		return decimal.Zero, fmt.Errorf("tickers %s: %w", symbol, err)
	}
	if len(res.List) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty ticker list for %s", ErrNoData, symbol)
	}
	price, err := decimal.NewFromString(res.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: lastPrice %q: %v", ErrNoData, res.List[0].LastPrice, err)
	}
	return price, nil
}

type walletResult struct {
	List []struct {
		Coin []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
		} `json:"coin"`
	} `json:"list"`
}

// WalletBalance 查询统一账户中 coin 的钱包余额。
func (c *BybitRESTClient) WalletBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	resp, err := c.Get(ctx, PathWalletBalance, Params{
		{Key: "accountType", Value: "UNIFIED"},
		{Key: "coin", Value: coin},
	})
	if err != nil {
		return decimal.Zero, err
	}
	if err := resp.Err(); err != nil {
		return decimal.Zero, err
	}
	var res walletResult
	if err := resp.DecodeResult(&res); err != nil {
		return decimal.Zero, fmt.Errorf("wallet %s: %w", coin, err)
	}
	if len(res.List) == 0 || len(res.List[0].Coin) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no balance entry for %s", ErrNoData, coin)
	}
	raw := res.List[0].Coin[0].WalletBalance
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: walletBalance %q: %v", ErrNoData, raw, err)
	}
	return bal, nil
}

type createOrderBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// CreateOrder 提交限价单。结果通过 retCode 判断，不做字符串匹配。
// 返回的 Result.Err 只表示网络/解析失败；交易所拒绝体现在 Accepted=false 与 RetCode。
func (c *BybitRESTClient) CreateOrder(ctx context.Context, in order.Intent) order.Result {
	res := order.Result{Intent: in}
	start := time.Now()
	raw, err := c.Post(ctx, PathOrderCreate, createOrderBody{
		Category:    categorySpot,
		Symbol:      in.Symbol,
		Side:        string(in.Side),
		OrderType:   in.Type,
		Qty:         in.Qty,
		Price:       in.Price,
		OrderLinkID: in.LinkID,
	})
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	resp, err := decodeResponse(PathOrderCreate, raw)
	if err != nil {
		res.Err = err
		return res
	}
	res.RetCode = resp.RetCode
	res.RetMsg = resp.RetMsg
	res.Accepted = resp.OK()
	if res.Accepted {
		var or orderResult
		if err := resp.DecodeResult(&or); err == nil {
			res.OrderID = or.OrderID
		}
	}
	return res
}

type cancelOrderBody struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	OrderLinkID string `json:"orderLinkId"`
}

// CancelOrder 按 orderLinkId 撤单。
func (c *BybitRESTClient) CancelOrder(ctx context.Context, symbol, linkID string) error {
	raw, err := c.Post(ctx, PathOrderCancel, cancelOrderBody{
		Category:    categorySpot,
		Symbol:      symbol,
		OrderLinkID: linkID,
	})
	if err != nil {
		return err
	}
	resp, err := decodeResponse(PathOrderCancel, raw)
	if err != nil {
		return err
	}
	return resp.Err()
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
