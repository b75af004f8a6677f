package gateway

import "time"

// ClientOptions 是构建 REST 客户端所需的参数。
type ClientOptions struct {
	BaseURL   string
	Creds     Credentials
	Timeout   time.Duration
	RestRate  float64 // GET 每秒令牌数，<=0 表示不限流
	RestBurst int
	Observer  RequestObserver
}

// NewBybitRESTClient 根据选项构建客户端。
func NewBybitRESTClient(opts ClientOptions) *BybitRESTClient {
	c := &BybitRESTClient{
		BaseURL:    opts.BaseURL,
		Creds:      opts.Creds,
		HTTPClient: NewDefaultHTTPClient(opts.Timeout),
		Observer:   opts.Observer,
	}
	if opts.RestRate > 0 {
		c.Limiter = NewTokenBucketLimiter(opts.RestRate, opts.RestBurst)
	}
	return c
}
