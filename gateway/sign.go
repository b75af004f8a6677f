package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Credentials 保存 API 凭证，进程生命周期内不可变。
type Credentials struct {
	APIKey     string
	Secret     string
	RecvWindow string
}

// Sign 计算 v5 签名：HMAC-SHA256(secret, timestamp+apiKey+recvWindow+payload)，小写 hex。
// GET 的 payload 为原样发送的 query string，POST 为原样发送的 JSON body。
func Sign(timestamp, payload, secret, apiKey, recvWindow string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(apiKey))
	mac.Write([]byte(recvWindow))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Param 是一个查询参数。
type Param struct {
	Key   string
	Value string
}

// Params 保持插入顺序；签名与实际发送必须使用同一个字符串。
type Params []Param

// Encode 按插入顺序拼接 query string（值做 URL 编码）。
func (p Params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}

// timeNowMillis 可在测试中替换。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

func timestamp() string {
	return strconv.FormatInt(timeNowMillis(), 10)
}
