package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// band 描述一个价格区间：价格 < Below 时保留 Places 位小数。
type band struct {
	Below  decimal.Decimal
	Places int32
}

func mustBand(below string, places int32) band {
	return band{Below: decimal.RequireFromString(below), Places: places}
}

// 现货 tick 规则，按价格量级分档；最后一档为兜底。
var (
	priceBands = []band{
		mustBand("0.0001", 5),
		mustBand("0.001", 4),
		mustBand("0.01", 3),
		mustBand("0.1", 2),
		mustBand("1", 1),
		mustBand("20", 4),
	}
	priceFallbackPlaces int32 = 0

	buyQtyBands = []band{
		mustBand("1", 0),
		mustBand("100", 1),
		mustBand("1000", 3),
		mustBand("10000", 4),
	}
	buyQtyFallbackPlaces int32 = 5

	sellQtyBands = []band{
		mustBand("0.1", 0),
		mustBand("10", 1),
		mustBand("100", 2),
		mustBand("10000", 4),
	}
	sellQtyFallbackPlaces int32 = 5
)

var (
	// FeeBuffer 预留 0.1% 手续费。
	FeeBuffer = decimal.RequireFromString("0.999")
	// BuyMarkup 买单挂在最新成交价上方 0.5%。
	BuyMarkup = decimal.RequireFromString("1.005")
	// SellDiscount 卖单挂在触发价下方 0.3%。
	SellDiscount = decimal.RequireFromString("0.997")
)

func placesFor(p decimal.Decimal, bands []band, fallback int32) int32 {
	for _, b := range bands {
		if p.LessThan(b.Below) {
			return b.Places
		}
	}
	return fallback
}

// PricePlaces 返回价格 p 所在档位允许的小数位数。
func PricePlaces(p decimal.Decimal) int32 {
	return placesFor(p, priceBands, priceFallbackPlaces)
}

// TruncatePrice 按价格档位截断（向零截断，从不进位）。
// 下单价格和止盈比较都必须先经过这里，否则与交易所 tick 网格不一致。
func TruncatePrice(p decimal.Decimal) decimal.Decimal {
	return p.Truncate(PricePlaces(p))
}

// FormatPrice 返回下单用的价格字符串，去掉多余的尾零。
func FormatPrice(p decimal.Decimal) string {
	return p.String()
}

// Quantity 计算用 quoteAmount 在 price 价位可买入的数量，按价格档位截断。
func Quantity(quoteAmount, price decimal.Decimal) (string, error) {
	if !price.IsPositive() {
		return "", fmt.Errorf("quantity: price must be > 0, got %s", price)
	}
	places := placesFor(price, buyQtyBands, buyQtyFallbackPlaces)
	// QuoRem 直接得到截断后的商，避免 Div 在第 16 位四舍五入后再截断。
	q, _ := quoteAmount.QuoRem(price, places)
	return q.StringFixed(places), nil
}

// SellQuantity 以钱包余额扣除手续费缓冲后作为卖出数量，档位由卖出价决定。
func SellQuantity(balance, sellPrice decimal.Decimal) string {
	places := placesFor(sellPrice, sellQtyBands, sellQtyFallbackPlaces)
	return balance.Mul(FeeBuffer).Truncate(places).StringFixed(places)
}

// BuyLimit 根据最新成交价计算买入限价与数量。
func BuyLimit(last, quoteAmount decimal.Decimal) (price decimal.Decimal, qty string, err error) {
	price = TruncatePrice(last.Mul(BuyMarkup))
	qty, err = Quantity(quoteAmount.Mul(FeeBuffer), price)
	return price, qty, err
}

// SellLimit 根据触发价与钱包余额计算卖出限价与数量。
func SellLimit(trigger, balance decimal.Decimal) (price decimal.Decimal, qty string) {
	price = TruncatePrice(trigger.Mul(SellDiscount))
	return price, SellQuantity(balance, price)
}
