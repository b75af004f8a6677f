package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate 检查意图在发出前是否满足交易所精度要求：
// 价格必须落在其档位的 tick 网格上，数量必须为正。
func (in Intent) Validate() error {
	if in.Symbol == "" {
		return fmt.Errorf("symbol required")
	}
	if in.Side != SideBuy && in.Side != SideSell {
		return fmt.Errorf("invalid side %q", in.Side)
	}
	if in.LinkID == "" {
		return fmt.Errorf("orderLinkId required")
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil {
		return fmt.Errorf("price %q: %w", in.Price, err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s must be > 0", in.Price)
	}
	if !TruncatePrice(price).Equal(price) {
		return fmt.Errorf("price %s not aligned to tick (max %d decimals)", in.Price, PricePlaces(price))
	}
	qty, err := decimal.NewFromString(in.Qty)
	if err != nil {
		return fmt.Errorf("qty %q: %w", in.Qty, err)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("qty %s must be > 0", in.Qty)
	}
	return nil
}
