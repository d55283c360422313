// Package trading provides order sizing and quantity formatting utilities.
package trading

import "github.com/shopspring/decimal"

// PositionQuantity 按账户权益比例计算目标下单数量：
// equity × positionPct / price。入参非法时返回 0。
func PositionQuantity(equity, positionPct, price float64) float64 {
	if equity <= 0 || positionPct <= 0 || price <= 0 {
		return 0
	}
	qty := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(positionPct)).
		Div(decimal.NewFromFloat(price))
	f, _ := qty.Float64()
	return f
}

// RoundToStep 将数量向下取整到交易所步进（step<=0 时原样返回）。
// 向下取整保证不会超出风控批准的数量。
func RoundToStep(qty, step float64) float64 {
	if qty <= 0 {
		return 0
	}
	if step <= 0 {
		return qty
	}
	d := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	f, _ := d.Div(s).Floor().Mul(s).Float64()
	return f
}

// FormatQuantity 以最多 8 位小数输出下单数量字符串。
func FormatQuantity(qty float64) string {
	return decimal.NewFromFloat(qty).Round(8).String()
}
