// Package symbol normalizes trading pair notation between the engine's
// internal "BASE/QUOTE" form and exchange-specific formats.
package symbol

import "strings"

type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// Parse 接受 "BTC/USDT"、"btcusdt" 等写法，无法识别报价币时返回零值。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize 返回内部格式；解析失败时原样大写返回。
func Normalize(s string) string {
	sym := Parse(s)
	if v := sym.Internal(); v != "" {
		return v
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// ToBinance 转为 Binance 无斜杠格式。
func ToBinance(s string) string {
	sym := Parse(s)
	if v := sym.Binance(); v != "" {
		return v
	}
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "/", "")
}
