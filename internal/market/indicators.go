package market

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// IndicatorConfig 控制构建 IndicatorSeries 时的指标参数。
type IndicatorConfig struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
	ADXPeriod  int
}

func (c IndicatorConfig) withDefaults() IndicatorConfig {
	if c.FastPeriod <= 0 {
		c.FastPeriod = 20
	}
	if c.SlowPeriod <= 0 {
		c.SlowPeriod = 50
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.ADXPeriod <= 0 {
		c.ADXPeriod = 14
	}
	return c
}

// BuildIndicatorSeries 基于 K 线生成姿态评估所需的指标序列。
// talib 输出的 warm-up 前缀会被替换为 NaN，保持与原始序列下标对齐。
func BuildIndicatorSeries(candles []Candle, cfg IndicatorConfig) (IndicatorSeries, error) {
	cfg = cfg.withDefaults()
	need := cfg.SlowPeriod + 1
	if len(candles) < need {
		return IndicatorSeries{}, fmt.Errorf("indicators: insufficient candles, need %d got %d", need, len(candles))
	}
	closes := Closes(candles)
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}
	series := IndicatorSeries{
		Closes:        closes,
		MAFast:        maskWarmup(talib.Sma(closes, cfg.FastPeriod), cfg.FastPeriod-1),
		MASlow:        maskWarmup(talib.Sma(closes, cfg.SlowPeriod), cfg.SlowPeriod-1),
		RSI:           maskWarmup(talib.Rsi(closes, cfg.RSIPeriod), cfg.RSIPeriod),
		TrendStrength: maskWarmup(talib.Adx(highs, lows, closes, cfg.ADXPeriod), 2*cfg.ADXPeriod-1),
	}
	return series, nil
}

func maskWarmup(series []float64, warmup int) []float64 {
	if warmup < 0 {
		warmup = 0
	}
	if warmup > len(series) {
		warmup = len(series)
	}
	out := append([]float64(nil), series...)
	for i := 0; i < warmup; i++ {
		out[i] = math.NaN()
	}
	return out
}
