// Package posture classifies market trend state from indicator series and
// derives discrete trade actions from the classification.
package posture

import (
	"math"

	"kestrel/internal/market"
)

type State string

const (
	StateBullish State = "bullish"
	StateBearish State = "bearish"
	StateNeutral State = "neutral"
)

// Posture 是一次评估的结果，每次调用新建，不持久化。
type Posture struct {
	State         State   `json:"posture"`
	Confidence    float64 `json:"confidence"`
	Slope         float64 `json:"slope"`
	MaRatio       float64 `json:"ma_ratio"`
	TrendStrength float64 `json:"trend_strength"`
}

// Config 控制姿态分类阈值。
type Config struct {
	BullishMaRatio   float64 `toml:"bullish_ma_ratio"`
	BearishMaRatio   float64 `toml:"bearish_ma_ratio"`
	NeutralBuffer    float64 `toml:"neutral_buffer"`
	MinSlope         float64 `toml:"min_slope"`
	Lookback         int     `toml:"lookback"`
	MinTrendStrength float64 `toml:"min_trend_strength"`
	RSIBullish       float64 `toml:"rsi_bullish"`
	RSIBearish       float64 `toml:"rsi_bearish"`
}

const (
	lowConfidence = 0.1

	// 主条件（均线比值 + 斜率）成立时的基础置信度；
	// 每个未满足的次级条件（RSI、趋势强度）扣减一档。
	trendBaseConfidence = 0.9
	secondaryPenalty    = 0.2
)

// Evaluate 将指标序列分类为 bullish/bearish/neutral。
// 数据不足或序列缺失时返回低置信度的 neutral，从不报错。
func Evaluate(series market.IndicatorSeries, cfg Config) Posture {
	neutral := Posture{State: StateNeutral, Confidence: lowConfidence}

	slope, ok := market.SlopePercent(series.Closes, cfg.Lookback)
	if !ok {
		return neutral
	}
	fast, okFast := market.Last(series.MAFast)
	slow, okSlow := market.Last(series.MASlow)
	if !okFast || !okSlow || slow == 0 {
		return neutral
	}
	maRatio := fast / slow
	if math.IsNaN(maRatio) || math.IsInf(maRatio, 0) {
		return neutral
	}
	rsi, hasRSI := market.Last(series.RSI)
	adx, hasADX := market.Last(series.TrendStrength)

	p := Posture{Slope: slope, MaRatio: maRatio, TrendStrength: adx}

	switch {
	case maRatio >= cfg.BullishMaRatio && slope >= cfg.MinSlope:
		p.State = StateBullish
		conf := trendBaseConfidence
		if !hasRSI || rsi < cfg.RSIBullish {
			conf -= secondaryPenalty
		}
		if !hasADX || adx < cfg.MinTrendStrength {
			conf -= secondaryPenalty
		}
		p.Confidence = clamp01(conf)
	case maRatio <= cfg.BearishMaRatio && slope <= -cfg.MinSlope:
		p.State = StateBearish
		conf := trendBaseConfidence
		if !hasRSI || rsi > cfg.RSIBearish {
			conf -= secondaryPenalty
		}
		if !hasADX || adx < cfg.MinTrendStrength {
			conf -= secondaryPenalty
		}
		p.Confidence = clamp01(conf)
	default:
		p.State = StateNeutral
		buffer := cfg.NeutralBuffer
		if buffer <= 0 {
			p.Confidence = lowConfidence
			break
		}
		// 比值越贴近 1，中性判断越可信。
		p.Confidence = clamp01(1 - math.Abs(maRatio-1)/buffer)
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
