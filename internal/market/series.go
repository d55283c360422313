package market

import "math"

// IndicatorSeries 是一次姿态评估所需的全部指标序列快照。
// 各序列按下标对齐，warm-up 段以 NaN 占位；快照创建后不可修改。
type IndicatorSeries struct {
	Closes        []float64
	MAFast        []float64
	MASlow        []float64
	RSI           []float64
	TrendStrength []float64
}

// SlopePercent 返回收盘序列最近 lookback 根的百分比斜率：
// (closes[last] - closes[last-lookback]) / closes[last-lookback]。
// 数据不足或基准价非法时返回 (0, false)。
func SlopePercent(closes []float64, lookback int) (float64, bool) {
	if lookback <= 0 || len(closes) <= lookback {
		return 0, false
	}
	last := closes[len(closes)-1]
	base := closes[len(closes)-1-lookback]
	if !isUsable(base) || !isUsable(last) || base == 0 {
		return 0, false
	}
	return (last - base) / base, true
}

// Last 返回序列末尾的可用值（跳过 NaN），没有则返回 (0, false)。
func Last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if isUsable(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func isUsable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
