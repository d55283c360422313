package posture

import "fmt"

type Action string

const (
	ActionLong  Action = "long"
	ActionShort Action = "short"
	ActionFlat  Action = "flat"
)

// Decision 是由姿态推导出的离散交易动作。
type Decision struct {
	Action     Action   `json:"action"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// DeriveStrategy 将姿态映射为 long/short/flat。置信度低于
// minimumConfidence 时强制 flat，并把 confidence 原因追加在末尾
// （调用方依赖该原因是最后一条用于展示）。纯函数。
func DeriveStrategy(p Posture, minimumConfidence float64) Decision {
	d := Decision{Confidence: p.Confidence}
	switch p.State {
	case StateBullish:
		d.Action = ActionLong
		d.Reasons = append(d.Reasons, fmt.Sprintf("posture bullish: maRatio=%.4f slope=%.4f", p.MaRatio, p.Slope))
	case StateBearish:
		d.Action = ActionShort
		d.Reasons = append(d.Reasons, fmt.Sprintf("posture bearish: maRatio=%.4f slope=%.4f", p.MaRatio, p.Slope))
	default:
		d.Action = ActionFlat
		d.Reasons = append(d.Reasons, "posture neutral")
	}
	if p.Confidence < minimumConfidence {
		d.Action = ActionFlat
		d.Reasons = append(d.Reasons, fmt.Sprintf("confidence %.2f below minimum %.2f", p.Confidence, minimumConfidence))
	}
	return d
}
