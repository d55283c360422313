package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPolicy() Policy {
	return Policy{
		MaxExposurePct:  0.5,
		MaxDailyLossPct: 0.05,
		Blacklist: Blacklist{
			Symbols: []string{"LUNAUSDT"},
			Reasons: map[string]string{"LUNAUSDT": "delisted, do not touch"},
		},
	}
}

func TestBlacklistAlwaysBlocks(t *testing.T) {
	for _, qty := range []float64{0, 1, 1e9} {
		res := EvaluateTradeIntent(
			TradeIntent{Action: IntentOpen, Symbol: "lunausdt", Quantity: qty, Price: 2},
			Context{AccountEquity: 10000},
			testPolicy(),
		)
		assert.Equal(t, VerdictBlock, res.Verdict)
		assert.Equal(t, "blacklist", res.Reason)
		assert.Equal(t, StatusBlocked, res.Compliance.Status)
		assert.Equal(t, "delisted, do not touch", res.Compliance.Breaches[0].Message)
	}
}

func TestDailyLossBlocksBeforeExposure(t *testing.T) {
	// 当日亏损已达上限：即使敞口完全充足也必须阻断。
	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "BTCUSDT", Quantity: 0.01, Price: 50000},
		Context{AccountEquity: 10000, TotalExposure: 0, DailyLoss: 500},
		testPolicy(),
	)
	assert.Equal(t, VerdictBlock, res.Verdict)
	assert.Equal(t, "dailyLoss", res.Reason)
	assert.Equal(t, StatusBlocked, res.Compliance.Status)
}

func TestDailyLossValueTakesPrecedence(t *testing.T) {
	policy := testPolicy()
	policy.MaxDailyLossValue = 1000 // pct 上限是 500，value 优先

	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "BTCUSDT", Quantity: 0.01, Price: 50000},
		Context{AccountEquity: 10000, DailyLoss: 600},
		policy,
	)
	assert.Equal(t, VerdictAllow, res.Verdict)
}

func TestExposureWithinCapCleared(t *testing.T) {
	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "ETHUSDT", Quantity: 1, Price: 3000},
		Context{AccountEquity: 10000, TotalExposure: 1000},
		testPolicy(),
	)
	assert.Equal(t, VerdictAllow, res.Verdict)
	assert.Equal(t, StatusCleared, res.Compliance.Status)
	assert.Equal(t, 1.0, res.Quantity)
}

func TestExposureScaling(t *testing.T) {
	// cap = 5000，已用 4000，剩余 1000；请求 3000 名义 → 缩量至 1/3。
	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "ETHUSDT", Quantity: 1, Price: 3000},
		Context{AccountEquity: 10000, TotalExposure: 4000},
		testPolicy(),
	)
	assert.Equal(t, VerdictScale, res.Verdict)
	assert.Equal(t, StatusScaled, res.Compliance.Status)
	assert.Less(t, res.Quantity, 1.0)
	assert.Greater(t, res.Quantity, 0.0)
	assert.InDelta(t, 5000.0, 4000+res.Notional, 1e-6)
	assert.Equal(t, BreachMaxExposure, res.Compliance.Breaches[0].Type)
}

func TestExposureExhaustedBlocks(t *testing.T) {
	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "ETHUSDT", Quantity: 1, Price: 3000},
		Context{AccountEquity: 10000, TotalExposure: 5000},
		testPolicy(),
	)
	assert.Equal(t, VerdictBlock, res.Verdict)
	assert.Equal(t, "maxExposure", res.Reason)
}

func TestExposureValueTakesPrecedence(t *testing.T) {
	policy := testPolicy()
	policy.MaxExposureValue = 20000

	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "ETHUSDT", Quantity: 3, Price: 3000},
		Context{AccountEquity: 10000, TotalExposure: 6000},
		policy,
	)
	assert.Equal(t, VerdictAllow, res.Verdict)
}

func TestMalformedIntentZeroNotional(t *testing.T) {
	res := EvaluateTradeIntent(
		TradeIntent{Action: IntentOpen, Symbol: "ETHUSDT", Quantity: 1, Price: math.NaN()},
		Context{AccountEquity: 10000, TotalExposure: 4999},
		testPolicy(),
	)
	// 非法价格 → 零名义敞口，平凡通过；校验是上游职责。
	assert.Equal(t, VerdictAllow, res.Verdict)
	assert.Equal(t, 0.0, res.Notional)
}
