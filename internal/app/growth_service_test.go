package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kcfg "kestrel/internal/config"
	"kestrel/internal/growth"
	"kestrel/internal/strategyreg"
	apihttp "kestrel/internal/transport/http/api"
)

const testStrategies = `
strategies:
  balanced:
    description: 均衡配置
    allocation:
      btc: 0.5
      eth: 0.3
    max_allocation_pct: 0.6
  aggressive:
    allocation:
      btc: 0.8
`

type fakeSim struct {
	params growth.Params
	result *growth.Result
	calls  int
}

func (f *fakeSim) Run(_ context.Context, params growth.Params) (*growth.Result, error) {
	f.calls++
	f.params = params
	return f.result, nil
}

func newGrowthService(t *testing.T, sim simulationRunner) *GrowthService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testStrategies), 0o644))
	strategies, err := strategyreg.NewRegistry(path)
	require.NoError(t, err)

	cfg := &kcfg.Config{
		Assets: []kcfg.AssetConfig{
			{Key: "btc", Symbol: "BTCUSDT", Exchange: "binance"},
			{Key: "eth", Symbol: "ETHUSDT", Exchange: "binance"},
		},
		Strategies: kcfg.StrategiesConfig{Active: "balanced"},
	}
	cfg.Growth.Enabled = true
	cfg.Growth.InitialCapital = 10000
	cfg.Growth.TargetCapital = 1000000
	cfg.Growth.Simulation.HistoryDays = 365

	return &GrowthService{
		cfg:        func() *kcfg.Config { return cfg },
		strategies: strategies,
		sim:        sim,
	}
}

func TestRunSimulationUsesActiveStrategy(t *testing.T) {
	sim := &fakeSim{result: &growth.Result{RunID: "r1"}}
	svc := newGrowthService(t, sim)

	result, err := svc.RunSimulation(context.Background(), apihttp.RunOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "r1", result.RunID)
	require.Equal(t, 1, sim.calls)

	assert.Len(t, sim.params.Assets, 2)
	assert.InDelta(t, 0.5, sim.params.Config.Strategy.Allocation["btc"], 1e-9)
	assert.InDelta(t, 0.6, sim.params.Config.Strategy.MaxAllocationPct, 1e-9)
	assert.Equal(t, 365, sim.params.Config.Simulation.HistoryDays)
}

func TestRunSimulationOverrides(t *testing.T) {
	sim := &fakeSim{result: &growth.Result{RunID: "r2"}}
	svc := newGrowthService(t, sim)

	_, err := svc.RunSimulation(context.Background(), apihttp.RunOverrides{
		Strategy:       "aggressive",
		HistoryDays:    90,
		InitialCapital: 25000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, sim.params.Config.Strategy.Allocation["btc"], 1e-9)
	assert.Equal(t, 90, sim.params.Config.Simulation.HistoryDays)
	assert.InDelta(t, 25000.0, sim.params.Config.InitialCapital, 1e-9)
}

func TestRunSimulationUnknownStrategy(t *testing.T) {
	sim := &fakeSim{}
	svc := newGrowthService(t, sim)

	_, err := svc.RunSimulation(context.Background(), apihttp.RunOverrides{Strategy: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	assert.Equal(t, 0, sim.calls)
}
