package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushCloses(rt *runtime, closes ...float64) {
	for _, c := range closes {
		rt.push("2024-01-02", c, c, c)
	}
}

func TestTaSMA(t *testing.T) {
	rt := newRuntime(nil)
	pushCloses(rt, 1, 2, 3, 4, 5)
	ta := rt.taModule()

	sma := ta["sma"].(func(float64) float64)
	assert.InDelta(t, 4.0, sma(3), 1e-9)
	assert.InDelta(t, 3.0, sma(5), 1e-9)
	// 数据不足返回 0
	assert.Zero(t, sma(6))
}

func TestTaHighestLowest(t *testing.T) {
	rt := newRuntime(nil)
	rt.push("2024-01-02", 11, 9, 10)
	rt.push("2024-01-03", 14, 8, 12)
	rt.push("2024-01-04", 13, 10, 11)
	ta := rt.taModule()

	highest := ta["highest"].(func(float64) float64)
	lowest := ta["lowest"].(func(float64) float64)
	assert.InDelta(t, 14.0, highest(3), 1e-9)
	assert.InDelta(t, 8.0, lowest(3), 1e-9)
	assert.InDelta(t, 13.0, highest(1), 1e-9)
}

func TestTaRSIAllGains(t *testing.T) {
	rt := newRuntime(nil)
	pushCloses(rt, 10, 11, 12, 13, 14, 15)
	ta := rt.taModule()

	rsi := ta["rsi"].(func(float64) float64)
	assert.InDelta(t, 100.0, rsi(5), 1e-9)
	assert.Zero(t, rsi(10))
}

func TestTaChange(t *testing.T) {
	rt := newRuntime(nil)
	pushCloses(rt, 10, 11, 9)
	ta := rt.taModule()

	change := ta["change"].(func(float64) float64)
	assert.InDelta(t, -2.0, change(1), 1e-9)
	assert.InDelta(t, -1.0, change(2), 1e-9)
	assert.Zero(t, change(3))
}

func TestStatsWindowShorterThanRequested(t *testing.T) {
	rt := newRuntime(nil)
	pushCloses(rt, 2, 4)
	stats := rt.statsModule()

	mean := stats["mean"].(func(float64) float64)
	stdev := stats["stdev"].(func(float64) float64)
	// mean 在可得窗口上计算，不要求满窗
	assert.InDelta(t, 3.0, mean(5), 1e-9)
	assert.InDelta(t, 1.4142135, stdev(5), 1e-6)
}

func TestSeriesLookback(t *testing.T) {
	rt := newRuntime(nil)
	pushCloses(rt, 10, 11, 12)
	series := rt.seriesModule()

	closeAt := series["close"].(func(float64) float64)
	assert.InDelta(t, 12.0, closeAt(0), 1e-9)
	assert.InDelta(t, 10.0, closeAt(2), 1e-9)
	assert.Zero(t, closeAt(99))
}

func TestDatesFollowCurrentBar(t *testing.T) {
	rt := newRuntime(nil)
	rt.push("2024-03-15", 10, 10, 10)
	dates := rt.datesModule()

	year := dates["year"].(func() int)
	month := dates["month"].(func() int)
	day := dates["day"].(func() int)
	assert.Equal(t, 2024, year())
	assert.Equal(t, 3, month())
	assert.Equal(t, 15, day())
}

func TestBuildEnvGatesModules(t *testing.T) {
	env := buildEnv(newRuntime(nil), map[string]bool{"ta": true})

	require.Contains(t, env, "ta")
	assert.NotContains(t, env, "stats")
	assert.NotContains(t, env, "math")
	assert.Contains(t, env, "close")
	assert.Contains(t, env, "params")
}
