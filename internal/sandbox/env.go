package sandbox

import (
	"math"
	"time"
)

// runtime 策略句柄的私有运行状态：参数与增量维护的行情窗口。
// 每个句柄独占一份，不与并发组合共享。
type runtime struct {
	params map[string]float64

	closes []float64
	highs  []float64
	lows   []float64
	date   time.Time
}

func newRuntime(params map[string]float64) *runtime {
	if params == nil {
		params = map[string]float64{}
	}
	return &runtime{params: params}
}

// push 追加一根 K 线到窗口
func (rt *runtime) push(date string, high, low, close float64) {
	rt.closes = append(rt.closes, close)
	rt.highs = append(rt.highs, high)
	rt.lows = append(rt.lows, low)
	if t, err := time.Parse("2006-01-02", date); err == nil {
		rt.date = t
	}
}

// buildEnv 构造表达式运行环境：K 线字段、组合快照、参数，
// 以及 use 声明启用的白名单模块。环境之外没有任何可达能力。
func buildEnv(rt *runtime, enabled map[string]bool) map[string]any {
	env := map[string]any{
		"open":        0.0,
		"high":        0.0,
		"low":         0.0,
		"close":       0.0,
		"preclose":    0.0,
		"volume":      0.0,
		"turnover":    0.0,
		"pct_change":  0.0,
		"bar_index":   0,
		"cash":        0.0,
		"position":    0.0,
		"entry_price": 0.0,
		"params":      rt.params,
	}

	if enabled["math"] {
		env["math"] = mathModule()
	}
	if enabled["stats"] {
		env["stats"] = rt.statsModule()
	}
	if enabled["ta"] {
		env["ta"] = rt.taModule()
	}
	if enabled["dates"] {
		env["dates"] = rt.datesModule()
	}
	if enabled["series"] {
		env["series"] = rt.seriesModule()
	}
	return env
}

// mathModule 纯算术函数
func mathModule() map[string]any {
	return map[string]any{
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
		"ln":    math.Log,
		"log10": math.Log10,
		"pow":   math.Pow,
		"min":   math.Min,
		"max":   math.Max,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"round": math.Round,
	}
}

// statsModule 收盘价窗口上的统计量
func (rt *runtime) statsModule() map[string]any {
	return map[string]any{
		"mean": func(n float64) float64 {
			window := rt.tail(rt.closes, int(n))
			if len(window) == 0 {
				return 0
			}
			return mean(window)
		},
		"stdev": func(n float64) float64 {
			window := rt.tail(rt.closes, int(n))
			if len(window) < 2 {
				return 0
			}
			m := mean(window)
			var sum float64
			for _, v := range window {
				d := v - m
				sum += d * d
			}
			return math.Sqrt(sum / float64(len(window)-1))
		},
	}
}

// taModule 常用技术指标，数据不足时返回 0，策略应以 bar_index 自行守门
func (rt *runtime) taModule() map[string]any {
	return map[string]any{
		"sma": func(n float64) float64 {
			window := rt.tail(rt.closes, int(n))
			if len(window) < int(n) || len(window) == 0 {
				return 0
			}
			return mean(window)
		},
		"ema": func(n float64) float64 {
			period := int(n)
			if period <= 0 || len(rt.closes) < period {
				return 0
			}
			k := 2 / (n + 1)
			ema := rt.closes[0]
			for _, c := range rt.closes[1:] {
				ema = c*k + ema*(1-k)
			}
			return ema
		},
		"highest": func(n float64) float64 {
			window := rt.tail(rt.highs, int(n))
			if len(window) == 0 {
				return 0
			}
			highest := window[0]
			for _, v := range window[1:] {
				if v > highest {
					highest = v
				}
			}
			return highest
		},
		"lowest": func(n float64) float64 {
			window := rt.tail(rt.lows, int(n))
			if len(window) == 0 {
				return 0
			}
			lowest := window[0]
			for _, v := range window[1:] {
				if v < lowest {
					lowest = v
				}
			}
			return lowest
		},
		"rsi": func(n float64) float64 {
			period := int(n)
			if period <= 0 || len(rt.closes) < period+1 {
				return 0
			}
			window := rt.closes[len(rt.closes)-period-1:]
			var gains, losses float64
			for i := 1; i < len(window); i++ {
				diff := window[i] - window[i-1]
				if diff > 0 {
					gains += diff
				} else {
					losses -= diff
				}
			}
			if losses == 0 {
				return 100
			}
			rs := gains / losses
			return 100 - 100/(1+rs)
		},
		"change": func(n float64) float64 {
			back := int(n)
			if back <= 0 || len(rt.closes) <= back {
				return 0
			}
			return rt.closes[len(rt.closes)-1] - rt.closes[len(rt.closes)-1-back]
		},
	}
}

// datesModule 当前 K 线的日期分量
func (rt *runtime) datesModule() map[string]any {
	return map[string]any{
		"year":    func() int { return rt.date.Year() },
		"month":   func() int { return int(rt.date.Month()) },
		"day":     func() int { return rt.date.Day() },
		"weekday": func() int { return int(rt.date.Weekday()) },
	}
}

// seriesModule 历史序列回看，n=0 为当前 K 线
func (rt *runtime) seriesModule() map[string]any {
	return map[string]any{
		"close": func(n float64) float64 { return rt.lookbackValue(rt.closes, int(n)) },
		"high":  func(n float64) float64 { return rt.lookbackValue(rt.highs, int(n)) },
		"low":   func(n float64) float64 { return rt.lookbackValue(rt.lows, int(n)) },
	}
}

func (rt *runtime) lookbackValue(data []float64, back int) float64 {
	idx := len(data) - 1 - back
	if back < 0 || idx < 0 {
		return 0
	}
	return data[idx]
}

// tail 窗口末尾 n 个元素
func (rt *runtime) tail(data []float64, n int) []float64 {
	if n <= 0 || len(data) == 0 {
		return nil
	}
	if len(data) < n {
		return data
	}
	return data[len(data)-n:]
}

func mean(data []float64) float64 {
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}
