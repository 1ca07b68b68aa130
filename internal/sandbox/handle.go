package sandbox

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
)

// StrategyHandle 装载完成的策略句柄，实现 domain.StrategyParticipant。
// 规则在装载时编译为字节码程序，OnBar 仅做求值。
// 句柄持有可变的行情窗口，不能跨组合复用。
type StrategyHandle struct {
	name   string
	params map[string]float64

	rt  *runtime
	env map[string]any

	entry *vm.Program
	exit  *vm.Program
}

func newHandle(name, entryCode, exitCode string, enabled map[string]bool, params map[string]float64) (*StrategyHandle, error) {
	rt := newRuntime(params)
	env := buildEnv(rt, enabled)

	entry, err := compileBool(entryCode, env)
	if err != nil {
		return nil, fmt.Errorf("compile entry rule: %w", err)
	}

	var exit *vm.Program
	if exitCode != "" {
		exit, err = compileBool(exitCode, env)
		if err != nil {
			return nil, fmt.Errorf("compile exit rule: %w", err)
		}
	}

	return &StrategyHandle{
		name:   name,
		params: rt.params,
		rt:     rt,
		env:    env,
		entry:  entry,
		exit:   exit,
	}, nil
}

// Name 实现 domain.StrategyParticipant
func (h *StrategyHandle) Name() string { return h.name }

// Params 返回句柄生效的参数集副本
func (h *StrategyHandle) Params() map[string]float64 {
	out := make(map[string]float64, len(h.params))
	for k, v := range h.params {
		out[k] = v
	}
	return out
}

// OnBar 实现 domain.StrategyParticipant：推进行情窗口后求值规则。
// 空仓时求值 entry，持仓时求值 exit；两者互斥，同一根 K 线
// 不会同时产生买卖意图。
func (h *StrategyHandle) OnBar(ctx *domain.BarContext) ([]domain.OrderIntent, error) {
	h.rt.push(ctx.Date, ctx.High, ctx.Low, ctx.Close)

	h.env["open"] = ctx.Open
	h.env["high"] = ctx.High
	h.env["low"] = ctx.Low
	h.env["close"] = ctx.Close
	h.env["preclose"] = ctx.PreClose
	h.env["volume"] = ctx.Volume
	h.env["turnover"] = ctx.Turnover
	h.env["pct_change"] = ctx.PctChange
	h.env["bar_index"] = ctx.Index
	h.env["cash"] = ctx.Cash
	h.env["position"] = ctx.Position
	h.env["entry_price"] = ctx.EntryPrice

	if ctx.Position <= 0 {
		fire, err := h.eval(h.entry, "entry")
		if err != nil {
			return nil, err
		}
		if fire {
			return []domain.OrderIntent{{
				Side:        domain.IntentBuy,
				SizePercent: h.params["size_percent"],
			}}, nil
		}
		return nil, nil
	}

	if h.exit == nil {
		return nil, nil
	}
	fire, err := h.eval(h.exit, "exit")
	if err != nil {
		return nil, err
	}
	if fire {
		return []domain.OrderIntent{{Side: domain.IntentSell}}, nil
	}
	return nil, nil
}

func (h *StrategyHandle) eval(program *vm.Program, label string) (bool, error) {
	out, err := expr.Run(program, h.env)
	if err != nil {
		return false, fmt.Errorf("evaluate %s rule: %w", label, err)
	}
	fire, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%s rule produced %T, want bool", label, out)
	}
	return fire, nil
}
