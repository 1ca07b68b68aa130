package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
)

const dualSMASource = `
name: DualSMA
base: Strategy
description: 双均线趋势跟随
use: [ta, math]
params:
  fast: 5
  slow: 20
  size_percent: 90
entry: "ta.sma(params.fast) > ta.sma(params.slow)"
exit: "ta.sma(params.fast) < ta.sma(params.slow)"
`

func TestValidateAcceptsWellFormedStrategy(t *testing.T) {
	result := New().Validate(dualSMASource)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "DualSMA", result.EntryPoint)
}

func TestValidateRejectsModuleOutsideAllowList(t *testing.T) {
	source := `
name: Evil
base: Strategy
use: [ta, os]
entry: "close > 0.0"
`
	result := New().Validate(source)

	require.False(t, result.Valid)
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, `"os"`) {
			found = true
		}
	}
	assert.True(t, found, "rejection should name the offending module: %v", result.Errors)
}

func TestValidateRejectsUndeclaredModuleUse(t *testing.T) {
	source := `
name: Sneaky
base: Strategy
use: [ta]
entry: "stats.mean(5.0) > 0.0"
`
	result := New().Validate(source)

	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], `"stats"`)
}

func TestValidateRejectsEnvAccess(t *testing.T) {
	source := `
name: Probe
base: Strategy
entry: "$env != nil"
`
	result := New().Validate(source)

	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "$env")
}

func TestValidateRejectsDynamicBuiltins(t *testing.T) {
	source := `
name: Reflector
base: Strategy
entry: "type(close) == \"float\""
`
	result := New().Validate(source)

	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], `"type"`)
}

func TestValidateRejectsUnknownIdentifier(t *testing.T) {
	source := `
name: Typo
base: Strategy
entry: "clsoe > 0.0"
`
	result := New().Validate(source)

	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "unknown identifier")
}

func TestValidateRequiresExactlyOneStrategy(t *testing.T) {
	none := `
name: NotAStrategy
base: Helper
entry: "close > 0.0"
`
	result := New().Validate(none)
	require.False(t, result.Valid)

	two := `
name: First
base: Strategy
entry: "close > 0.0"
---
name: Second
base: BarStrategy
entry: "close > 0.0"
`
	result = New().Validate(two)
	require.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "exactly one")
}

func TestValidateWarnsOnUnderscoreAccess(t *testing.T) {
	source := `
name: Peeker
base: Strategy
params:
  _hidden: 1
entry: "params._hidden > 0.0"
`
	result := New().Validate(source)

	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], `"_hidden"`)
}

func TestValidateWarnsOnShadowingLet(t *testing.T) {
	source := `
name: Shadower
base: Strategy
entry: "let close = 1.0; close > 0.0"
`
	result := New().Validate(source)

	assert.True(t, result.Valid)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "shadows")
}

func TestValidateAcceptsLetDeclaredIdentifier(t *testing.T) {
	source := `
name: GapUp
base: Strategy
entry: "let gap = close - open; gap > 0.0"
`
	result := New().Validate(source)

	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
}

func TestLoadEvaluatesLetRules(t *testing.T) {
	source := `
name: GapUp
base: Strategy
entry: "let gap = close - open; gap > 0.0"
`
	handle, err := New().Load(source, nil)
	require.NoError(t, err)

	intents, err := handle.OnBar(&domain.BarContext{Date: "2024-01-02", Open: 10, Close: 9.5})
	require.NoError(t, err)
	assert.Empty(t, intents)

	intents, err = handle.OnBar(&domain.BarContext{Date: "2024-01-03", Open: 9.5, Close: 10, Index: 1})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.IntentBuy, intents[0].Side)
}

func TestLoadAcceptsShadowingLet(t *testing.T) {
	source := `
name: Shadower
base: Strategy
entry: "let close = 1.0; close > 0.0"
`
	handle, err := New().Load(source, nil)
	require.NoError(t, err)

	intents, err := handle.OnBar(&domain.BarContext{Date: "2024-01-02", Close: -5})
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.IntentBuy, intents[0].Side)
}

func TestLoadMergesOverridesWithoutMutatingDefaults(t *testing.T) {
	box := New()

	derived, err := box.Load(dualSMASource, map[string]float64{"fast": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, derived.Params()["fast"])
	assert.Equal(t, 20.0, derived.Params()["slow"])

	original, err := box.Load(dualSMASource, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, original.Params()["fast"])
}

func TestLoadRejectsInvalidSource(t *testing.T) {
	source := `
name: Broken
base: Strategy
entry: ""
`
	_, err := New().Load(source, nil)

	var rejected *domain.SandboxRejected
	require.ErrorAs(t, err, &rejected)
	assert.NotEmpty(t, rejected.Reasons)
}

func TestHandleOnBarEntryAndExit(t *testing.T) {
	source := `
name: Threshold
base: Strategy
params:
  size_percent: 80
entry: "close > 10.0"
exit: "close < 9.5"
`
	handle, err := New().Load(source, nil)
	require.NoError(t, err)
	assert.Equal(t, "Threshold", handle.Name())

	bar := func(index int, close, position float64) *domain.BarContext {
		return &domain.BarContext{
			Code:     "600519",
			Date:     "2024-01-02",
			Index:    index,
			Open:     close,
			High:     close,
			Low:      close,
			Close:    close,
			Position: position,
		}
	}

	intents, err := handle.OnBar(bar(0, 9.8, 0))
	require.NoError(t, err)
	assert.Empty(t, intents)

	intents, err = handle.OnBar(bar(1, 10.2, 0))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.IntentBuy, intents[0].Side)
	assert.Equal(t, 80.0, intents[0].SizePercent)

	intents, err = handle.OnBar(bar(2, 10.1, 100))
	require.NoError(t, err)
	assert.Empty(t, intents)

	intents, err = handle.OnBar(bar(3, 9.2, 100))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, domain.IntentSell, intents[0].Side)
}

func TestHandleWithoutExitNeverSells(t *testing.T) {
	source := `
name: HoldForever
base: Strategy
entry: "close > 0.0"
`
	handle, err := New().Load(source, nil)
	require.NoError(t, err)

	intents, err := handle.OnBar(&domain.BarContext{Date: "2024-01-02", Close: 10, Position: 100})
	require.NoError(t, err)
	assert.Empty(t, intents)
}

func TestLoadRejectedSourceIsCombinationLocal(t *testing.T) {
	_, err := New().Load("not yaml: [", nil)
	require.Error(t, err)
	assert.True(t, domain.IsCombinationError(err))
	assert.Equal(t, "SANDBOX_REJECTED", domain.FailureKind(err))
}
