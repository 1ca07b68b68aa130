package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyDefinitionWithParamsDerivesUnion(t *testing.T) {
	def := NewStrategyDefinition("s1", "DualSMA", "source", "hash",
		map[string]float64{"fast": 5, "slow": 20})
	def.MarkValidated("DualSMA")

	derived, err := def.WithParams(map[string]float64{"fast": 3, "stop": 0.08})
	require.NoError(t, err)

	params, err := derived.ParamsMap()
	require.NoError(t, err)
	assert.Equal(t, 3.0, params["fast"])
	assert.Equal(t, 20.0, params["slow"])
	assert.Equal(t, 0.08, params["stop"])
	assert.True(t, derived.Valid)

	// 原定义不受影响
	original, err := def.ParamsMap()
	require.NoError(t, err)
	assert.Equal(t, 5.0, original["fast"])
	assert.NotContains(t, original, "stop")
}

func TestStrategyDefinitionInvalidParamsJSON(t *testing.T) {
	def := NewStrategyDefinition("s1", "X", "source", "hash", nil)
	def.Parameters = "{broken"

	_, err := def.ParamsMap()
	assert.Error(t, err)
}

func TestFailureKindClassification(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{&SandboxRejected{Reasons: []string{"bad"}}, "SANDBOX_REJECTED"},
		{&SandboxExecutionError{Cause: fmt.Errorf("load")}, "SANDBOX_EXECUTION_ERROR"},
		{&DataError{Code: "600000", Detail: "no bars"}, "DATA_ERROR"},
		{&ExecutionError{Code: "600000", Date: "2024-01-02", Cause: fmt.Errorf("panic")}, "EXECUTION_ERROR"},
		{&SystemError{Op: "persist", Cause: fmt.Errorf("down")}, "SYSTEM_ERROR"},
		{fmt.Errorf("plain"), "UNKNOWN"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.kind, FailureKind(tc.err))
	}

	// 包装后的错误仍可分类
	wrapped := fmt.Errorf("combination: %w", &DataError{Code: "600000"})
	assert.Equal(t, "DATA_ERROR", FailureKind(wrapped))
	assert.True(t, IsCombinationError(wrapped))
	assert.False(t, IsCombinationError(&SystemError{Op: "x", Cause: fmt.Errorf("y")}))
}
