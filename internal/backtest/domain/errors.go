// Package domain 回测服务领域层
// 生成摘要：
// 1) 定义错误分类：沙箱拒绝/沙箱执行失败/数据缺失/模拟执行失败为组合级错误
// 2) SystemError（持久化/事件总线故障）为任务级致命错误
package domain

import (
	"errors"
	"fmt"
)

// SandboxRejected 策略源码静态校验未通过，用户可修复
type SandboxRejected struct {
	Reasons []string
}

func (e *SandboxRejected) Error() string {
	if len(e.Reasons) == 0 {
		return "strategy rejected by sandbox"
	}
	return fmt.Sprintf("strategy rejected by sandbox: %s", e.Reasons[0])
}

// SandboxExecutionError 策略源码通过校验但装载阶段失败
type SandboxExecutionError struct {
	Cause error
}

func (e *SandboxExecutionError) Error() string {
	return fmt.Sprintf("strategy load failed: %v", e.Cause)
}

func (e *SandboxExecutionError) Unwrap() error { return e.Cause }

// DataError 请求区间内无行情数据
type DataError struct {
	Code   string
	Detail string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("no market data for %s: %s", e.Code, e.Detail)
}

// ExecutionError 模拟过程中策略或规则评估抛出的不可恢复错误
type ExecutionError struct {
	Code  string
	Date  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("simulation failed for %s at %s: %v", e.Code, e.Date, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// SystemError 持久化或事件总线故障，任务级致命
type SystemError struct {
	Op    string
	Cause error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error during %s: %v", e.Op, e.Cause)
}

func (e *SystemError) Unwrap() error { return e.Cause }

// IsCombinationError 判断错误是否为组合级（不中断任务）
func IsCombinationError(err error) bool {
	var (
		rejected *SandboxRejected
		loadErr  *SandboxExecutionError
		dataErr  *DataError
		execErr  *ExecutionError
	)
	return errors.As(err, &rejected) ||
		errors.As(err, &loadErr) ||
		errors.As(err, &dataErr) ||
		errors.As(err, &execErr)
}

// FailureKind 返回错误分类标识，写入结果行
func FailureKind(err error) string {
	var (
		rejected *SandboxRejected
		loadErr  *SandboxExecutionError
		dataErr  *DataError
		execErr  *ExecutionError
		sysErr   *SystemError
	)
	switch {
	case errors.As(err, &rejected):
		return "SANDBOX_REJECTED"
	case errors.As(err, &loadErr):
		return "SANDBOX_EXECUTION_ERROR"
	case errors.As(err, &dataErr):
		return "DATA_ERROR"
	case errors.As(err, &execErr):
		return "EXECUTION_ERROR"
	case errors.As(err, &sysErr):
		return "SYSTEM_ERROR"
	default:
		return "UNKNOWN"
	}
}
