// Package sandbox 将不可信策略源码校验并装载为可调用的模拟参与者。
// 生成摘要：
// 1) 策略以 YAML 文档声明，entry/exit 规则为 expr 表达式
// 2) 校验为纯静态分析：文档结构 + 表达式 AST 巡检 + 受限环境编译，不执行任何用户代码
// 3) 装载产出实现 domain.StrategyParticipant 的句柄，运行环境只暴露
//    K 线快照、参数与白名单纯函数模块，无 I/O、无反射、无进程访问
package sandbox

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wyfcoding/stockbacktest/internal/backtest/domain"
)

// 可识别的策略基类名
var recognizedBases = map[string]bool{
	"Strategy":    true,
	"BarStrategy": true,
}

// 模块白名单：纯函数、无副作用
var allowedModules = map[string]bool{
	"math":   true,
	"stats":  true,
	"ta":     true,
	"dates":  true,
	"series": true,
}

// ValidationResult 静态校验结果
type ValidationResult struct {
	Valid      bool
	Errors     []string
	Warnings   []string
	EntryPoint string
}

// strategyDoc 策略声明文档
type strategyDoc struct {
	Name        string             `yaml:"name"`
	Base        string             `yaml:"base"`
	Description string             `yaml:"description"`
	Use         []string           `yaml:"use"`
	Params      map[string]float64 `yaml:"params"`
	Entry       string             `yaml:"entry"`
	Exit        string             `yaml:"exit"`
}

// Sandbox 策略沙箱
type Sandbox struct{}

// New 创建沙箱
func New() *Sandbox {
	return &Sandbox{}
}

// Validate 对策略源码做静态校验，依次检查：
// 1) use 声明的模块必须在白名单内，违规时错误信息包含模块名
// 2) 表达式中不得出现动态环境访问（$env）与反射类内建（type/get）
// 3) let 声明遮蔽环境名仅告警，不拒绝
// 4) 必须恰好声明一个基类可识别的策略，其名称记为入口点
// 以下划线开头的标识符访问仅告警。
func (s *Sandbox) Validate(source string) ValidationResult {
	result := ValidationResult{}

	docs, err := parseDocuments(source)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	var declared []*strategyDoc
	for _, doc := range docs {
		if recognizedBases[doc.Base] {
			declared = append(declared, doc)
		} else if doc.Base != "" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("strategy base %q is not recognized", doc.Base))
		}
	}
	switch {
	case len(declared) == 0:
		result.Errors = append(result.Errors, "no strategy declaration with a recognized base found")
		return result
	case len(declared) > 1:
		result.Errors = append(result.Errors, "multiple strategy declarations found, exactly one is required")
		return result
	}

	doc := declared[0]
	if doc.Name == "" {
		result.Errors = append(result.Errors, "strategy declaration requires a name")
		return result
	}
	result.EntryPoint = doc.Name

	enabled := map[string]bool{}
	for _, module := range doc.Use {
		if !allowedModules[module] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("module %q is not in the sandbox allow-list", module))
			continue
		}
		enabled[module] = true
	}

	if strings.TrimSpace(doc.Entry) == "" {
		result.Errors = append(result.Errors, "strategy requires an entry rule")
	}

	rules := map[string]string{"entry": doc.Entry, "exit": doc.Exit}
	for label, code := range rules {
		if strings.TrimSpace(code) == "" {
			continue
		}
		errs, warns := inspectExpression(code, enabled)
		for _, e := range errs {
			result.Errors = append(result.Errors, fmt.Sprintf("%s rule: %s", label, e))
		}
		for _, w := range warns {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s rule: %s", label, w))
		}
		if len(errs) == 0 {
			if err := compileRule(code, enabled, doc.Params); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s rule: %v", label, err))
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// Load 装载策略。校验失败返回 SandboxRejected；
// 校验通过但编译/装载阶段失败返回 SandboxExecutionError。
// overrides 非空时产出的参数集为声明默认值与覆盖值的并集，源文档不受影响。
func (s *Sandbox) Load(source string, overrides map[string]float64) (*StrategyHandle, error) {
	validation := s.Validate(source)
	if !validation.Valid {
		return nil, &domain.SandboxRejected{Reasons: validation.Errors}
	}

	docs, err := parseDocuments(source)
	if err != nil {
		// Validate 已通过，正常不可达
		return nil, &domain.SandboxExecutionError{Cause: err}
	}
	var doc *strategyDoc
	for _, d := range docs {
		if recognizedBases[d.Base] {
			doc = d
			break
		}
	}

	params := make(map[string]float64, len(doc.Params)+len(overrides))
	for k, v := range doc.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}

	enabled := map[string]bool{}
	for _, module := range doc.Use {
		enabled[module] = true
	}

	handle, err := newHandle(doc.Name, doc.Entry, doc.Exit, enabled, params)
	if err != nil {
		return nil, &domain.SandboxExecutionError{Cause: err}
	}
	return handle, nil
}

// parseDocuments 解析（可能多文档的）YAML 源码
func parseDocuments(source string) ([]*strategyDoc, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("strategy source is empty")
	}

	decoder := yaml.NewDecoder(strings.NewReader(source))
	var docs []*strategyDoc
	for {
		var doc strategyDoc
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("strategy source is not valid YAML: %w", err)
		}
		docs = append(docs, &doc)
	}
	if len(docs) == 0 {
		return nil, errors.New("strategy source contains no documents")
	}
	return docs, nil
}
