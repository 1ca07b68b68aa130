package sandbox

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// 动态执行/反射类内建，一律拒绝
var deniedBuiltins = map[string]bool{
	"type": true,
	"get":  true,
}

// 表达式环境中始终可见的名字
var envNames = map[string]bool{
	"open":        true,
	"high":        true,
	"low":         true,
	"close":       true,
	"preclose":    true,
	"volume":      true,
	"turnover":    true,
	"pct_change":  true,
	"bar_index":   true,
	"cash":        true,
	"position":    true,
	"entry_price": true,
	"params":      true,
}

// ruleInspector 表达式 AST 巡检器
type ruleInspector struct {
	enabled  map[string]bool
	declared map[string]bool
	errors   []string
	warnings []string
}

// Visit 实现 ast.Visitor
func (v *ruleInspector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		v.checkIdentifier(n.Value)
	case *ast.BuiltinNode:
		if deniedBuiltins[n.Name] {
			v.errors = append(v.errors,
				fmt.Sprintf("builtin %q is a dynamic-execution primitive and is not allowed", n.Name))
		}
	case *ast.CallNode:
		if callee, ok := n.Callee.(*ast.IdentifierNode); ok && deniedBuiltins[callee.Value] {
			v.errors = append(v.errors,
				fmt.Sprintf("builtin %q is a dynamic-execution primitive and is not allowed", callee.Value))
		}
	case *ast.MemberNode:
		if prop, ok := n.Property.(*ast.StringNode); ok && strings.HasPrefix(prop.Value, "_") {
			v.warnings = append(v.warnings,
				fmt.Sprintf("access to underscore-prefixed name %q is discouraged", prop.Value))
		}
	case *ast.VariableDeclaratorNode:
		if envNames[n.Name] || allowedModules[n.Name] {
			v.warnings = append(v.warnings,
				fmt.Sprintf("let %q shadows a sandbox name", n.Name))
		}
		if strings.HasPrefix(n.Name, "_") {
			v.warnings = append(v.warnings,
				fmt.Sprintf("access to underscore-prefixed name %q is discouraged", n.Name))
		}
		v.declared[n.Name] = true
	}
}

func (v *ruleInspector) checkIdentifier(name string) {
	switch {
	case name == "$env":
		v.errors = append(v.errors, "direct environment access via $env is not allowed")
	case strings.HasPrefix(name, "_"):
		v.warnings = append(v.warnings,
			fmt.Sprintf("access to underscore-prefixed name %q is discouraged", name))
	case envNames[name] || v.declared[name]:
		// 环境字段或 let 声明
	case allowedModules[name]:
		if !v.enabled[name] {
			v.errors = append(v.errors,
				fmt.Sprintf("module %q is not declared in the use list", name))
		}
	default:
		v.errors = append(v.errors, fmt.Sprintf("unknown identifier %q", name))
	}
}

// letCollector 收集表达式中全部 let 声明名。
// ast.Walk 为后序遍历，若与标识符检查混在一趟里，let 体内的
// 标识符会先于声明被访问到，因此声明名必须单独先收集一遍。
type letCollector struct {
	names map[string]bool
}

func (c *letCollector) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.VariableDeclaratorNode); ok {
		c.names[n.Name] = true
	}
}

func collectLetNames(tree *parser.Tree) map[string]bool {
	collector := &letCollector{names: map[string]bool{}}
	ast.Walk(&tree.Node, collector)
	return collector.names
}

// inspectExpression 解析并巡检单条规则表达式，返回错误与告警。
// 只做语法树分析，不执行。
func inspectExpression(code string, enabled map[string]bool) (errs []string, warns []string) {
	tree, err := parser.Parse(code)
	if err != nil {
		return []string{fmt.Sprintf("parse error: %v", err)}, nil
	}

	inspector := &ruleInspector{
		enabled:  enabled,
		declared: collectLetNames(tree),
	}
	ast.Walk(&tree.Node, inspector)
	return inspector.errors, inspector.warnings
}

// compileBool 编译一条必须产出布尔值的规则表达式。
// 编译环境中剔除被 let 遮蔽的名字，否则 expr 会以 cannot redeclare
// 拒绝合法的遮蔽声明；运行时求值不受影响，取 let 的值。
func compileBool(code string, env map[string]any) (*vm.Program, error) {
	tree, err := parser.Parse(code)
	if err != nil {
		return nil, err
	}
	compileEnv := env
	if shadowed := collectLetNames(tree); len(shadowed) > 0 {
		compileEnv = make(map[string]any, len(env))
		for k, v := range env {
			if !shadowed[k] {
				compileEnv[k] = v
			}
		}
	}
	return expr.Compile(code, expr.Env(compileEnv), expr.AsBool())
}

// compileRule 在受限环境下静态编译规则，规则必须产出布尔值。
// 编译使用与运行时同构的环境（仅启用 use 声明的模块），
// 未知名字与类型错误在此暴露。
func compileRule(code string, enabled map[string]bool, params map[string]float64) error {
	env := buildEnv(newRuntime(params), enabled)
	if _, err := compileBool(code, env); err != nil {
		return fmt.Errorf("compile error: %v", err)
	}
	return nil
}
