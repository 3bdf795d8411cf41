// Package lifecycle 实现文件后处理状态机。
//
// 严格模式下的合法迁移：
//   - pending    → processing | failed
//   - processing → completed | failed
//   - completed、failed 为终态
//
// 宽松模式允许任意已知状态之间迁移。两种模式下，设置为当前状态都视为无操作的成功。
package lifecycle

import (
	"fmt"

	"report-intake-go/internal/model"
	"report-intake-go/pkg/errs"
)

// Policy 决定状态迁移的约束程度。
type Policy int

const (
	// Lenient 允许任意迁移。
	Lenient Policy = iota
	// Strict 只允许前向迁移。
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

var forward = map[model.ProcessingStatus]map[model.ProcessingStatus]bool{
	model.StatusPending:    {model.StatusProcessing: true, model.StatusFailed: true},
	model.StatusProcessing: {model.StatusCompleted: true, model.StatusFailed: true},
	model.StatusCompleted:  {},
	model.StatusFailed:     {},
}

// Machine 根据策略判定状态迁移。它本身无状态，可并发使用。
type Machine struct {
	policy Policy
}

// NewMachine 创建状态机。
func NewMachine(policy Policy) Machine {
	return Machine{policy: policy}
}

// PolicyFromStrict 将配置中的布尔开关转换为 Policy。
func PolicyFromStrict(strict bool) Policy {
	if strict {
		return Strict
	}
	return Lenient
}

// Policy 返回当前策略。
func (m Machine) Policy() Policy {
	return m.policy
}

// CanTransition 判断 from → to 是否允许。
func (m Machine) CanTransition(from, to model.ProcessingStatus) bool {
	return m.Transition(from, to) == nil
}

// Transition 校验 from → to。目标状态未知或迁移被策略禁止时返回 Validation 错误。
func (m Machine) Transition(from, to model.ProcessingStatus) error {
	if !to.Valid() {
		return errs.Newf(errs.Validation, "unknown processing status %q", to).
			WithDetail("status", string(to))
	}
	if from == to {
		return nil
	}
	if m.policy == Lenient {
		return nil
	}
	if !forward[from][to] {
		return errs.New(errs.Validation, fmt.Sprintf("transition %s -> %s is not allowed", from, to)).
			WithDetail("from", string(from)).
			WithDetail("to", string(to))
	}
	return nil
}

// IsTerminal 判断状态在严格模式下是否为终态。
func IsTerminal(s model.ProcessingStatus) bool {
	return s == model.StatusCompleted || s == model.StatusFailed
}
