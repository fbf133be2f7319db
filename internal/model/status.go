package model

import "fmt"

// 订单与订单行共用同一组状态标签。
// in_progress → ready → completed，cancelled 可从任何非终态进入。
const (
	StatusInProgress = "in_progress"
	StatusReady      = "ready"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ErrInvalidTransition 表示状态机拒绝了这次迁移。
type ErrInvalidTransition struct {
	From, To string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

var statusGraph = map[string][]string{
	StatusInProgress: {StatusReady, StatusCompleted, StatusCancelled},
	StatusReady:      {StatusCompleted, StatusCancelled, StatusInProgress},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// ValidStatus 判断标签是否是已知状态。
func ValidStatus(s string) bool {
	_, ok := statusGraph[s]
	return ok
}

// IsTerminalStatus 终态订单只允许只读投影，不再接受编辑。
func IsTerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition 校验一次状态迁移是否合法。
func CanTransition(from, to string) bool {
	next, ok := statusGraph[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Transition 返回迁移结果，非法迁移返回 ErrInvalidTransition。
func Transition(from, to string) (string, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition{From: from, To: to}
	}
	return to, nil
}
