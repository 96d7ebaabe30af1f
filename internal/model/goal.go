package model

import "cmp"

// Goal types understood by the built-in planners.
const (
	GoalReach = "reach"
	GoalClaim = "claim"
	GoalAlert = "alert"
)

// Goal is an agent intention. A zero RemoveTime means the goal never expires.
type Goal struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Value      any     `json:"value,omitempty"`
	Utility    float64 `json:"utility"`
	Achieved   bool    `json:"achieved"`
	RemoveTime int64   `json:"remove_time,omitempty"`
}

type GoalOption func(*Goal)

func WithUtility(utility float64) GoalOption {
	return func(g *Goal) { g.Utility = utility }
}

// WithRemoveTime makes the goal expire once the cycle counter reaches t.
func WithRemoveTime(t int64) GoalOption {
	return func(g *Goal) { g.RemoveTime = t }
}

func NewGoal(goalType, name string, value any, opts ...GoalOption) Goal {
	g := Goal{Type: goalType, Name: name, Value: value}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

func (g Goal) Expired(now int64) bool {
	return g.RemoveTime > 0 && now >= g.RemoveTime
}

// Prunable reports whether the goal should leave the queue at cycle now.
func (g Goal) Prunable(now int64) bool {
	return g.Achieved || g.Expired(now)
}

// CompareGoalUtility orders goals by ascending utility.
func CompareGoalUtility(a, b Goal) int {
	return cmp.Compare(a.Utility, b.Utility)
}
