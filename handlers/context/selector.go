package context

import (
	"unicode/utf8"

	"chatkit/core"
)

// Selector derives the bounded, chronologically ordered subset of turns sent
// with each request.
type Selector struct {
	config SelectorConfig
}

func NewSelector(config SelectorConfig) *Selector {
	if config.CostDivisor <= 0 {
		config.CostDivisor = DefaultSelectorConfig().CostDivisor
	}
	return &Selector{config: config}
}

func (s *Selector) Config() SelectorConfig {
	return s.config
}

// ApproxCost is ceil(characters/divisor).
func ApproxCost(content string, divisor int) int {
	if divisor <= 0 {
		divisor = 1
	}
	n := utf8.RuneCountInString(content)
	return (n + divisor - 1) / divisor
}

// Select scans newest to oldest. System turns are always kept and cost
// nothing. A non-system turn that would push the running cost over Budget, or
// that arrives after more than MaxTurns non-system turns were kept, ends the
// scan: it and everything older are dropped whole. The result always starts
// with exactly one system turn.
//
// Because the scan stops at the first turn that does not fit, a large turn in
// the middle of the log hides every turn older than it even when those would
// fit on their own.
func (s *Selector) Select(turns []core.Turn) []core.Turn {
	picked := make([]core.Turn, 0, len(turns))
	cost, kept := 0, 0

	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role == core.RoleSystem {
			continue
		}
		c := ApproxCost(t.Content, s.config.CostDivisor)
		if cost+c > s.config.Budget || kept > s.config.MaxTurns {
			break
		}
		cost += c
		kept++
		picked = append(picked, t)
	}

	// the earliest system turn is the one kept
	var system *core.Turn
	for i := range turns {
		if turns[i].Role == core.RoleSystem {
			system = &turns[i]
			break
		}
	}

	out := make([]core.Turn, 0, len(picked)+1)
	if system != nil {
		out = append(out, *system)
	}
	for i := len(picked) - 1; i >= 0; i-- {
		out = append(out, picked[i])
	}
	return out
}
