package context

// SelectorConfig holds the bounds applied when pruning a turn log for a request.
type SelectorConfig struct {
	Budget      int `json:"budget"`       // Soft ceiling on the accumulated approximate cost of non-system turns.
	MaxTurns    int `json:"max_turns"`    // Scanning stops once more than this many non-system turns are included.
	CostDivisor int `json:"cost_divisor"` // Characters per approximate cost unit; cost is ceil(len/divisor).
}

// DefaultSelectorConfig returns a SelectorConfig with sensible defaults
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Budget:      3500,
		MaxTurns:    24,
		CostDivisor: 3,
	}
}
