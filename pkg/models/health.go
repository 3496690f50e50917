package models

import "time"

// ServiceHealth reflects the current (not historical) health of every core
// component plus the derived overall flag. It is recomputed on demand and
// never persisted.
type ServiceHealth struct {
	Ledger       bool      `json:"ledger"`
	Cache        bool      `json:"cache"`
	Optimizer    bool      `json:"optimizer"`
	LocalRuntime bool      `json:"local_runtime"`
	Router       bool      `json:"router"`
	Facade       bool      `json:"facade"`
	Overall      bool      `json:"overall"`
	CheckedAt    time.Time `json:"checked_at"`
}

// ComputeOverall derives the overall flag: ledger, facade and router are
// mandatory; at least two of the optimization extras must be up.
func (h *ServiceHealth) ComputeOverall() {
	extras := 0
	for _, up := range []bool{h.Cache, h.Optimizer, h.LocalRuntime} {
		if up {
			extras++
		}
	}
	h.Overall = h.Ledger && h.Facade && h.Router && extras >= 2
}
