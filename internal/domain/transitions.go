package domain

var settlementTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementPending:    {SettlementProcessing, SettlementCancelled},
	SettlementProcessing: {SettlementCompleted, SettlementFailed},
	SettlementFailed:     {SettlementProcessing, SettlementCancelled},
	SettlementCompleted:  {},
	SettlementCancelled:  {},
}

func CanTransition(from, to SettlementStatus) bool {
	for _, s := range settlementTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s SettlementStatus) Valid() bool {
	_, ok := settlementTransitions[s]
	return ok
}

func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementCompleted || s == SettlementCancelled
}

// IsActive reports whether the settlement blocks a new one for the same seller.
func (s SettlementStatus) IsActive() bool {
	return s == SettlementPending || s == SettlementProcessing
}

// IsProcessable reports whether processing may start from s.
func (s SettlementStatus) IsProcessable() bool {
	return s == SettlementPending || s == SettlementFailed
}

func ActiveStatuses() []SettlementStatus {
	return []SettlementStatus{SettlementPending, SettlementProcessing}
}
