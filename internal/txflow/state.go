package txflow

// SlotState is a read-only view of a slot
type SlotState struct {
	Name   string   `json:"name"`
	Status Status   `json:"status"`
	TxHash string   `json:"txHash,omitempty"`
	Last   *Outcome `json:"last,omitempty"`
}

// SpendState pairs a spend decision with its approval slot
type SpendState struct {
	Decision
	Approval *SlotState `json:"approval,omitempty"` // nil for the native asset
}

// State is a read-only view of a flow
type State struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"`
	Spends     []SpendState `json:"spends"`
	Primary    SlotState    `json:"primary"`
	CanExecute bool         `json:"canExecute"`
	Cleared    bool         `json:"cleared"`
}

func slotState(s *Slot) SlotState {
	st := SlotState{Name: s.cfg.Name, Status: s.Status(), Last: s.LastOutcome()}
	if hash, ok := s.TxHash(); ok {
		st.TxHash = hash.Hex()
	}
	return st
}

// State returns a snapshot of the flow for display
func (f *Flow) State() State {
	decisions := f.Decisions()
	st := State{
		ID:      f.op.ID,
		Kind:    f.op.Kind,
		Primary: slotState(f.primary),
		Cleared: f.Cleared(),
	}

	st.CanExecute = !st.Cleared && st.Primary.Status == StatusIdle
	for i, d := range decisions {
		spend := SpendState{Decision: d}
		if slot, ok := f.approvals[f.op.Spends[i].Token.Address]; ok {
			ss := slotState(slot)
			spend.Approval = &ss
		}
		if !d.ActionEnabled {
			st.CanExecute = false
		}
		st.Spends = append(st.Spends, spend)
	}
	return st
}
