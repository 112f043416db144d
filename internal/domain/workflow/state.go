package workflow

// State represents a procurement request status in the approval lifecycle
type State string

const (
	StateDraft               State = "DRAFT"
	StateSubmitted           State = "SUBMITTED"
	StateDepartmentReview    State = "DEPARTMENT_REVIEW"
	StateDepartmentApproved  State = "DEPARTMENT_APPROVED"
	StateDepartmentReturned  State = "DEPARTMENT_RETURNED"
	StateHODReview           State = "HOD_REVIEW"
	StateExecutiveReview     State = "EXECUTIVE_REVIEW"
	StateProcurementReview   State = "PROCUREMENT_REVIEW"
	StateFinanceReview       State = "FINANCE_REVIEW"
	StateBudgetManagerReview State = "BUDGET_MANAGER_REVIEW"
	StateFinanceApproved     State = "FINANCE_APPROVED"
	StateFinanceReturned     State = "FINANCE_RETURNED"
	StateSentToVendor        State = "SENT_TO_VENDOR"
	StateClosed              State = "CLOSED"
	StateRejected            State = "REJECTED"
)

var allStates = []State{
	StateDraft,
	StateSubmitted,
	StateDepartmentReview,
	StateDepartmentApproved,
	StateDepartmentReturned,
	StateHODReview,
	StateExecutiveReview,
	StateProcurementReview,
	StateFinanceReview,
	StateBudgetManagerReview,
	StateFinanceApproved,
	StateFinanceReturned,
	StateSentToVendor,
	StateClosed,
	StateRejected,
}

var validStates = func() map[State]bool {
	m := make(map[State]bool, len(allStates))
	for _, s := range allStates {
		m[s] = true
	}
	return m
}()

var terminalStates = map[State]bool{
	StateClosed:   true,
	StateRejected: true,
}

// Returned states have no outgoing edges; a new request (or a manual reopen) is needed.
var deadEndStates = map[State]bool{
	StateDepartmentReturned: true,
	StateFinanceReturned:    true,
}

var financeStages = map[State]bool{
	StateFinanceReview:       true,
	StateBudgetManagerReview: true,
}

var combinationEligible = map[State]bool{
	StateDraft:             true,
	StateSubmitted:         true,
	StateDepartmentReview:  true,
	StateProcurementReview: true,
}

// AllStates returns every status in lifecycle order
func AllStates() []State {
	return append([]State(nil), allStates...)
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsDeadEnd reports whether the state is one of the *_RETURNED states
func (s State) IsDeadEnd() bool {
	return deadEndStates[s]
}

// IsFinanceStage reports whether assignment is permitted in this state
func (s State) IsFinanceStage() bool {
	return financeStages[s]
}

// IsCombinationEligible reports whether a request in this state may become a lot
func (s State) IsCombinationEligible() bool {
	return combinationEligible[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
