package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated     Type = "request.created"
	TypeRequestUpdated     Type = "request.updated"
	TypeRequestSubmitted   Type = "request.submitted"
	TypeStatusChanged      Type = "request.status_changed"
	TypeRequestAssigned    Type = "request.assigned"
	TypeCombinationCreated Type = "combination.created"
	TypeThresholdExceeded  Type = "threshold.exceeded"
	TypeIdeaCreated        Type = "idea.created"
	TypeIdeaReviewed       Type = "idea.reviewed"
	TypeIdeaVoted          Type = "idea.voted"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestCreated,
		TypeRequestUpdated,
		TypeRequestSubmitted,
		TypeStatusChanged,
		TypeRequestAssigned,
		TypeCombinationCreated,
		TypeThresholdExceeded,
		TypeIdeaCreated,
		TypeIdeaReviewed,
		TypeIdeaVoted:
		return true
	default:
		return false
	}
}
