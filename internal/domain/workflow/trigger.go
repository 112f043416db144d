package workflow

import "strings"

// Trigger represents an action that can cause a state transition
type Trigger string

const (
	TriggerSubmit   Trigger = "SUBMIT"
	TriggerApprove  Trigger = "APPROVE"
	TriggerReject   Trigger = "REJECT"
	TriggerReturn   Trigger = "RETURN"
	TriggerEscalate Trigger = "ESCALATE"

	// TriggerRoute is fired by the engine, never by a caller
	TriggerRoute Trigger = "ROUTE"
)

var callerTriggers = map[Trigger]bool{
	TriggerApprove:  true,
	TriggerReject:   true,
	TriggerReturn:   true,
	TriggerEscalate: true,
}

// ParseAction converts a caller-supplied action name into a trigger.
// Only review actions are accepted; SUBMIT and ROUTE have dedicated entry points.
func ParseAction(action string) (Trigger, bool) {
	t := Trigger(strings.ToUpper(strings.TrimSpace(action)))
	return t, callerTriggers[t]
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
