package workflow

import (
	"context"

	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

type routingKey struct{}

// WithRouting attaches the threshold decision consulted by the ROUTE guard
func WithRouting(ctx context.Context, decision threshold.Decision) context.Context {
	return context.WithValue(ctx, routingKey{}, decision)
}

// RoutingFrom returns the decision attached by WithRouting
func RoutingFrom(ctx context.Context) (threshold.Decision, bool) {
	d, ok := ctx.Value(routingKey{}).(threshold.Decision)
	return d, ok
}

func requiresExecutive(ctx context.Context) bool {
	d, ok := RoutingFrom(ctx)
	return ok && d.RequiresExecutiveApproval
}

func configureRequestWorkflow() domainwf.StateMachineBuilder {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	builder.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerApprove, domainwf.StateDepartmentReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateDepartmentReview).
		Permit(domainwf.TriggerApprove, domainwf.StateDepartmentApproved).
		Permit(domainwf.TriggerReturn, domainwf.StateDepartmentReturned).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// Nobody acts on DEPARTMENT_APPROVED; the engine routes it immediately.
	// The executive edge is declared first so it wins when its guard passes.
	builder.Configure(domainwf.StateDepartmentApproved).
		PermitIf(domainwf.TriggerRoute, domainwf.StateExecutiveReview, requiresExecutive).
		Permit(domainwf.TriggerRoute, domainwf.StateHODReview).
		OnEntryFire(domainwf.TriggerRoute)

	builder.Configure(domainwf.StateHODReview).
		Permit(domainwf.TriggerApprove, domainwf.StateProcurementReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateExecutiveReview).
		Permit(domainwf.TriggerApprove, domainwf.StateFinanceReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateProcurementReview).
		Permit(domainwf.TriggerApprove, domainwf.StateFinanceReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateFinanceReview).
		Permit(domainwf.TriggerApprove, domainwf.StateFinanceApproved).
		Permit(domainwf.TriggerReturn, domainwf.StateFinanceReturned).
		Permit(domainwf.TriggerEscalate, domainwf.StateBudgetManagerReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateBudgetManagerReview).
		Permit(domainwf.TriggerApprove, domainwf.StateFinanceApproved).
		Permit(domainwf.TriggerReturn, domainwf.StateFinanceReturned).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateFinanceApproved).
		Permit(domainwf.TriggerApprove, domainwf.StateSentToVendor)

	builder.Configure(domainwf.StateSentToVendor).
		Permit(domainwf.TriggerApprove, domainwf.StateClosed)

	// DEPARTMENT_RETURNED, FINANCE_RETURNED, CLOSED and REJECTED have no outgoing edges

	return builder
}

// BuildRequestStateMachine creates a state machine for the procurement request lifecycle
func BuildRequestStateMachine(initialState domainwf.State) domainwf.StateMachine {
	return configureRequestWorkflow().Build(initialState)
}

// RequestTransitions lists the declared transition table
func RequestTransitions() []domainwf.Edge {
	return configureRequestWorkflow().Edges()
}
