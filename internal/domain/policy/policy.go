// Package policy resolves role assignments into typed capabilities once,
// so the core consumes opaque booleans instead of matching role strings.
package policy

import (
	"strings"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Role is a named role assignment
type Role string

const (
	RoleRequester           Role = "REQUESTER"
	RoleDepartmentManager   Role = "DEPARTMENT_MANAGER"
	RoleHeadOfDivision      Role = "HEAD_OF_DIVISION"
	RoleExecutive           Role = "EXECUTIVE"
	RoleProcurementOfficer  Role = "PROCUREMENT_OFFICER"
	RoleProcurementManager  Role = "PROCUREMENT_MANAGER"
	RoleFinanceOfficer      Role = "FINANCE_OFFICER"
	RoleFinanceManager      Role = "FINANCE_MANAGER"
	RoleBudgetManager       Role = "BUDGET_MANAGER"
	RoleAdmin               Role = "ADMIN"
	RoleInnovationCommittee Role = "INNOVATION_COMMITTEE"
)

var knownRoles = map[Role]bool{
	RoleRequester:           true,
	RoleDepartmentManager:   true,
	RoleHeadOfDivision:      true,
	RoleExecutive:           true,
	RoleProcurementOfficer:  true,
	RoleProcurementManager:  true,
	RoleFinanceOfficer:      true,
	RoleFinanceManager:      true,
	RoleBudgetManager:       true,
	RoleAdmin:               true,
	RoleInnovationCommittee: true,
}

// reviewers maps each actionable status to the roles allowed to act on it
var reviewers = map[workflow.State][]Role{
	workflow.StateSubmitted:           {RoleDepartmentManager},
	workflow.StateDepartmentReview:    {RoleDepartmentManager},
	workflow.StateHODReview:           {RoleHeadOfDivision},
	workflow.StateExecutiveReview:     {RoleExecutive},
	workflow.StateProcurementReview:   {RoleProcurementOfficer, RoleProcurementManager},
	workflow.StateFinanceReview:       {RoleFinanceOfficer, RoleFinanceManager},
	workflow.StateBudgetManagerReview: {RoleBudgetManager},
	workflow.StateFinanceApproved:     {RoleProcurementOfficer, RoleProcurementManager},
	workflow.StateSentToVendor:        {RoleProcurementOfficer, RoleProcurementManager},
}

// Capabilities is the resolved permission set of one actor
type Capabilities struct {
	CanCombineAcrossDepartments bool
	CanActAsFinanceManager      bool
	CanOverrideLockedEdits      bool
	CanReviewIdeas              bool
	ReceivesThresholdAlerts     bool

	reviewStates map[workflow.State]bool
}

// CanReview reports whether the actor may approve/reject a request in the given status
func (c Capabilities) CanReview(state workflow.State) bool {
	return c.reviewStates[state]
}

// ParseRoles normalises free-form role names; unknown names are dropped
func ParseRoles(names []string) []Role {
	roles := make([]Role, 0, len(names))
	seen := make(map[Role]bool, len(names))
	for _, name := range names {
		r := Role(strings.ToUpper(strings.TrimSpace(name)))
		if !knownRoles[r] || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	return roles
}

// Resolve computes capabilities from role names
func Resolve(names []string) Capabilities {
	has := make(map[Role]bool)
	for _, r := range ParseRoles(names) {
		has[r] = true
	}
	admin := has[RoleAdmin]

	caps := Capabilities{
		CanCombineAcrossDepartments: admin || has[RoleProcurementOfficer] || has[RoleProcurementManager],
		CanActAsFinanceManager:      admin || has[RoleFinanceManager],
		CanOverrideLockedEdits:      admin,
		CanReviewIdeas:              admin || has[RoleInnovationCommittee],
		ReceivesThresholdAlerts:     has[RoleProcurementOfficer] || has[RoleProcurementManager],
		reviewStates:                make(map[workflow.State]bool),
	}

	for state, roles := range reviewers {
		if admin {
			caps.reviewStates[state] = true
			continue
		}
		for _, r := range roles {
			if has[r] {
				caps.reviewStates[state] = true
				break
			}
		}
	}

	return caps
}

// Actor is the resolved caller identity handed to the core
type Actor struct {
	UserID       int64
	Name         string
	DepartmentID int64
	Roles        []Role
	Capabilities Capabilities
}

// NewActor builds an actor and resolves its capabilities
func NewActor(userID int64, name string, departmentID int64, roleNames []string) Actor {
	return Actor{
		UserID:       userID,
		Name:         name,
		DepartmentID: departmentID,
		Roles:        ParseRoles(roleNames),
		Capabilities: Resolve(roleNames),
	}
}

// System is the actor recorded for engine-driven transitions
var System = Actor{Name: "system"}

// Label is the display form used in history and audit entries
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.UserID == 0 {
		return "system"
	}
	return "user"
}
