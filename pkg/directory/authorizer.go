package directory

import (
	"context"
	"slices"

	"github.com/dukex/licensehub/pkg/models"
)

// DefaultDelegations lists, per role, the request types whose steps a holder
// of that role may decide in place of the resolved approver, provided the
// step requires that role.
var DefaultDelegations = map[string][]models.RequestType{
	RoleITManager: {
		models.RequestTypeLicenseRequest,
		models.RequestTypeSoftwareDeclaration,
		models.RequestTypeBudgetApproval,
	},
	RoleDepartmentManager: {
		models.RequestTypeSoftwareDeclaration,
		models.RequestTypeUserInvitation,
	},
}

// RoleAuthorizer allows the resolved approver, any super_admin, and holders
// of a delegated role.
type RoleAuthorizer struct {
	directory   Directory
	delegations map[string][]models.RequestType
}

func NewRoleAuthorizer(directory Directory, delegations map[string][]models.RequestType) *RoleAuthorizer {
	if delegations == nil {
		delegations = DefaultDelegations
	}

	return &RoleAuthorizer{directory: directory, delegations: delegations}
}

func (a *RoleAuthorizer) CanActOnStep(ctx context.Context, actorID string, inst *models.WorkflowInstance, step *models.StepInstance) (bool, error) {
	if step.Approver != nil && step.Approver.Includes(actorID) {
		return true, nil
	}

	actor, err := a.directory.User(ctx, actorID)
	if err != nil {
		if IsUserNotFound(err) {
			return false, nil
		}

		return false, err
	}

	if slices.Contains(actor.Roles, RoleSuperAdmin) {
		return true, nil
	}

	if actor.Company != inst.Requester.Company || !slices.Contains(actor.Roles, step.Role) {
		return false, nil
	}

	if step.Role == RoleDepartmentManager && actor.Department != inst.Requester.Department {
		return false, nil
	}

	return slices.Contains(a.delegations[step.Role], inst.Type), nil
}

func (a *RoleAuthorizer) IsAdministrator(ctx context.Context, actorID string) (bool, error) {
	actor, err := a.directory.User(ctx, actorID)
	if err != nil {
		if IsUserNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return slices.Contains(actor.Roles, RoleSuperAdmin), nil
}
