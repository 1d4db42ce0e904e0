// Package directory maps step role tags to concrete approvers using an
// organizational directory.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/licensehub/pkg/models"
)

// Role tags used by templates.
const (
	RoleDepartmentManager = "department_manager"
	RoleITManager         = "it_manager"
	RoleITDirector        = "it_director"
	RoleFinanceManager    = "finance_manager"
	RoleCEO               = "ceo"
	RoleSuperAdmin        = "super_admin"
)

var (
	ErrNoApproverAvailable = errors.New("no approver available")
	ErrUserNotFound        = errors.New("user not found")
)

// IsNoApproverAvailable checks if an error indicates a step role could not be resolved.
func IsNoApproverAvailable(err error) bool {
	return errors.Is(err, ErrNoApproverAvailable)
}

// IsUserNotFound checks if an error indicates an unknown user.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// User is a directory entry. A group entry (Kind group) lists its Members.
type User struct {
	ID         string              `json:"id"                   yaml:"id"`
	Name       string              `json:"name,omitempty"       yaml:"name"`
	Department string              `json:"department,omitempty" yaml:"department"`
	Company    string              `json:"company,omitempty"    yaml:"company"`
	Roles      []string            `json:"roles,omitempty"      yaml:"roles"`
	Kind       models.ApproverKind `json:"kind,omitempty"       yaml:"kind"`
	Members    []string            `json:"members,omitempty"    yaml:"members"`
}

// Identity converts the entry into the approver recorded on a step.
func (u *User) Identity() models.ApproverIdentity {
	kind := u.Kind
	if kind == "" {
		kind = models.ApproverKindUser
	}

	return models.ApproverIdentity{
		ID:      u.ID,
		Name:    u.Name,
		Kind:    kind,
		Members: append([]string(nil), u.Members...),
	}
}

// Directory is the organizational lookup the resolver runs against. Lookups
// that find nothing return ErrUserNotFound.
type Directory interface {
	User(ctx context.Context, id string) (*User, error)
	ManagerOf(ctx context.Context, company, department string) (*User, error)
	RoleHolder(ctx context.Context, company, role string) (*User, error)
}

// Resolver maps a step's role tag to an approver. It holds no state of its own.
type Resolver struct {
	directory Directory
}

func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve returns the approver for step: the requester's department manager
// for department_manager, the company-wide role holder for any other role.
func (r *Resolver) Resolve(ctx context.Context, step models.StepDefinition, requester models.RequesterContext) (models.ApproverIdentity, error) {
	var (
		user *User
		err  error
	)

	if step.Role == RoleDepartmentManager {
		user, err = r.directory.ManagerOf(ctx, requester.Company, requester.Department)
	} else {
		user, err = r.directory.RoleHolder(ctx, requester.Company, step.Role)
	}

	if err != nil {
		if IsUserNotFound(err) {
			return models.ApproverIdentity{}, fmt.Errorf("%w: role %s in department %q of company %q",
				ErrNoApproverAvailable, step.Role, requester.Department, requester.Company)
		}

		return models.ApproverIdentity{}, fmt.Errorf("failed to resolve role %s: %w", step.Role, err)
	}

	return user.Identity(), nil
}

// RequesterContext looks up the organizational context of userID.
func (r *Resolver) RequesterContext(ctx context.Context, userID string) (models.RequesterContext, error) {
	user, err := r.directory.User(ctx, userID)
	if err != nil {
		return models.RequesterContext{}, err
	}

	return models.RequesterContext{
		UserID:     user.ID,
		Name:       user.Name,
		Department: user.Department,
		Company:    user.Company,
	}, nil
}
