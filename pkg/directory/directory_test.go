package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/licensehub/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() Seed {
	return Seed{
		Users: []User{
			{ID: "alice", Name: "Alice", Company: "acme", Department: "design", Roles: []string{RoleDepartmentManager}},
			{ID: "bob", Name: "Bob", Company: "acme", Department: "it", Roles: []string{RoleITManager}},
			{ID: "carol", Name: "Carol", Company: "acme", Department: "finance", Roles: []string{RoleFinanceManager}},
			{ID: "dave", Name: "Dave", Company: "acme", Department: "design"},
			{ID: "root", Name: "Root", Company: "acme", Department: "it", Roles: []string{RoleSuperAdmin}},
			{ID: "erin", Name: "Erin", Company: "acme", Department: "it", Roles: []string{RoleITManager}},
			{ID: "finance-team", Name: "Finance team", Company: "acme", Kind: models.ApproverKindGroup, Members: []string{"carol", "frank"}},
		},
		Roles: map[string]string{
			Key("acme", RoleCEO): "finance-team",
		},
	}
}

func newSeededDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	d.Apply(testSeed())

	return d
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(newSeededDirectory())
	requester := models.RequesterContext{UserID: "dave", Department: "design", Company: "acme"}

	tests := []struct {
		name     string
		role     string
		wantID   string
		wantKind models.ApproverKind
	}{
		{"department manager of requester", RoleDepartmentManager, "alice", models.ApproverKindUser},
		{"company role holder", RoleITManager, "erin", models.ApproverKindUser},
		{"finance role", RoleFinanceManager, "carol", models.ApproverKindUser},
		{"group role holder", RoleCEO, "finance-team", models.ApproverKindGroup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approver, err := resolver.Resolve(ctx, models.StepDefinition{Number: 1, Role: tt.role}, requester)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, approver.ID)
			assert.Equal(t, tt.wantKind, approver.Kind)
		})
	}
}

func TestResolver_NoApproverAvailable(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(newSeededDirectory())

	_, err := resolver.Resolve(ctx,
		models.StepDefinition{Number: 1, Role: RoleDepartmentManager},
		models.RequesterContext{UserID: "x", Department: "legal", Company: "acme"},
	)
	require.Error(t, err)
	assert.True(t, IsNoApproverAvailable(err))
	assert.Contains(t, err.Error(), "legal")

	_, err = resolver.Resolve(ctx,
		models.StepDefinition{Number: 1, Role: RoleITDirector},
		models.RequesterContext{UserID: "dave", Department: "design", Company: "acme"},
	)
	assert.True(t, IsNoApproverAvailable(err))
	assert.Contains(t, err.Error(), RoleITDirector)
}

func TestResolver_RequesterContext(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(newSeededDirectory())

	requester, err := resolver.RequesterContext(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, models.RequesterContext{UserID: "dave", Name: "Dave", Department: "design", Company: "acme"}, requester)

	_, err = resolver.RequesterContext(ctx, "nobody")
	assert.True(t, IsUserNotFound(err))
}

func TestMemoryDirectory_ReturnsCopies(t *testing.T) {
	d := newSeededDirectory()

	user, err := d.User(context.Background(), "alice")
	require.NoError(t, err)

	user.Roles[0] = RoleSuperAdmin

	again, err := d.User(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{RoleDepartmentManager}, again.Roles)
}

func TestLoadMemoryDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	content := `users:
  - id: u1
    name: Una
    company: acme
    department: sales
    roles: [department_manager]
  - id: u2
    company: acme
    department: sales
managers:
  acme/marketing: u1
roles:
  acme/ceo: u1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d, err := LoadMemoryDirectory(path)
	require.NoError(t, err)

	ctx := context.Background()

	manager, err := d.ManagerOf(ctx, "acme", "sales")
	require.NoError(t, err)
	assert.Equal(t, "u1", manager.ID)

	manager, err = d.ManagerOf(ctx, "acme", "marketing")
	require.NoError(t, err)
	assert.Equal(t, "u1", manager.ID)

	ceo, err := d.RoleHolder(ctx, "acme", RoleCEO)
	require.NoError(t, err)
	assert.Equal(t, "Una", ceo.Name)

	_, err = LoadMemoryDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRoleAuthorizer(t *testing.T) {
	ctx := context.Background()
	authorizer := NewRoleAuthorizer(newSeededDirectory(), nil)

	inst := &models.WorkflowInstance{
		Type:      models.RequestTypeSoftwareDeclaration,
		Requester: models.RequesterContext{UserID: "dave", Department: "design", Company: "acme"},
	}
	itStep := &models.StepInstance{
		Number:   2,
		Role:     RoleITManager,
		Approver: &models.ApproverIdentity{ID: "erin", Kind: models.ApproverKindUser},
	}
	groupStep := &models.StepInstance{
		Number:   3,
		Role:     RoleCEO,
		Approver: &models.ApproverIdentity{ID: "finance-team", Kind: models.ApproverKindGroup, Members: []string{"carol"}},
	}

	tests := []struct {
		name        string
		actorID     string
		requestType models.RequestType
		step        *models.StepInstance
		want        bool
	}{
		{"resolved approver", "erin", models.RequestTypeSoftwareDeclaration, itStep, true},
		{"super admin", "root", models.RequestTypeContractRenewal, itStep, true},
		{"delegated role holder", "bob", models.RequestTypeSoftwareDeclaration, itStep, true},
		{"role holder outside delegated types", "bob", models.RequestTypeContractRenewal, itStep, false},
		{"unrelated user", "dave", models.RequestTypeSoftwareDeclaration, itStep, false},
		{"unknown user", "ghost", models.RequestTypeSoftwareDeclaration, itStep, false},
		{"group member", "carol", models.RequestTypeBudgetApproval, groupStep, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject := inst.Clone()
			subject.Type = tt.requestType

			ok, err := authorizer.CanActOnStep(ctx, tt.actorID, subject, tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	isAdmin, err := authorizer.IsAdministrator(ctx, "root")
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = authorizer.IsAdministrator(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, isAdmin)
}
