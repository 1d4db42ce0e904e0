package directory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryDirectory is a directory held in process memory, seeded in code or
// from a YAML file.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]*User
	// managers maps company/department to the manager user ID.
	managers map[string]string
	// roles maps company/role to the holder user ID.
	roles map[string]string
}

// Seed is the YAML layout accepted by LoadMemoryDirectory.
type Seed struct {
	Users []User `yaml:"users"`
	// Managers maps "company/department" to a user ID.
	Managers map[string]string `yaml:"managers"`
	// Roles maps "company/role" to a user ID.
	Roles map[string]string `yaml:"roles"`
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[string]*User),
		managers: make(map[string]string),
		roles:    make(map[string]string),
	}
}

// ReadSeed parses a YAML seed file.
func ReadSeed(path string) (Seed, error) {
	var seed Seed

	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("failed to read directory file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("failed to parse directory file %s: %w", path, err)
	}

	return seed, nil
}

// LoadMemoryDirectory builds a directory from a YAML seed file.
func LoadMemoryDirectory(path string) (*MemoryDirectory, error) {
	seed, err := ReadSeed(path)
	if err != nil {
		return nil, err
	}

	d := NewMemoryDirectory()
	d.Apply(seed)

	return d, nil
}

// Apply loads every user and assignment of seed.
func (d *MemoryDirectory) Apply(seed Seed) {
	for _, user := range seed.Users {
		d.AddUser(user)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, userID := range seed.Managers {
		d.managers[key] = userID
	}

	for key, userID := range seed.Roles {
		d.roles[key] = userID
	}
}

// AddUser stores user and registers it as holder of each of its roles in its
// company. A department_manager role makes it the manager of its department.
func (d *MemoryDirectory) AddUser(user User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := user
	stored.Roles = slices.Clone(user.Roles)
	stored.Members = slices.Clone(user.Members)
	d.users[user.ID] = &stored

	for _, role := range user.Roles {
		if role == RoleDepartmentManager {
			d.managers[Key(user.Company, user.Department)] = user.ID

			continue
		}

		d.roles[Key(user.Company, role)] = user.ID
	}
}

// SetManager makes userID the manager of department.
func (d *MemoryDirectory) SetManager(company, department, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.managers[Key(company, department)] = userID
}

// SetRoleHolder makes userID the company-wide holder of role.
func (d *MemoryDirectory) SetRoleHolder(company, role, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.roles[Key(company, role)] = userID
}

func (d *MemoryDirectory) User(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.user(id)
}

func (d *MemoryDirectory) ManagerOf(_ context.Context, company, department string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	userID, ok := d.managers[Key(company, department)]
	if !ok {
		return nil, fmt.Errorf("%w: manager of %s", ErrUserNotFound, Key(company, department))
	}

	return d.user(userID)
}

func (d *MemoryDirectory) RoleHolder(_ context.Context, company, role string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	userID, ok := d.roles[Key(company, role)]
	if !ok {
		return nil, fmt.Errorf("%w: holder of %s", ErrUserNotFound, Key(company, role))
	}

	return d.user(userID)
}

func (d *MemoryDirectory) user(id string) (*User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}

	c := *user
	c.Roles = slices.Clone(user.Roles)
	c.Members = slices.Clone(user.Members)

	return &c, nil
}

// Key joins a company and a department or role into a lookup key.
func Key(company, name string) string {
	return company + "/" + name
}
