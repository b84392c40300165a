package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// MemoryDirectory implements Directory using in-memory storage.
// This implementation is for testing and development - data is lost on restart.
type MemoryDirectory struct {
	mu sync.RWMutex

	users   map[uuid.UUID]map[string]*User             // org ID -> email -> user
	members map[uuid.UUID]map[string]map[string]string // org ID -> group email -> member email -> role
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:   make(map[uuid.UUID]map[string]*User),
		members: make(map[uuid.UUID]map[string]map[string]string),
	}
}

// PutUser inserts or replaces a user, used to seed the directory.
func (d *MemoryDirectory) PutUser(orgID uuid.UUID, user User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	user.Email = NormaliseEmail(user.Email)
	d.orgUsers(orgID)[user.Email] = &user
}

// GetUser returns a copy of a user.
func (d *MemoryDirectory) GetUser(orgID uuid.UUID, email string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[orgID][NormaliseEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

// Members returns the member email -> role map of a group.
func (d *MemoryDirectory) Members(orgID uuid.UUID, groupEmail string) map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make(map[string]string)
	for email, role := range d.members[orgID][NormaliseEmail(groupEmail)] {
		result[email] = role
	}
	return result
}

func (d *MemoryDirectory) UpdateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.orgUsers(orgID)[NormaliseEmail(rec.Email)]
	if !ok {
		return ErrUserNotFound
	}
	u.Apply(rec)
	return nil
}

func (d *MemoryDirectory) CreateUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	users := d.orgUsers(orgID)
	user := NewUser(rec)
	if _, exists := users[user.Email]; exists {
		return ErrUserExists
	}
	users[user.Email] = &user
	return nil
}

func (d *MemoryDirectory) SuspendUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.orgUsers(orgID)[NormaliseEmail(rec.Email)]
	if !ok {
		return ErrUserNotFound
	}
	u.Suspended = true
	return nil
}

func (d *MemoryDirectory) DeleteUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	email := NormaliseEmail(rec.Email)
	delete(d.orgUsers(orgID), email)
	for _, members := range d.members[orgID] {
		delete(members, email)
	}
	return nil
}

func (d *MemoryDirectory) AddGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	email := NormaliseEmail(rec.Email)
	if _, ok := d.orgUsers(orgID)[email]; !ok {
		return ErrUserNotFound
	}

	groups, ok := d.members[orgID]
	if !ok {
		groups = make(map[string]map[string]string)
		d.members[orgID] = groups
	}
	group := NormaliseEmail(rec.GroupEmail)
	if groups[group] == nil {
		groups[group] = make(map[string]string)
	}
	if _, exists := groups[group][email]; exists {
		return nil
	}
	groups[group][email] = MemberRole(rec)
	return nil
}

func (d *MemoryDirectory) RemoveGroupMember(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.members[orgID][NormaliseEmail(rec.GroupEmail)], NormaliseEmail(rec.Email))
	return nil
}

func (d *MemoryDirectory) MoveUser(ctx context.Context, orgID uuid.UUID, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.orgUsers(orgID)[NormaliseEmail(rec.Email)]
	if !ok {
		return ErrUserNotFound
	}
	u.OrgUnitPath = rec.OrgUnitPath
	return nil
}

// orgUsers returns the user map of an org, creating it. Must be called with lock held.
func (d *MemoryDirectory) orgUsers(orgID uuid.UUID) map[string]*User {
	users, ok := d.users[orgID]
	if !ok {
		users = make(map[string]*User)
		d.users[orgID] = users
	}
	return users
}
