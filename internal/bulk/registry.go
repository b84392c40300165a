package bulk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/bulkadmin/internal/directory"
	"github.com/wolfeidau/bulkadmin/internal/models"
)

// MutationFunc applies one record to one write target.
type MutationFunc func(ctx context.Context, orgID uuid.UUID, rec models.Record) error

// Mutation pairs the local and external mutation of an operation type.
// External is nil when no provider is configured.
type Mutation struct {
	Local    MutationFunc
	External MutationFunc
}

// Registry maps each operation type to its mutations.
type Registry struct {
	mutations map[models.OperationType]Mutation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{mutations: make(map[models.OperationType]Mutation)}
}

// Register sets the mutations of an operation type, replacing any previous entry.
func (r *Registry) Register(opType models.OperationType, m Mutation) {
	r.mutations[opType] = m
}

// Lookup returns the mutations of an operation type.
func (r *Registry) Lookup(opType models.OperationType) (Mutation, error) {
	m, ok := r.mutations[opType]
	if !ok || m.Local == nil {
		return Mutation{}, fmt.Errorf("%w: %q", ErrUnknownOperationType, opType)
	}
	return m, nil
}

// SyncAvailable reports whether every registered type has an external mutation.
func (r *Registry) SyncAvailable() bool {
	if len(r.mutations) == 0 {
		return false
	}
	for _, m := range r.mutations {
		if m.External == nil {
			return false
		}
	}
	return true
}

// Check verifies every known operation type has a local mutation, and an external
// one when requireExternal is set.
func (r *Registry) Check(requireExternal bool) error {
	for _, opType := range models.OperationTypes {
		m, ok := r.mutations[opType]
		if !ok || m.Local == nil {
			return fmt.Errorf("operation type %s has no local mutation", opType)
		}
		if requireExternal && m.External == nil {
			return fmt.Errorf("operation type %s has no external mutation", opType)
		}
	}
	return nil
}

// NewDirectoryRegistry builds a registry whose local mutations target local and whose
// external mutations target external. A nil external disables sync.
func NewDirectoryRegistry(local, external directory.Directory) (*Registry, error) {
	r := NewRegistry()

	localFns := directoryMutations(local)
	var externalFns map[models.OperationType]MutationFunc
	if external != nil {
		externalFns = directoryMutations(external)
	}

	for _, opType := range models.OperationTypes {
		r.Register(opType, Mutation{Local: localFns[opType], External: externalFns[opType]})
	}

	if err := r.Check(external != nil); err != nil {
		return nil, err
	}
	return r, nil
}

func directoryMutations(d directory.Directory) map[models.OperationType]MutationFunc {
	return map[models.OperationType]MutationFunc{
		models.OperationUserUpdate:            d.UpdateUser,
		models.OperationUserCreate:            d.CreateUser,
		models.OperationUserSuspend:           d.SuspendUser,
		models.OperationUserDelete:            d.DeleteUser,
		models.OperationGroupMembershipAdd:    d.AddGroupMember,
		models.OperationGroupMembershipRemove: d.RemoveGroupMember,
		models.OperationMoveOU:                d.MoveUser,
	}
}
