// Package policy holds the write authorization rules for records.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/yukikurage/observation-record-api/internal/repository"
)

// ErrNoAccess is returned when the acting user may not mutate the record. A
// record owned by someone else and a record that does not exist produce this
// same error so callers cannot probe for other users' records.
var ErrNoAccess = errors.New("record not found")

// OwnerResolver resolves an authenticated username to its owner id.
type OwnerResolver interface {
	ResolveOwnerID(ctx context.Context, username string) (uint64, error)
}

// RecordOwners looks up the owner of a record.
type RecordOwners interface {
	OwnerID(ctx context.Context, recordID uint64) (uint64, error)
}

// OwnershipGate scopes mutations to the acting user's own records.
type OwnershipGate struct {
	users   OwnerResolver
	records RecordOwners
}

// NewOwnershipGate creates a new OwnershipGate
func NewOwnershipGate(users OwnerResolver, records RecordOwners) *OwnershipGate {
	return &OwnershipGate{users: users, records: records}
}

// Authorize returns the acting user's owner id if they own recordID. The
// repository update repeats the owner condition in its WHERE clause, so a
// record changing hands between this check and the write cannot slip through.
func (g *OwnershipGate) Authorize(ctx context.Context, username string, recordID uint64) (uint64, error) {
	actor, err := g.users.ResolveOwnerID(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNoAccess
		}
		return 0, fmt.Errorf("resolve acting user: %w", err)
	}

	owner, err := g.records.OwnerID(ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNoAccess
		}
		return 0, fmt.Errorf("resolve record owner: %w", err)
	}

	if owner != actor {
		return 0, ErrNoAccess
	}
	return actor, nil
}
