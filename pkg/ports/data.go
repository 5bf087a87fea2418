package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// DataAPI retrieves the read-only artifacts a turn executes against.
// Implementations must never hand out programs that are mutated afterwards.
type DataAPI interface {
	// GetVersion returns the version with the given id.
	// Returns domain.ErrVersionNotFound if it does not exist.
	GetVersion(ctx context.Context, versionID string) (*domain.Version, error)

	// GetProgram returns the program with the given id.
	// Returns domain.ErrProgramNotFound if it does not exist.
	GetProgram(ctx context.Context, programID string) (*domain.Program, error)
}

// Watchable defines an interface for data sources that can notify about backend changes.
// This is typically used to drop caches during development.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying programs change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
