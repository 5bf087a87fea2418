package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// DataAPI implements ports.DataAPI over versions and programs held in memory.
// Programs are shared read-only; callers must not modify them.
type DataAPI struct {
	mu       sync.RWMutex
	versions map[string]*domain.Version
	programs map[string]*domain.Program
}

// NewDataAPI creates a data API serving the given version and programs.
func NewDataAPI(version *domain.Version, programs ...*domain.Program) *DataAPI {
	api := &DataAPI{
		versions: make(map[string]*domain.Version),
		programs: make(map[string]*domain.Program),
	}
	if version != nil {
		api.versions[version.ID] = version
	}
	for _, p := range programs {
		api.programs[p.ID] = p
	}
	return api
}

// PutVersion adds or replaces a version.
func (a *DataAPI) PutVersion(v *domain.Version) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.versions[v.ID] = v
}

// PutProgram adds or replaces a program.
func (a *DataAPI) PutProgram(p *domain.Program) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.programs[p.ID] = p
}

func (a *DataAPI) GetVersion(ctx context.Context, versionID string) (*domain.Version, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrVersionNotFound, versionID)
	}
	return v, nil
}

func (a *DataAPI) GetProgram(ctx context.Context, programID string) (*domain.Program, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.programs[programID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProgramNotFound, programID)
	}
	return p, nil
}
