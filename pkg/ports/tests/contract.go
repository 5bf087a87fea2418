package tests

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DataAPIContractTest is a reusable test suite that verifies if an adapter complies with ports.DataAPI.
// The adapter must contain the given version and every program it lists.
func DataAPIContractTest(t *testing.T, api ports.DataAPI, version *domain.Version, programIDs []string) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetVersion_Success", func(t *testing.T) {
		got, err := api.GetVersion(ctx, version.ID)
		require.NoError(t, err)
		assert.Equal(t, version.RootProgramID, got.RootProgramID)
		assert.Equal(t, version.ProjectID, got.ProjectID)
	})

	t.Run("GetVersion_NotFound", func(t *testing.T) {
		_, err := api.GetVersion(ctx, "non-existent-version")
		assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	})

	t.Run("GetProgram_Success", func(t *testing.T) {
		for _, id := range programIDs {
			p, err := api.GetProgram(ctx, id)
			require.NoError(t, err, "program %s", id)
			assert.Equal(t, id, p.ID)
			if p.StartID != "" {
				_, ok := p.GetNode(p.StartID)
				assert.True(t, ok, "start node of %s must exist", id)
			}
		}
	})

	t.Run("GetProgram_NotFound", func(t *testing.T) {
		_, err := api.GetProgram(ctx, "non-existent-program")
		assert.ErrorIs(t, err, domain.ErrProgramNotFound)
	})
}
