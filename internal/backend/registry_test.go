package backend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/config"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/testutil"
)

func TestRegistryCreate(t *testing.T) {
	r := backend.NewRegistry()
	fake := testutil.NewFakeAdapter()
	r.Register("fake", func(cfg *config.Configuration, log *logger.Logger) (backend.Adapter, error) {
		return fake, nil
	})

	adapter, err := r.Create(&config.Configuration{Backend: "fake"}, logger.NewNop())
	require.NoError(t, err)
	assert.Same(t, backend.Adapter(fake), adapter)
}

func TestRegistryUnknownBackend(t *testing.T) {
	r := backend.NewRegistry()
	r.Register("duckdb", func(cfg *config.Configuration, log *logger.Logger) (backend.Adapter, error) {
		return testutil.NewFakeAdapter(), nil
	})
	r.Register("clickhouse", func(cfg *config.Configuration, log *logger.Logger) (backend.Adapter, error) {
		return testutil.NewFakeAdapter(), nil
	})

	_, err := r.Create(&config.Configuration{Backend: "bigquery"}, logger.NewNop())
	require.Error(t, err)
	assert.True(t, ierr.IsBackendNotAvailable(err))
	assert.Equal(t, []string{"clickhouse", "duckdb"}, r.Available())
}
