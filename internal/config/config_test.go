package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/types"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Backend)
	assert.Equal(t, types.StrategySeparate, cfg.Strategy)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, types.FormatV1, cfg.AWS.FormatVersion)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
}

func TestValidateRejectsBadEnums(t *testing.T) {
	v := NewViper()
	v.Set("strategy", "sharded")
	_, err := FromViper(v)
	require.Error(t, err)
	assert.True(t, ierr.IsConfigInvalid(err) || ierr.IsValidation(err))

	v = NewViper()
	v.Set("aws.format_version", "v3")
	_, err = FromViper(v)
	require.Error(t, err)
}

func TestValidateAWS(t *testing.T) {
	cfg := &Configuration{
		Backend: "duckdb",
		AWS:     AWSConfig{Bucket: "b", Prefix: "p", ExportName: "e"},
	}
	assert.NoError(t, cfg.ValidateAWS())

	cfg.AWS.Prefix = ""
	cfg.AWS.ExportName = ""
	err := cfg.ValidateAWS()
	require.Error(t, err)
	assert.True(t, ierr.IsConfigInvalid(err))
	assert.Contains(t, err.Error(), "aws.prefix")
	assert.Contains(t, err.Error(), "aws.export_name")
}

func TestValidateAzure(t *testing.T) {
	cfg := &Configuration{
		Backend: "duckdb",
		Azure: AzureConfig{
			StorageContainer: "c",
			StorageDirectory: "d",
			ExportName:       "e",
		},
	}
	assert.NoError(t, cfg.ValidateAzure())

	cfg.Azure.StorageContainer = ""
	err := cfg.ValidateAzure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure.storage_container")
}

func TestClickHouseClientOptions(t *testing.T) {
	c := ClickHouseConfig{
		Address:  "localhost:9000",
		Username: "default",
		Password: "secret",
		Database: "billing",
	}
	opts := c.GetClientOptions()
	assert.Equal(t, []string{"localhost:9000"}, opts.Addr)
	assert.Equal(t, "billing", opts.Auth.Database)
	assert.Nil(t, opts.TLS)

	c.TLS = true
	assert.NotNil(t, c.GetClientOptions().TLS)
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "pw", DBName: "costs", SSLMode: "disable",
	}
	assert.Equal(t, "user=u password=pw dbname=costs host=db port=5432 sslmode=disable", c.GetDSN())
}
