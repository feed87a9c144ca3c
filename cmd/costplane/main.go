package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/backend/clickhouse"
	"github.com/costplane/costplane/internal/backend/duckdb"
	"github.com/costplane/costplane/internal/backend/postgres"
	ierr "github.com/costplane/costplane/internal/errors"
)

func main() {
	// Populate env before viper reads it; a missing .env is fine.
	_ = godotenv.Load()

	clickhouse.Register(backend.Default)
	duckdb.Register(backend.Default)
	postgres.Register(backend.Default)

	if err := newRootCmd().Execute(); err != nil {
		if ierr.IsConfigInvalid(err) || ierr.IsValidation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
