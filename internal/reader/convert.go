package reader

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/objstore"
)

// Converter stages Azure CSV exports locally and rewrites them to Parquet.
// Azure renders dates as MM/DD/YYYY, which analytical engines will not parse
// from CSV text; the convert step forces the date format once so the load
// path sees typed Parquet. Scratch directories are per manifest and must be
// released with Cleanup on every path.
type Converter struct {
	client     objstore.Client
	scratchDir string
}

// NewConverter creates a per-manifest scratch directory under root.
func NewConverter(client objstore.Client, root string) (*Converter, error) {
	dir, err := os.MkdirTemp(root, "costplane-convert-*")
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to create scratch directory under %s", root).
			Mark(ierr.ErrSystem)
	}
	return &Converter{client: client, scratchDir: dir}, nil
}

// Cleanup removes the scratch directory and everything staged into it.
func (c *Converter) Cleanup() error {
	return os.RemoveAll(c.scratchDir)
}

// Convert downloads one blob and produces a Parquet file in the scratch
// directory, returning its local path.
func (c *Converter) Convert(ctx context.Context, key string) (string, error) {
	staged, err := c.Download(ctx, key)
	if err != nil {
		return "", err
	}

	out := strings.TrimSuffix(staged, filepath.Ext(staged)) + ".parquet"

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("failed to open embedded duckdb").
			Mark(ierr.ErrSystem)
	}
	defer db.Close()

	query := fmt.Sprintf(
		"COPY (SELECT * FROM read_csv_auto('%s', dateformat='%%m/%%d/%%Y')) TO '%s' (FORMAT PARQUET)",
		strings.ReplaceAll(staged, "'", "''"),
		strings.ReplaceAll(out, "'", "''"),
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return "", ierr.WithError(err).
			WithHintf("failed to convert %s to parquet", key).
			Mark(ierr.ErrBackendWrite)
	}

	return out, nil
}

// Download stages one blob into the scratch directory without conversion,
// returning its local path. Used for blobs that are already Parquet.
func (c *Converter) Download(ctx context.Context, key string) (string, error) {
	body, err := c.client.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	staged := filepath.Join(c.scratchDir, filepath.Base(key))
	f, err := os.Create(staged)
	if err != nil {
		return "", ierr.WithError(err).
			WithHintf("failed to create staged file %s", staged).
			Mark(ierr.ErrSystem)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", ierr.WithError(err).
			WithHintf("failed to download %s", key).
			Mark(ierr.ErrTransport)
	}
	return staged, nil
}
