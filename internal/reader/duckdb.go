package reader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/types"
)

// DuckDBReader streams records through an embedded DuckDB instance. The
// generic path uses it for Parquet, where the engine is the only reader:
// its httpfs extension reads straight from S3, and the same engine reads
// staged local files.
type DuckDBReader struct{}

func NewDuckDBReader() *DuckDBReader {
	return &DuckDBReader{}
}

func (r *DuckDBReader) Read(ctx context.Context, ref FileRef, creds objstore.Credentials, fn func(Record) error) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to open embedded duckdb").
			Mark(ierr.ErrSystem)
	}
	defer db.Close()

	source, err := sourceExpr(ref)
	if err != nil {
		return err
	}

	if ref.LocalPath == "" {
		if err := ConfigureHTTPFS(ctx, db, creds); err != nil {
			return err
		}
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", source))
	if err != nil {
		return ierr.WithError(err).
			WithHintf("failed to read %s", ref.Key).
			Mark(ierr.ErrBackendWrite)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrBackendWrite)
	}
	columns := make([]string, len(columnNames))
	for i, name := range columnNames {
		columns[i] = NormalizeColumnName(name)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ierr.WithError(err).
				WithHintf("malformed row in %s", ref.Key).
				Mark(ierr.ErrBackendWrite)
		}
		record := make(Record, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return ierr.WithError(err).
			WithHintf("failed while streaming %s", ref.Key).
			Mark(ierr.ErrBackendWrite)
	}
	return nil
}

func sourceExpr(ref FileRef) (string, error) {
	path := ref.LocalPath
	if path == "" {
		path = fmt.Sprintf("s3://%s/%s", ref.Bucket, ref.Key)
	}
	path = strings.ReplaceAll(path, "'", "''")

	switch ref.Format {
	case types.ExportFormatParquet:
		return fmt.Sprintf("read_parquet('%s')", path), nil
	case types.ExportFormatCSV:
		return fmt.Sprintf("read_csv_auto('%s')", path), nil
	default:
		return "", ierr.NewErrorf("unsupported format %s for %s", ref.Format, ref.Key).
			Mark(ierr.ErrValidation)
	}
}

// ConfigureHTTPFS loads the httpfs extension and binds S3 credentials on an
// open DuckDB handle.
func ConfigureHTTPFS(ctx context.Context, db *sql.DB, creds objstore.Credentials) error {
	stmts := []string{
		"INSTALL httpfs",
		"LOAD httpfs",
	}
	if creds.AccessKeyID != "" {
		stmts = append(stmts,
			fmt.Sprintf("SET s3_access_key_id='%s'", strings.ReplaceAll(creds.AccessKeyID, "'", "''")),
			fmt.Sprintf("SET s3_secret_access_key='%s'", strings.ReplaceAll(creds.SecretAccessKey, "'", "''")),
		)
	}
	region := creds.Region
	if region == "" {
		region = "us-east-1"
	}
	stmts = append(stmts, fmt.Sprintf("SET s3_region='%s'", strings.ReplaceAll(region, "'", "''")))

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return ierr.WithError(err).
				WithHint("failed to configure duckdb httpfs").
				Mark(ierr.ErrSystem)
		}
	}
	return nil
}
