package reader

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/types"
)

// CSVReader streams rows from plain or gzipped CSV files, either from a
// staged local copy or straight from the object store. A nil client is
// allowed; remote reads then open an S3 client from the call's credentials.
type CSVReader struct {
	client objstore.Client
}

func NewCSVReader(client objstore.Client) *CSVReader {
	return &CSVReader{client: client}
}

func (r *CSVReader) Read(ctx context.Context, ref FileRef, creds objstore.Credentials, fn func(Record) error) error {
	if ref.Format != types.ExportFormatCSV {
		return ierr.NewErrorf("csv reader cannot read %s files", ref.Format).
			Mark(ierr.ErrValidation)
	}

	var body io.ReadCloser
	var err error
	switch {
	case ref.LocalPath != "":
		body, err = os.Open(ref.LocalPath)
		if err != nil {
			return ierr.WithError(err).
				WithHintf("failed to open staged file %s", ref.LocalPath).
				Mark(ierr.ErrSystem)
		}
	case r.client != nil:
		body, err = r.client.Get(ctx, ref.Key)
		if err != nil {
			return err
		}
	default:
		client, cerr := objstore.NewS3Client(ctx, ref.Bucket, creds)
		if cerr != nil {
			return cerr
		}
		body, err = client.Get(ctx, ref.Key)
		if err != nil {
			return err
		}
	}
	defer body.Close()

	var stream io.Reader = body
	if strings.HasSuffix(ref.Key, ".gz") || strings.HasSuffix(ref.LocalPath, ".gz") {
		gz, gerr := gzip.NewReader(body)
		if gerr != nil {
			return ierr.WithError(gerr).
				WithHintf("failed to open gzip stream for %s", ref.Key).
				Mark(ierr.ErrBackendWrite)
		}
		defer gz.Close()
		stream = gz
	}

	return streamCSV(ctx, stream, ref.Key, fn)
}

func streamCSV(ctx context.Context, stream io.Reader, key string, fn func(Record) error) error {
	cr := csv.NewReader(stream)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return ierr.WithError(err).
			WithHintf("failed to read csv header of %s", key).
			Mark(ierr.ErrBackendWrite)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = NormalizeColumnName(name)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A malformed row fails the whole file.
			return ierr.WithError(err).
				WithHintf("malformed csv row in %s", key).
				Mark(ierr.ErrBackendWrite)
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			if i >= len(row) || row[i] == "" {
				record[col] = nil
				continue
			}
			record[col] = row[i]
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}
