package orchestrator

import (
	"context"
	"io"
	"os"
	"strings"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/types"
)

// source is one vendor's export feed: it discovers manifest publications,
// turns them into the vendor-neutral form, and stages the data files a load
// will read. Resolve is cheap so the skip decision can run before Stage does
// any real work.
type source interface {
	ExportName() string
	List(ctx context.Context, start, end types.BillingPeriod) ([]manifest.Ref, error)
	Resolve(ctx context.Context, ref manifest.Ref) (*manifest.Manifest, error)
	// Stage returns the file refs a load should read plus a cleanup func
	// releasing any scratch storage. Cleanup is never nil.
	Stage(ctx context.Context, m *manifest.Manifest) ([]reader.FileRef, func(), error)
}

func noopCleanup() {}

type awsSource struct {
	client       objstore.Client
	locator      *manifest.AWSLocator
	exportName   string
	exportFormat types.ExportFormat
}

func (s *awsSource) ExportName() string {
	return s.exportName
}

func (s *awsSource) List(ctx context.Context, start, end types.BillingPeriod) ([]manifest.Ref, error) {
	return s.locator.List(ctx, start, end)
}

func (s *awsSource) Resolve(ctx context.Context, ref manifest.Ref) (*manifest.Manifest, error) {
	body, err := s.client.Get(ctx, ref.Key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to read manifest %s", ref.Key).
			Mark(ierr.ErrTransport)
	}
	return manifest.NormalizeAWS(raw, ref, s.exportName)
}

// Stage maps data file keys onto object-store refs; CUR files are read in
// place, nothing is downloaded.
func (s *awsSource) Stage(ctx context.Context, m *manifest.Manifest) ([]reader.FileRef, func(), error) {
	files := make([]reader.FileRef, 0, len(m.DataFiles))
	for _, key := range m.DataFiles {
		format, err := reader.DetectFormat(key, s.exportFormat)
		if err != nil {
			return nil, noopCleanup, err
		}
		files = append(files, reader.FileRef{
			Bucket: s.client.Bucket(),
			Key:    key,
			Format: format,
		})
	}
	return files, noopCleanup, nil
}

type azureSource struct {
	client      objstore.Client
	locator     *manifest.AzureLocator
	exportName  string
	partitioned bool
	scratchRoot string
}

func (s *azureSource) ExportName() string {
	return s.exportName
}

func (s *azureSource) List(ctx context.Context, start, end types.BillingPeriod) ([]manifest.Ref, error) {
	return s.locator.List(ctx, start, end)
}

func (s *azureSource) Resolve(ctx context.Context, ref manifest.Ref) (*manifest.Manifest, error) {
	dataFiles, err := s.locator.DataFiles(ctx, ref)
	if err != nil {
		return nil, err
	}
	return manifest.SynthesizeAzure(ref, dataFiles, s.exportName, s.partitioned)
}

// Stage downloads every data file to scratch storage, rewriting CSV to
// Parquet on the way so the load path sees typed data. Blob storage has no
// equivalent of the engines' s3 readers, so Azure months always stage.
func (s *azureSource) Stage(ctx context.Context, m *manifest.Manifest) ([]reader.FileRef, func(), error) {
	if err := os.MkdirAll(s.scratchRoot, 0o755); err != nil {
		return nil, noopCleanup, ierr.WithError(err).
			WithHintf("failed to create scratch root %s", s.scratchRoot).
			Mark(ierr.ErrSystem)
	}

	converter, err := reader.NewConverter(s.client, s.scratchRoot)
	if err != nil {
		return nil, noopCleanup, err
	}
	cleanup := func() { _ = converter.Cleanup() }

	files := make([]reader.FileRef, 0, len(m.DataFiles))
	for _, key := range m.DataFiles {
		var local string
		if strings.HasSuffix(key, ".parquet") {
			local, err = converter.Download(ctx, key)
		} else {
			local, err = converter.Convert(ctx, key)
		}
		if err != nil {
			cleanup()
			return nil, noopCleanup, err
		}
		files = append(files, reader.FileRef{
			Bucket:    s.client.Bucket(),
			Key:       key,
			Format:    types.ExportFormatParquet,
			LocalPath: local,
		})
	}
	return files, cleanup, nil
}
