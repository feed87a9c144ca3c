package orchestrator

import (
	"context"

	"github.com/samber/lo"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/config"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// singleTableName is the shared data table used by the single-table strategy.
const singleTableName = "billing_data"

// Params select what one import run covers.
type Params struct {
	Vendor types.Vendor
	// Start and End bound the billing periods considered; a zero bound is
	// open.
	Start types.BillingPeriod
	End   types.BillingPeriod
	// Reset reloads every discovered version even when the state store says
	// it is already loaded.
	Reset bool
	// ContinueOnError keeps the run going past a failed month instead of
	// aborting on the first failure. Cancellation always aborts.
	ContinueOnError bool
}

// Action is what the run did with one discovered manifest version.
type Action string

const (
	ActionLoaded  Action = "loaded"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// Result is the outcome for one manifest version.
type Result struct {
	BillingPeriod types.BillingPeriod
	VersionID     string
	Table         string
	Action        Action
	RowCount      int64
	Err           error
}

// Summary aggregates a run's per-version results.
type Summary struct {
	Vendor     types.Vendor
	ExportName string
	Results    []Result
}

func (s *Summary) count(a Action) int {
	return lo.CountBy(s.Results, func(r Result) bool { return r.Action == a })
}

func (s *Summary) Loaded() int  { return s.count(ActionLoaded) }
func (s *Summary) Skipped() int { return s.count(ActionSkipped) }
func (s *Summary) Failed() int  { return s.count(ActionFailed) }

// Orchestrator drives one vendor's export pipeline end to end: discover
// manifests, decide skip-or-load per version, ingest data files, and flip the
// current-version pointer. Runs are idempotent; a second run over the same
// data writes nothing.
type Orchestrator struct {
	cfg     *config.Configuration
	adapter backend.Adapter
	logger  *logger.Logger

	// sources builds the vendor feed; tests swap it for a stub.
	sources func(ctx context.Context, vendor types.Vendor) (source, objstore.Credentials, error)
}

func New(cfg *config.Configuration, adapter backend.Adapter, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{cfg: cfg, adapter: adapter, logger: log}
	o.sources = o.buildSource
	return o
}

// Run executes one import. The returned summary covers every manifest that
// was considered, including the failed one when the error return is non-nil.
func (o *Orchestrator) Run(ctx context.Context, params Params) (*Summary, error) {
	if err := params.Vendor.Validate(); err != nil {
		return nil, err
	}

	src, creds, err := o.sources(ctx, params.Vendor)
	if err != nil {
		return nil, err
	}

	store, err := o.adapter.StateStore(ctx)
	if err != nil {
		return nil, err
	}

	dataset := params.Vendor.Dataset()
	if err := o.adapter.EnsureDataset(ctx, dataset); err != nil {
		return nil, err
	}

	refs, err := src.List(ctx, params.Start, params.End)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Vendor: params.Vendor, ExportName: src.ExportName()}
	o.logger.Infow("starting import run",
		"vendor", params.Vendor,
		"export", src.ExportName(),
		"backend", o.adapter.ConnectionDescriptor(),
		"manifests", len(refs),
	)

	for _, ref := range refs {
		res := o.processRef(ctx, src, store, creds, dataset, params, ref)
		summary.Results = append(summary.Results, res)
		if res.Err != nil && (ctx.Err() != nil || !params.ContinueOnError) {
			return summary, res.Err
		}
	}

	if o.strategy() == types.StrategySeparate && summary.Loaded() > 0 {
		if err := RefreshUnifiedView(ctx, o.adapter, dataset, src.ExportName()); err != nil {
			return summary, err
		}
	}

	o.logger.Infow("import run finished",
		"loaded", summary.Loaded(),
		"skipped", summary.Skipped(),
		"failed", summary.Failed(),
	)
	return summary, nil
}

// ListManifests discovers manifests without loading anything, for the
// list-manifests command. The adapter is not touched.
func (o *Orchestrator) ListManifests(ctx context.Context, params Params) ([]manifest.Ref, error) {
	if err := params.Vendor.Validate(); err != nil {
		return nil, err
	}
	src, _, err := o.sources(ctx, params.Vendor)
	if err != nil {
		return nil, err
	}
	return src.List(ctx, params.Start, params.End)
}

func (o *Orchestrator) strategy() types.TableStrategy {
	if o.cfg.Strategy == "" {
		return types.StrategySeparate
	}
	return o.cfg.Strategy
}

func (o *Orchestrator) buildSource(ctx context.Context, vendor types.Vendor) (source, objstore.Credentials, error) {
	switch vendor {
	case types.VendorAWS:
		if err := o.cfg.ValidateAWS(); err != nil {
			return nil, objstore.Credentials{}, err
		}
		creds := objstore.Credentials{
			AccessKeyID:     o.cfg.AWS.AccessKeyID,
			SecretAccessKey: o.cfg.AWS.SecretAccessKey,
			Region:          o.cfg.AWS.Region,
		}
		client, err := objstore.NewS3Client(ctx, o.cfg.AWS.Bucket, creds)
		if err != nil {
			return nil, objstore.Credentials{}, err
		}
		return &awsSource{
			client:       client,
			locator:      manifest.NewAWSLocator(client, o.cfg.AWS.Prefix, o.cfg.AWS.ExportName, o.cfg.AWS.FormatVersion, o.logger),
			exportName:   o.cfg.AWS.ExportName,
			exportFormat: o.cfg.AWS.ExportFormat,
		}, creds, nil

	case types.VendorAzure:
		if err := o.cfg.ValidateAzure(); err != nil {
			return nil, objstore.Credentials{}, err
		}
		client, err := objstore.NewAzureClient(o.cfg.Azure.StorageAccount, o.cfg.Azure.StorageContainer, o.cfg.Azure.ConnectionString)
		if err != nil {
			return nil, objstore.Credentials{}, err
		}
		return &azureSource{
			client:      client,
			locator:     manifest.NewAzureLocator(client, o.cfg.Azure.StorageDirectory, o.cfg.Azure.ExportName, o.cfg.Azure.Partitioned, o.logger),
			exportName:  o.cfg.Azure.ExportName,
			partitioned: o.cfg.Azure.Partitioned,
			scratchRoot: o.cfg.DataDir,
		}, objstore.Credentials{}, nil
	}

	return nil, objstore.Credentials{}, ierr.NewErrorf("invalid vendor: %s", vendor).
		Mark(ierr.ErrValidation)
}

// processRef takes one discovered manifest through resolve, skip-or-load,
// ingest, and the state transitions. Failures are recorded in the state store
// before being returned.
func (o *Orchestrator) processRef(ctx context.Context, src source, store state.Store, creds objstore.Credentials, dataset string, params Params, ref manifest.Ref) Result {
	res := Result{BillingPeriod: ref.BillingPeriod}

	m, err := src.Resolve(ctx, ref)
	if err != nil {
		res.Action = ActionFailed
		res.Err = err
		return res
	}
	res.VersionID = m.VersionID

	key := state.Key{
		Vendor:        m.Vendor,
		ExportName:    m.ExportName,
		BillingPeriod: m.BillingPeriod,
		VersionID:     m.VersionID,
	}

	if !params.Reset {
		loaded, lerr := store.IsVersionLoaded(ctx, key)
		if lerr != nil {
			res.Action = ActionFailed
			res.Err = lerr
			return res
		}
		if loaded {
			o.logger.Infow("version already loaded, skipping",
				"billing_period", m.BillingPeriod, "version_id", m.VersionID)
			res.Action = ActionSkipped
			return res
		}
	}

	files, cleanup, err := src.Stage(ctx, m)
	if err != nil {
		res.Action = ActionFailed
		res.Err = err
		return res
	}
	defer cleanup()

	if err := store.StartLoad(ctx, key, m.FormatVersion.String(), len(files)); err != nil {
		res.Action = ActionFailed
		res.Err = err
		return res
	}

	o.logger.Infow("loading version",
		"billing_period", m.BillingPeriod,
		"version_id", m.VersionID,
		"files", len(files),
	)

	rows, table, err := o.load(ctx, m, files, creds, dataset)
	res.Table = table
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "cancelled"
		}
		if ferr := store.FailLoad(context.WithoutCancel(ctx), key, msg); ferr != nil {
			o.logger.Errorw("failed to record load failure", "error", ferr)
		}
		res.Action = ActionFailed
		res.Err = err
		return res
	}

	if err := store.CompleteLoad(ctx, key, rows); err != nil {
		res.Action = ActionFailed
		res.Err = err
		return res
	}

	o.logger.Infow("version loaded",
		"billing_period", m.BillingPeriod,
		"version_id", m.VersionID,
		"table", table,
		"rows", rows,
	)
	res.Action = ActionLoaded
	res.RowCount = rows
	return res
}

// load ingests one version's data files and returns the rows written plus the
// destination table name.
func (o *Orchestrator) load(ctx context.Context, m *manifest.Manifest, files []reader.FileRef, creds objstore.Credentials, dataset string) (int64, string, error) {
	if o.strategy() == types.StrategySingle {
		rows, err := o.loadSingle(ctx, m, files, creds, dataset)
		return rows, singleTableName, err
	}

	table := types.TableName(m.ExportName, m.BillingPeriod)
	ref := backend.TableRef{Dataset: dataset, Table: table}

	staged := len(files) > 0 && files[0].LocalPath != ""
	if o.adapter.SupportsNativeObjectStore() && !staged {
		rows, err := o.nativeLoad(ctx, ref, m.Columns, files, creds)
		return rows, table, err
	}

	rows, err := o.streamLoad(ctx, ref, m.Columns, files, creds, backend.DispositionReplace, "")
	return rows, table, err
}

// loadSingle appends a version's rows into the shared billing_data table,
// deleting the month's prior rows first. Rows carry an injected
// billing_period column, which the engines' native readers cannot add, so
// this strategy always streams.
func (o *Orchestrator) loadSingle(ctx context.Context, m *manifest.Manifest, files []reader.FileRef, creds objstore.Credentials, dataset string) (int64, error) {
	ref := backend.TableRef{Dataset: dataset, Table: singleTableName}

	existing, err := o.adapter.ListTables(ctx, dataset, singleTableName)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		if err := o.adapter.DeleteBillingPeriod(ctx, ref, m.BillingPeriod); err != nil {
			return 0, err
		}
	}

	columns := m.Columns
	if len(columns) > 0 {
		columns = append(append([]manifest.Column{}, columns...),
			manifest.Column{Name: "billing_period", Type: types.ColumnString})
	}
	return o.streamLoad(ctx, ref, columns, files, creds, backend.DispositionAppend, m.BillingPeriod.String())
}

// nativeLoad prepares the destination table from the manifest schema, then
// lets the backend ingest each file straight from object storage.
func (o *Orchestrator) nativeLoad(ctx context.Context, ref backend.TableRef, columns []manifest.Column, files []reader.FileRef, creds objstore.Credentials) (int64, error) {
	batch, err := o.adapter.Writer().Begin(ctx, ref, columns, backend.DispositionReplace)
	if err != nil {
		return 0, err
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}

	var total int64
	for _, file := range files {
		rows, err := o.adapter.NativeLoad(ctx, ref, file, creds)
		if err != nil {
			return total, err
		}
		total += rows
	}
	return total, nil
}

// streamLoad reads records through the adapter's data reader and writes them
// through its batch writer. injectPeriod, when non-empty, is added to every
// record as the billing_period column.
func (o *Orchestrator) streamLoad(ctx context.Context, ref backend.TableRef, columns []manifest.Column, files []reader.FileRef, creds objstore.Credentials, disposition backend.WriteDisposition, injectPeriod string) (int64, error) {
	batch, err := o.adapter.Writer().Begin(ctx, ref, columns, disposition)
	if err != nil {
		return 0, err
	}

	rdr := o.adapter.DataReader()
	for _, file := range files {
		err := rdr.Read(ctx, file, creds, func(record reader.Record) error {
			if injectPeriod != "" {
				record["billing_period"] = injectPeriod
			}
			return batch.Append(record)
		})
		if err != nil {
			_ = batch.Abort()
			return 0, err
		}
	}

	rows, err := batch.Commit(ctx)
	if err != nil {
		_ = batch.Abort()
		return 0, err
	}
	return rows, nil
}
