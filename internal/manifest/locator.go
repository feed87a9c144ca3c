package manifest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/types"
)

// AWSLocator discovers CUR manifest blobs under the export's path schema:
//
//	v1: <prefix>/<export>/<YYYYMMDD>-<YYYYMMDD>/<export>-Manifest.json
//	v2: <prefix>/<export>/metadata/BILLING_PERIOD=<YYYY>-<MM>/<export>-Manifest.json
type AWSLocator struct {
	client        objstore.Client
	prefix        string
	exportName    string
	formatVersion types.FormatVersion
	logger        *logger.Logger
}

func NewAWSLocator(client objstore.Client, prefix, exportName string, formatVersion types.FormatVersion, log *logger.Logger) *AWSLocator {
	return &AWSLocator{
		client:        client,
		prefix:        prefix,
		exportName:    exportName,
		formatVersion: formatVersion,
		logger:        log,
	}
}

var (
	v1PeriodRe = regexp.MustCompile(`/(\d{8})-(\d{8})/`)
	v2PeriodRe = regexp.MustCompile(`BILLING_PERIOD=(\d{4}-\d{2})`)
)

func (l *AWSLocator) pattern() *regexp.Regexp {
	prefix := regexp.QuoteMeta(l.prefix)
	export := regexp.QuoteMeta(l.exportName)
	if l.formatVersion == types.FormatV2 {
		return regexp.MustCompile(fmt.Sprintf(`^%s/%s/metadata/BILLING_PERIOD=\d{4}-\d{2}/%s-Manifest\.json$`, prefix, export, export))
	}
	return regexp.MustCompile(fmt.Sprintf(`^%s/%s/\d{8}-\d{8}/%s-Manifest\.json$`, prefix, export, export))
}

// List enumerates the export's manifest blobs, filtered to [start, end] at
// month granularity (zero bounds are open), sorted by billing period
// ascending. A matched key whose billing period cannot be parsed is skipped
// with a warning.
func (l *AWSLocator) List(ctx context.Context, start, end types.BillingPeriod) ([]Ref, error) {
	objects, err := l.client.List(ctx, l.prefix)
	if err != nil {
		return nil, err
	}

	pattern := l.pattern()
	var refs []Ref
	for _, obj := range objects {
		if !pattern.MatchString(obj.Key) {
			continue
		}
		period, perr := l.parsePeriod(obj.Key)
		if perr != nil {
			l.logger.Warnw("skipping manifest key with unparseable billing period",
				"key", obj.Key, "error", perr)
			continue
		}
		if !period.InRange(start, end) {
			continue
		}
		refs = append(refs, Ref{
			Bucket:        l.client.Bucket(),
			Key:           obj.Key,
			BillingPeriod: period,
			FormatVersion: l.formatVersion,
			LastModified:  obj.LastModified,
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].BillingPeriod.Before(refs[j].BillingPeriod)
	})
	return refs, nil
}

func (l *AWSLocator) parsePeriod(key string) (types.BillingPeriod, error) {
	if l.formatVersion == types.FormatV2 {
		m := v2PeriodRe.FindStringSubmatch(key)
		if m == nil {
			return types.BillingPeriod{}, ierr.NewErrorf("no BILLING_PERIOD segment in %s", key).
				Mark(ierr.ErrManifestMalformed)
		}
		return types.ParseBillingPeriod(m[1])
	}

	m := v1PeriodRe.FindStringSubmatch(key)
	if m == nil {
		return types.BillingPeriod{}, ierr.NewErrorf("no date range segment in %s", key).
			Mark(ierr.ErrManifestMalformed)
	}
	year, err := strconv.Atoi(m[1][:4])
	if err != nil {
		return types.BillingPeriod{}, ierr.WithError(err).Mark(ierr.ErrManifestMalformed)
	}
	month, err := strconv.Atoi(m[1][4:6])
	if err != nil || month < 1 || month > 12 {
		return types.BillingPeriod{}, ierr.NewErrorf("invalid month in date range segment of %s", key).
			Mark(ierr.ErrManifestMalformed)
	}
	return types.NewBillingPeriod(year, time.Month(month)), nil
}

// AzureLocator discovers Cost Export blobs. Azure publishes no useful
// manifest document; each <directory>/<export>/<YYYYMMDD>-<YYYYMMDD>/ folder
// holds one or more generations of the month's data and the newest blob per
// folder wins.
type AzureLocator struct {
	client      objstore.Client
	directory   string
	exportName  string
	partitioned bool
	logger      *logger.Logger
}

func NewAzureLocator(client objstore.Client, directory, exportName string, partitioned bool, log *logger.Logger) *AzureLocator {
	return &AzureLocator{
		client:      client,
		directory:   directory,
		exportName:  exportName,
		partitioned: partitioned,
		logger:      log,
	}
}

var azureFolderRe = regexp.MustCompile(`^(\d{8})-\d{8}$`)

// List groups blobs by month folder and returns one Ref per folder pointing
// at the blob with the newest last-modified timestamp.
func (l *AzureLocator) List(ctx context.Context, start, end types.BillingPeriod) ([]Ref, error) {
	prefix := l.directory + "/" + l.exportName + "/"
	objects, err := l.client.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	newest := map[string]objstore.ObjectInfo{}
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		segments := strings.Split(rel, "/")
		if len(segments) < 2 {
			continue
		}
		folder := segments[0]
		if !azureFolderRe.MatchString(folder) {
			continue
		}
		if cur, ok := newest[folder]; !ok || obj.LastModified.After(cur.LastModified) {
			newest[folder] = obj
		}
	}

	var refs []Ref
	for folder, obj := range newest {
		period, perr := parseAzureFolderPeriod(folder)
		if perr != nil {
			l.logger.Warnw("skipping azure month folder with unparseable billing period",
				"folder", folder, "error", perr)
			continue
		}
		if !period.InRange(start, end) {
			continue
		}
		refs = append(refs, Ref{
			Bucket:        l.client.Bucket(),
			Key:           obj.Key,
			BillingPeriod: period,
			LastModified:  obj.LastModified,
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].BillingPeriod.Before(refs[j].BillingPeriod)
	})
	return refs, nil
}

// DataFiles returns the data files belonging to a located month. For a
// partitioned export that is every blob in the newest blob's execution
// folder; for a single-file export it is the located blob alone.
func (l *AzureLocator) DataFiles(ctx context.Context, ref Ref) ([]string, error) {
	if !l.partitioned {
		return []string{ref.Key}, nil
	}

	folder := ref.Key[:strings.LastIndex(ref.Key, "/")+1]
	objects, err := l.client.List(ctx, folder)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func parseAzureFolderPeriod(folder string) (types.BillingPeriod, error) {
	m := azureFolderRe.FindStringSubmatch(folder)
	if m == nil {
		return types.BillingPeriod{}, ierr.NewErrorf("invalid month folder %q", folder).
			Mark(ierr.ErrManifestMalformed)
	}
	year, err := strconv.Atoi(m[1][:4])
	if err != nil {
		return types.BillingPeriod{}, ierr.WithError(err).Mark(ierr.ErrManifestMalformed)
	}
	month, err := strconv.Atoi(m[1][4:6])
	if err != nil || month < 1 || month > 12 {
		return types.BillingPeriod{}, ierr.NewErrorf("invalid month in folder %q", folder).
			Mark(ierr.ErrManifestMalformed)
	}
	return types.NewBillingPeriod(year, time.Month(month)), nil
}
