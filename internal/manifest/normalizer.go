package manifest

import (
	"encoding/json"
	"strings"
	"time"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/types"
)

// awsV1Body is the CUR v1 manifest document.
type awsV1Body struct {
	AssemblyID    string `json:"assemblyId"`
	BillingPeriod struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"billingPeriod"`
	ReportKeys []string `json:"reportKeys"`
	Columns    []struct {
		Category string `json:"category"`
		Name     string `json:"name"`
		Type     string `json:"type"`
	} `json:"columns"`
}

// awsV2Body is the CUR v2 (Data Exports) manifest document. It carries no
// billing period; that comes from the manifest's path segment.
type awsV2Body struct {
	ExecutionID string   `json:"executionId"`
	DataFiles   []string `json:"dataFiles"`
	Columns     []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"columns"`
}

// CUR v1 billing period timestamps come in the compact 20240101T000000.000Z
// form; older reports use RFC3339.
var v1PeriodLayouts = []string{
	"20060102T150405.000Z",
	"20060102T150405Z",
	time.RFC3339,
}

// NormalizeAWS parses raw CUR manifest JSON into the vendor-neutral form.
func NormalizeAWS(raw []byte, ref Ref, exportName string) (*Manifest, error) {
	switch ref.FormatVersion {
	case types.FormatV1:
		return normalizeAWSV1(raw, ref, exportName)
	case types.FormatV2:
		return normalizeAWSV2(raw, ref, exportName)
	default:
		return nil, ierr.NewErrorf("invalid CUR version: %s", ref.FormatVersion).
			Mark(ierr.ErrValidation)
	}
}

func normalizeAWSV1(raw []byte, ref Ref, exportName string) (*Manifest, error) {
	var body awsV1Body
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to parse CUR v1 manifest %s", ref.Key).
			Mark(ierr.ErrManifestMalformed)
	}
	if body.AssemblyID == "" {
		return nil, ierr.NewErrorf("manifest %s has no assemblyId", ref.Key).
			Mark(ierr.ErrManifestMalformed)
	}

	period, err := parseV1Period(body.BillingPeriod.Start)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("manifest %s has unparseable billingPeriod.start %q", ref.Key, body.BillingPeriod.Start).
			Mark(ierr.ErrManifestMalformed)
	}

	columns := make([]Column, 0, len(body.Columns))
	for _, c := range body.Columns {
		columns = append(columns, Column{
			Name: c.Category + "_" + strings.ReplaceAll(c.Name, ":", "_"),
			Type: types.MapAWSV1ColumnType(c.Type),
		})
	}

	return &Manifest{
		Vendor:        types.VendorAWS,
		FormatVersion: types.FormatV1,
		ExportName:    exportName,
		BillingPeriod: period,
		VersionID:     body.AssemblyID,
		DataFiles:     body.ReportKeys,
		Columns:       columns,
	}, nil
}

func normalizeAWSV2(raw []byte, ref Ref, exportName string) (*Manifest, error) {
	var body awsV2Body
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to parse CUR v2 manifest %s", ref.Key).
			Mark(ierr.ErrManifestMalformed)
	}
	if body.ExecutionID == "" {
		return nil, ierr.NewErrorf("manifest %s has no executionId", ref.Key).
			Mark(ierr.ErrManifestMalformed)
	}

	// The v2 manifest body has no billing period; the locator already parsed
	// it from the BILLING_PERIOD= path segment.
	if ref.BillingPeriod.IsZero() {
		return nil, ierr.NewErrorf("manifest ref %s carries no billing period", ref.Key).
			Mark(ierr.ErrManifestMalformed)
	}

	// dataFiles are full s3:// URIs; keep the last three path segments,
	// which form the key relative to the export's bucket.
	dataFiles := make([]string, 0, len(body.DataFiles))
	for _, uri := range body.DataFiles {
		segments := strings.Split(uri, "/")
		if len(segments) < 3 {
			return nil, ierr.NewErrorf("manifest %s has malformed data file URI %q", ref.Key, uri).
				Mark(ierr.ErrManifestMalformed)
		}
		dataFiles = append(dataFiles, strings.Join(segments[len(segments)-3:], "/"))
	}

	columns := make([]Column, 0, len(body.Columns))
	for _, c := range body.Columns {
		columns = append(columns, Column{
			Name: c.Name,
			Type: types.MapAWSV2ColumnType(c.Type),
		})
	}

	return &Manifest{
		Vendor:        types.VendorAWS,
		FormatVersion: types.FormatV2,
		ExportName:    exportName,
		BillingPeriod: ref.BillingPeriod,
		VersionID:     body.ExecutionID,
		DataFiles:     dataFiles,
		Columns:       columns,
	}, nil
}

func parseV1Period(start string) (types.BillingPeriod, error) {
	var lastErr error
	for _, layout := range v1PeriodLayouts {
		t, err := time.Parse(layout, start)
		if err == nil {
			return types.BillingPeriodOf(t), nil
		}
		lastErr = err
	}
	return types.BillingPeriod{}, lastErr
}

// SynthesizeAzure builds a Manifest for an Azure month, which publishes no
// manifest document. The version id is the execution folder name for a
// partitioned export, or a timestamp embedded in the filename for a
// single-file export. Columns are discovered by the data reader after
// download.
func SynthesizeAzure(ref Ref, dataFiles []string, exportName string, partitioned bool) (*Manifest, error) {
	versionID, err := azureVersionID(ref.Key, partitioned)
	if err != nil {
		return nil, err
	}

	return &Manifest{
		Vendor:        types.VendorAzure,
		FormatVersion: types.FormatV1,
		ExportName:    exportName,
		BillingPeriod: ref.BillingPeriod,
		VersionID:     versionID,
		DataFiles:     dataFiles,
	}, nil
}

// azureVersionID extracts the immutable version identifier from a blob key.
// Partitioned exports put each generation in its own execution folder; the
// folder name is the id. Single-file exports embed a timestamp in the
// filename after the last underscore.
func azureVersionID(key string, partitioned bool) (string, error) {
	segments := strings.Split(key, "/")
	if partitioned {
		if len(segments) < 2 {
			return "", ierr.NewErrorf("blob key %q has no execution folder", key).
				Mark(ierr.ErrManifestMalformed)
		}
		return segments[len(segments)-2], nil
	}

	filename := segments[len(segments)-1]
	underscore := strings.LastIndex(filename, "_")
	if underscore < 0 || underscore == len(filename)-1 {
		return "", ierr.NewErrorf("filename %q embeds no version token", filename).
			Mark(ierr.ErrManifestMalformed)
	}
	token := filename[underscore+1:]
	if dot := strings.Index(token, "."); dot >= 0 {
		token = token[:dot]
	}
	if token == "" {
		return "", ierr.NewErrorf("filename %q embeds no version token", filename).
			Mark(ierr.ErrManifestMalformed)
	}
	return token, nil
}
