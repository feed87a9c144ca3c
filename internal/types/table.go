package types

import (
	"regexp"
	"strings"
)

var (
	separatorRe   = regexp.MustCompile(`[\s\-/\\]+`)
	invalidRe     = regexp.MustCompile(`[^a-z0-9_]`)
	underscoresRe = regexp.MustCompile(`_+`)
)

const maxTableNameLen = 50

// SanitizeTableName turns an export name into an identifier that is safe as
// a table name on every supported backend: lowercase, separators collapsed
// to single underscores, non-alphanumerics stripped, a leading non-letter
// prefixed with "export_", truncated to 50 characters. The transform is
// idempotent.
func SanitizeTableName(name string) string {
	name = strings.ToLower(name)
	name = separatorRe.ReplaceAllString(name, "_")
	name = invalidRe.ReplaceAllString(name, "")

	if name == "" || !isLetter(name[0]) {
		name = "export_" + name
	}

	name = underscoresRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if len(name) > maxTableNameLen {
		// The cut can land on an underscore; trim again so the transform
		// stays idempotent.
		name = strings.TrimRight(name[:maxTableNameLen], "_")
	}

	return name
}

// TableName builds the per-month data table name:
// <sanitized_export>_<YYYY>_<MM>.
func TableName(exportName string, period BillingPeriod) string {
	return SanitizeTableName(exportName) + "_" + period.TableSuffix()
}

// UnifiedViewName builds the per-export unified view name.
func UnifiedViewName(exportName string) string {
	return SanitizeTableName(exportName) + "_unified"
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z'
}
