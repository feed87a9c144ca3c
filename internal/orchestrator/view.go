package orchestrator

import (
	"context"
	"strings"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/types"
)

// RefreshUnifiedView rebuilds <export>_unified over every month table of the
// export. Dialects with name-based UNION get the cheap form; the rest get an
// explicit column alignment where each table's missing columns are selected
// as typed NULLs, so months whose schemas drifted still union cleanly.
func RefreshUnifiedView(ctx context.Context, adapter backend.Adapter, dataset, exportName string) error {
	base := types.SanitizeTableName(exportName)
	tables, err := adapter.ListTables(ctx, dataset, base+"_%")
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}

	viewRef := backend.TableRef{Dataset: dataset, Table: types.UnifiedViewName(exportName)}

	if adapter.SupportsUnionByName() {
		parts := make([]string, len(tables))
		for i, table := range tables {
			parts[i] = "SELECT * FROM " + adapter.TableReference(dataset, table)
		}
		return adapter.CreateOrReplaceView(ctx, viewRef, strings.Join(parts, " UNION ALL BY NAME "))
	}

	selectSQL, err := alignedUnion(ctx, adapter, dataset, tables)
	if err != nil {
		return err
	}
	return adapter.CreateOrReplaceView(ctx, viewRef, selectSQL)
}

// alignedUnion builds a UNION ALL whose branches all project the union of
// every table's columns, in first-appearance order.
func alignedUnion(ctx context.Context, adapter backend.Adapter, dataset string, tables []string) (string, error) {
	var union []string
	seen := map[string]bool{}
	perTable := make(map[string]map[string]bool, len(tables))

	for _, table := range tables {
		names, err := adapter.ColumnNames(ctx, backend.TableRef{Dataset: dataset, Table: table})
		if err != nil {
			return "", err
		}
		has := make(map[string]bool, len(names))
		for _, name := range names {
			has[name] = true
			if !seen[name] {
				seen[name] = true
				union = append(union, name)
			}
		}
		perTable[table] = has
	}

	parts := make([]string, len(tables))
	for i, table := range tables {
		projection := make([]string, len(union))
		for j, name := range union {
			quoted := adapter.QuoteIdentifier(name)
			if perTable[table][name] {
				projection[j] = quoted
			} else {
				projection[j] = adapter.NullColumn() + " AS " + quoted
			}
		}
		parts[i] = "SELECT " + strings.Join(projection, ", ") +
			" FROM " + adapter.TableReference(dataset, table)
	}
	return strings.Join(parts, " UNION ALL "), nil
}
