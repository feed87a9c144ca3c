package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// stateStore keeps load state in billing_state.load_state. Postgres has
// real transactions, so the version swap commits atomically.
type stateStore struct {
	db *sqlx.DB
}

func (s *stateStore) table() string {
	return fmt.Sprintf("%s.%s", state.StateDataset, state.StateTable)
}

func (s *stateStore) bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+state.StateDataset); err != nil {
		return ierr.WithError(err).
			WithHint("failed to create state schema").
			Mark(ierr.ErrDatabase)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			vendor TEXT NOT NULL,
			export_name TEXT NOT NULL,
			billing_period TEXT NOT NULL,
			version_id TEXT NOT NULL,
			data_format_version TEXT NOT NULL,
			file_count INTEGER,
			row_count BIGINT,
			status TEXT NOT NULL,
			error_message TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			is_current BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (vendor, export_name, billing_period, version_id)
		)
	`, s.table())
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return ierr.WithError(err).
			WithHint("failed to create load_state table").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) IsVersionLoaded(ctx context.Context, key state.Key) (bool, error) {
	var count int
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT count(*) FROM %s
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
		  AND status = ?
	`, s.table()))
	err := s.db.GetContext(ctx, &count, query,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
		types.LoadStatusCompleted.String(),
	)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("failed to query load state").
			Mark(ierr.ErrDatabase)
	}
	return count > 0, nil
}

func (s *stateStore) StartLoad(ctx context.Context, key state.Key, dataFormatVersion string, fileCount int) error {
	query := s.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (
			vendor, export_name, billing_period, version_id, data_format_version,
			file_count, row_count, status, error_message, started_at, completed_at, is_current
		) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, NULL, ?, NULL, FALSE)
		ON CONFLICT (vendor, export_name, billing_period, version_id) DO UPDATE SET
			status = excluded.status,
			error_message = NULL,
			started_at = excluded.started_at,
			file_count = excluded.file_count
	`, s.table()))
	_, err := s.db.ExecContext(ctx, query,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
		dataFormatVersion, fileCount, types.LoadStatusStarted.String(), time.Now().UTC(),
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to record load start").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) CompleteLoad(ctx context.Context, key state.Key, rowCount int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to begin state transaction").
			Mark(ierr.ErrDatabase)
	}
	defer tx.Rollback()

	demote := tx.Rebind(fmt.Sprintf(`
		UPDATE %s SET is_current = FALSE
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id <> ?
	`, s.table()))
	if _, err := tx.ExecContext(ctx, demote,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
	); err != nil {
		return ierr.WithError(err).
			WithHint("failed to demote prior versions").
			Mark(ierr.ErrDatabase)
	}

	promote := tx.Rebind(fmt.Sprintf(`
		UPDATE %s SET status = ?, completed_at = ?, row_count = ?, is_current = TRUE
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
	`, s.table()))
	res, err := tx.ExecContext(ctx, promote,
		types.LoadStatusCompleted.String(), time.Now().UTC(), rowCount,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to mark load completed").
			Mark(ierr.ErrDatabase)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ierr.NewErrorf("no load record for %s/%s %s %s",
			key.Vendor, key.ExportName, key.BillingPeriod, key.VersionID).
			Mark(ierr.ErrStateInconsistent)
	}

	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).
			WithHint("failed to commit version swap").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) FailLoad(ctx context.Context, key state.Key, message string) error {
	query := s.db.Rebind(fmt.Sprintf(`
		UPDATE %s SET status = ?, error_message = ?
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
	`, s.table()))
	_, err := s.db.ExecContext(ctx, query,
		types.LoadStatusFailed.String(), message,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to record load failure").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) CurrentVersions(ctx context.Context, vendor types.Vendor, exportName string) ([]state.CurrentVersion, error) {
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT billing_period, version_id, data_format_version, completed_at, row_count, file_count
		FROM %s
		WHERE vendor = ? AND export_name = ? AND is_current
		ORDER BY billing_period DESC
	`, s.table()))
	rows, err := s.db.QueryContext(ctx, query, vendor.String(), exportName)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to query current versions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var out []state.CurrentVersion
	for rows.Next() {
		var (
			periodStr   string
			cv          state.CurrentVersion
			completedAt sql.NullTime
			rowCount    sql.NullInt64
			fileCount   sql.NullInt32
		)
		if err := rows.Scan(&periodStr, &cv.VersionID, &cv.DataFormatVersion, &completedAt, &rowCount, &fileCount); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		period, perr := types.ParseBillingPeriod(periodStr)
		if perr != nil {
			return nil, perr
		}
		cv.BillingPeriod = period
		cv.LoadedAt = completedAt.Time
		cv.RowCount = rowCount.Int64
		cv.FileCount = int(fileCount.Int32)
		out = append(out, cv)
	}
	return out, rows.Err()
}

func (s *stateStore) VersionHistory(ctx context.Context, vendor types.Vendor, exportName string, period types.BillingPeriod) ([]state.LoadRecord, error) {
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT version_id, data_format_version, is_current, status,
		       started_at, completed_at, row_count, file_count, error_message
		FROM %s
		WHERE vendor = ? AND export_name = ? AND billing_period = ?
		ORDER BY started_at DESC
	`, s.table()))
	rows, err := s.db.QueryContext(ctx, query, vendor.String(), exportName, period.String())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to query version history").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var out []state.LoadRecord
	for rows.Next() {
		var (
			rec          state.LoadRecord
			status       string
			completedAt  sql.NullTime
			rowCount     sql.NullInt64
			fileCount    sql.NullInt32
			errorMessage sql.NullString
		)
		if err := rows.Scan(&rec.VersionID, &rec.DataFormatVersion, &rec.IsCurrent, &status,
			&rec.StartedAt, &completedAt, &rowCount, &fileCount, &errorMessage); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		rec.Vendor = vendor
		rec.ExportName = exportName
		rec.BillingPeriod = period
		rec.Status = types.LoadStatus(status)
		rec.CompletedAt = completedAt.Time
		rec.RowCount = rowCount.Int64
		rec.FileCount = int(fileCount.Int32)
		rec.ErrorMessage = errorMessage.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *stateStore) ListExports(ctx context.Context) ([]state.ExportRef, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT vendor, export_name FROM %s ORDER BY vendor, export_name
	`, s.table())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to list exports").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var out []state.ExportRef
	for rows.Next() {
		var vendor, exportName string
		if err := rows.Scan(&vendor, &exportName); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		out = append(out, state.ExportRef{Vendor: types.Vendor(vendor), ExportName: exportName})
	}
	return out, rows.Err()
}
