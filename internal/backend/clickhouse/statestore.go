package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// stateStore keeps load state in a MergeTree table. ClickHouse has no
// multi-statement transactions, so the version swap promotes the new record
// first and demotes the rest after; readers tolerate the transient overlap
// by preferring the most recent completed_at.
type stateStore struct {
	conn driver.Conn
}

func (s *stateStore) table() string {
	return fmt.Sprintf("%s.%s", state.StateDataset, state.StateTable)
}

func (s *stateStore) bootstrap(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+state.StateDataset); err != nil {
		return ierr.WithError(err).
			WithHint("failed to create state database").
			Mark(ierr.ErrDatabase)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			vendor String,
			export_name String,
			billing_period String,
			version_id String,
			data_format_version String,
			file_count UInt32,
			row_count UInt64,
			status String,
			error_message String,
			started_at DateTime,
			completed_at DateTime,
			is_current UInt8
		) ENGINE = MergeTree()
		ORDER BY (vendor, export_name, billing_period, version_id)
	`, s.table())
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return ierr.WithError(err).
			WithHint("failed to create load_state table").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) IsVersionLoaded(ctx context.Context, key state.Key) (bool, error) {
	var count uint64
	query := fmt.Sprintf(`
		SELECT count() FROM %s
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
		  AND status = ?
	`, s.table())
	err := s.conn.QueryRow(ctx, query,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
		types.LoadStatusCompleted.String(),
	).Scan(&count)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("failed to query load state").
			Mark(ierr.ErrDatabase)
	}
	return count > 0, nil
}

func (s *stateStore) StartLoad(ctx context.Context, key state.Key, dataFormatVersion string, fileCount int) error {
	var count uint64
	existsQuery := fmt.Sprintf(`
		SELECT count() FROM %s
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
	`, s.table())
	err := s.conn.QueryRow(ctx, existsQuery,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
	).Scan(&count)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to query load state").
			Mark(ierr.ErrDatabase)
	}

	if count > 0 {
		// Rerun of a known version: reset to started and clear the error.
		update := fmt.Sprintf(`
			ALTER TABLE %s UPDATE
				status = ?, error_message = '', started_at = ?, file_count = ?
			WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
		`, s.table())
		err = s.conn.Exec(ctx, update,
			types.LoadStatusStarted.String(), time.Now().UTC(), uint32(fileCount),
			key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
		)
	} else {
		insert := fmt.Sprintf(`
			INSERT INTO %s (
				vendor, export_name, billing_period, version_id, data_format_version,
				file_count, row_count, status, error_message, started_at, completed_at, is_current
			) VALUES (?, ?, ?, ?, ?, ?, 0, ?, '', ?, toDateTime(0), 0)
		`, s.table())
		err = s.conn.Exec(ctx, insert,
			key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
			dataFormatVersion, uint32(fileCount), types.LoadStatusStarted.String(), time.Now().UTC(),
		)
	}
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to record load start").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) CompleteLoad(ctx context.Context, key state.Key, rowCount int64) error {
	// Promote first. If the demote below is lost to a crash, readers still
	// resolve the newest completed_at as current.
	promote := fmt.Sprintf(`
		ALTER TABLE %s UPDATE
			status = ?, completed_at = ?, row_count = ?, is_current = 1
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
	`, s.table())
	err := s.conn.Exec(ctx, promote,
		types.LoadStatusCompleted.String(), time.Now().UTC(), uint64(rowCount),
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to mark load completed").
			Mark(ierr.ErrDatabase)
	}

	demote := fmt.Sprintf(`
		ALTER TABLE %s UPDATE is_current = 0
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id != ?
	`, s.table())
	err = s.conn.Exec(ctx, demote,
		key.Vendor.String(), key.ExportName, key.BillingPeriod.String(), key.VersionID,
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("failed to demote prior versions").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (s *stateStore) FailLoad(ctx context.Context, key state.Key, message string) error {
	update := fmt.Sprintf(`
		ALTER TABLE %s UPDATE status = ?, error_message = ?
		WHERE vendor = ? AND export_name = ? AND billing_period = ? AND version_id = ?
	`, s.table())
	err := s.conn.Exec(ctx, update,
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
	// LIMIT 1 BY absorbs the transient two-current overlap of the
	// promote-then-demote swap.
	query := fmt.Sprintf(`
		SELECT billing_period, version_id, data_format_version, completed_at, row_count, file_count
		FROM %s
		WHERE vendor = ? AND export_name = ? AND is_current = 1
		ORDER BY billing_period DESC, completed_at DESC
		LIMIT 1 BY billing_period
	`, s.table())
	rows, err := s.conn.Query(ctx, query, vendor.String(), exportName)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to query current versions").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var out []state.CurrentVersion
	for rows.Next() {
		var (
			periodStr string
			cv        state.CurrentVersion
			rowCount  uint64
			fileCount uint32
		)
		if err := rows.Scan(&periodStr, &cv.VersionID, &cv.DataFormatVersion, &cv.LoadedAt, &rowCount, &fileCount); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		period, perr := types.ParseBillingPeriod(periodStr)
		if perr != nil {
			return nil, perr
		}
		cv.BillingPeriod = period
		cv.RowCount = int64(rowCount)
		cv.FileCount = int(fileCount)
		out = append(out, cv)
	}
	return out, rows.Err()
}

func (s *stateStore) VersionHistory(ctx context.Context, vendor types.Vendor, exportName string, period types.BillingPeriod) ([]state.LoadRecord, error) {
	query := fmt.Sprintf(`
		SELECT version_id, data_format_version, is_current, status,
		       started_at, completed_at, row_count, file_count, error_message
		FROM %s
		WHERE vendor = ? AND export_name = ? AND billing_period = ?
		ORDER BY started_at DESC
	`, s.table())
	rows, err := s.conn.Query(ctx, query, vendor.String(), exportName, period.String())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to query version history").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var out []state.LoadRecord
	for rows.Next() {
		var (
			rec       state.LoadRecord
			isCurrent uint8
			status    string
			rowCount  uint64
			fileCount uint32
		)
		if err := rows.Scan(&rec.VersionID, &rec.DataFormatVersion, &isCurrent, &status,
			&rec.StartedAt, &rec.CompletedAt, &rowCount, &fileCount, &rec.ErrorMessage); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		rec.Vendor = vendor
		rec.ExportName = exportName
		rec.BillingPeriod = period
		rec.IsCurrent = isCurrent == 1
		rec.Status = types.LoadStatus(status)
		rec.RowCount = int64(rowCount)
		rec.FileCount = int(fileCount)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *stateStore) ListExports(ctx context.Context) ([]state.ExportRef, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT vendor, export_name FROM %s ORDER BY vendor, export_name
	`, s.table())
	rows, err := s.conn.Query(ctx, query)
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
