package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// SubscriptionStore implements store.SubscriptionStore against sqlite.
type SubscriptionStore struct{ db *sql.DB }

const subscriptionColumns = `id, name, repo_url, save_directory, cron_expr, active,
	include_subfolders, file_extensions, exclude_patterns, sync_delete_removed_files,
	use_proxy, notification_type, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*store.Subscription, error) {
	var sub store.Subscription
	var id, extensions, excludes, createdAt, updatedAt string
	var active, includeSubfolders, syncDelete, useProxy int
	err := row.Scan(&id, &sub.Name, &sub.RepoURL, &sub.SaveDirectory, &sub.CronExpr, &active,
		&includeSubfolders, &extensions, &excludes, &syncDelete, &useProxy,
		&sub.NotificationType, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sub.ID, _ = uuid.Parse(id)
	sub.Active = active != 0
	sub.IncludeSubfolders = includeSubfolders != 0
	sub.SyncDeleteRemovedFiles = syncDelete != 0
	sub.UseProxy = useProxy != 0
	sub.CreatedAt = parseTime(createdAt)
	sub.UpdatedAt = parseTime(updatedAt)
	scanStringSlice(extensions, &sub.FileExtensions)
	scanStringSlice(excludes, &sub.ExcludePatterns)
	return &sub, nil
}

func (s *SubscriptionStore) CreateSubscription(ctx context.Context, sub *store.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sub.ID.String(), sub.Name, sub.RepoURL, sub.SaveDirectory, sub.CronExpr,
		boolToInt(sub.Active), boolToInt(sub.IncludeSubfolders), jsonStringSlice(sub.FileExtensions),
		jsonStringSlice(sub.ExcludePatterns), boolToInt(sub.SyncDeleteRemovedFiles),
		boolToInt(sub.UseProxy), sub.NotificationType, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) GetSubscription(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=?`, id.String())
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ListSubscriptions(ctx context.Context) ([]*store.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscriptions: %w", err)
	}
	defer rows.Close()
	var out []*store.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) UpdateSubscription(ctx context.Context, sub *store.Subscription) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET name=?, repo_url=?,
		save_directory=?, cron_expr=?, active=?, include_subfolders=?, file_extensions=?,
		exclude_patterns=?, sync_delete_removed_files=?, use_proxy=?, notification_type=?,
		updated_at=? WHERE id=?`,
		sub.Name, sub.RepoURL, sub.SaveDirectory, sub.CronExpr, boolToInt(sub.Active),
		boolToInt(sub.IncludeSubfolders), jsonStringSlice(sub.FileExtensions),
		jsonStringSlice(sub.ExcludePatterns), boolToInt(sub.SyncDeleteRemovedFiles),
		boolToInt(sub.UseProxy), sub.NotificationType, timeStr(nowUTC()), sub.ID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update subscription: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete subscription: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) ListSubscriptionFiles(ctx context.Context, subID uuid.UUID) ([]*store.SubscriptionFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subscription_id, file_path, md5, created_at, updated_at
		FROM subscription_files WHERE subscription_id=? ORDER BY file_path`, subID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscription files: %w", err)
	}
	defer rows.Close()
	var out []*store.SubscriptionFile
	for rows.Next() {
		var f store.SubscriptionFile
		var id, subscriptionID, createdAt, updatedAt string
		if err := rows.Scan(&id, &subscriptionID, &f.FilePath, &f.MD5, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan subscription file: %w", err)
		}
		f.ID, _ = uuid.Parse(id)
		f.SubscriptionID, _ = uuid.Parse(subscriptionID)
		f.CreatedAt = parseTime(createdAt)
		f.UpdatedAt = parseTime(updatedAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) UpsertSubscriptionFile(ctx context.Context, f *store.SubscriptionFile) error {
	if f.ID == uuid.Nil {
		f.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO subscription_files
		(id, subscription_id, file_path, md5, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (subscription_id, file_path)
		DO UPDATE SET md5 = excluded.md5, updated_at = excluded.updated_at`,
		f.ID.String(), f.SubscriptionID.String(), f.FilePath, f.MD5, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: upsert subscription file: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) DeleteSubscriptionFile(ctx context.Context, subID uuid.UUID, filePath string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscription_files WHERE subscription_id=? AND file_path=?`, subID.String(), filePath)
	if err != nil {
		return fmt.Errorf("sqlite: delete subscription file: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) CreateSubscriptionLog(ctx context.Context, l *store.SubscriptionLog) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	now := timeStr(nowUTC())
	_, err := s.db.ExecContext(ctx, `INSERT INTO subscription_logs
		(id, subscription_id, status, new_files, updated_files, deleted_files, error_output,
		 start_time, end_time, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID.String(), l.SubscriptionID.String(), l.Status, jsonStringSlice(l.NewFiles),
		jsonStringSlice(l.UpdatedFiles), jsonStringSlice(l.DeletedFiles), l.ErrorOutput,
		timeStr(l.StartTime), nullTimeStr(l.EndTime), now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create subscription log: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateSubscriptionLog(ctx context.Context, l *store.SubscriptionLog) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subscription_logs SET status=?, new_files=?,
		updated_files=?, deleted_files=?, error_output=?, end_time=?, updated_at=? WHERE id=?`,
		l.Status, jsonStringSlice(l.NewFiles), jsonStringSlice(l.UpdatedFiles),
		jsonStringSlice(l.DeletedFiles), l.ErrorOutput, nullTimeStr(l.EndTime), timeStr(nowUTC()),
		l.ID.String())
	if err != nil {
		return fmt.Errorf("sqlite: update subscription log: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) ListSubscriptionLogs(ctx context.Context, subID uuid.UUID, limit int) ([]*store.SubscriptionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, subscription_id, status, new_files,
		updated_files, deleted_files, error_output, start_time, end_time, created_at, updated_at
		FROM subscription_logs WHERE subscription_id=? ORDER BY start_time DESC LIMIT ?`,
		subID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list subscription logs: %w", err)
	}
	defer rows.Close()
	var out []*store.SubscriptionLog
	for rows.Next() {
		var l store.SubscriptionLog
		var id, subscriptionID, newFiles, updatedFiles, deletedFiles, startTime, createdAt, updatedAt string
		var endTime sql.NullString
		if err := rows.Scan(&id, &subscriptionID, &l.Status, &newFiles, &updatedFiles,
			&deletedFiles, &l.ErrorOutput, &startTime, &endTime, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan subscription log: %w", err)
		}
		l.ID, _ = uuid.Parse(id)
		l.SubscriptionID, _ = uuid.Parse(subscriptionID)
		l.StartTime = parseTime(startTime)
		l.EndTime = parseNullTime(endTime)
		l.CreatedAt = parseTime(createdAt)
		l.UpdatedAt = parseTime(updatedAt)
		scanStringSlice(newFiles, &l.NewFiles)
		scanStringSlice(updatedFiles, &l.UpdatedFiles)
		scanStringSlice(deletedFiles, &l.DeletedFiles)
		out = append(out, &l)
	}
	return out, rows.Err()
}
