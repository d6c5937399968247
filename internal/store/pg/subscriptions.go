package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scriptyard/taskd/internal/store"
)

// SubscriptionStore implements store.SubscriptionStore against Postgres.
type SubscriptionStore struct{ db *sql.DB }

const subscriptionColumns = `id, name, repo_url, save_directory, cron_expr, active,
	include_subfolders, file_extensions, exclude_patterns, sync_delete_removed_files,
	use_proxy, notification_type, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*store.Subscription, error) {
	var sub store.Subscription
	var extensions, excludes []byte
	err := row.Scan(&sub.ID, &sub.Name, &sub.RepoURL, &sub.SaveDirectory, &sub.CronExpr,
		&sub.Active, &sub.IncludeSubfolders, &extensions, &excludes,
		&sub.SyncDeleteRemovedFiles, &sub.UseProxy, &sub.NotificationType, &sub.CreatedAt,
		&sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	scanStringSlice(extensions, &sub.FileExtensions)
	scanStringSlice(excludes, &sub.ExcludePatterns)
	return &sub, nil
}

func (s *SubscriptionStore) CreateSubscription(ctx context.Context, sub *store.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())`,
		sub.ID, sub.Name, sub.RepoURL, sub.SaveDirectory, sub.CronExpr, sub.Active,
		sub.IncludeSubfolders, jsonStringSlice(sub.FileExtensions), jsonStringSlice(sub.ExcludePatterns),
		sub.SyncDeleteRemovedFiles, sub.UseProxy, sub.NotificationType)
	if err != nil {
		return fmt.Errorf("pg: create subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) GetSubscription(ctx context.Context, id uuid.UUID) (*store.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=$1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ListSubscriptions(ctx context.Context) ([]*store.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("pg: list subscriptions: %w", err)
	}
	defer rows.Close()
	var out []*store.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) UpdateSubscription(ctx context.Context, sub *store.Subscription) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET name=$2, repo_url=$3,
		save_directory=$4, cron_expr=$5, active=$6, include_subfolders=$7, file_extensions=$8,
		exclude_patterns=$9, sync_delete_removed_files=$10, use_proxy=$11, notification_type=$12,
		updated_at=now() WHERE id=$1`,
		sub.ID, sub.Name, sub.RepoURL, sub.SaveDirectory, sub.CronExpr, sub.Active,
		sub.IncludeSubfolders, jsonStringSlice(sub.FileExtensions), jsonStringSlice(sub.ExcludePatterns),
		sub.SyncDeleteRemovedFiles, sub.UseProxy, sub.NotificationType)
	if err != nil {
		return fmt.Errorf("pg: update subscription: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete subscription: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) ListSubscriptionFiles(ctx context.Context, subID uuid.UUID) ([]*store.SubscriptionFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subscription_id, file_path, md5, created_at, updated_at
		FROM subscription_files WHERE subscription_id=$1 ORDER BY file_path`, subID)
	if err != nil {
		return nil, fmt.Errorf("pg: list subscription files: %w", err)
	}
	defer rows.Close()
	var out []*store.SubscriptionFile
	for rows.Next() {
		var f store.SubscriptionFile
		if err := rows.Scan(&f.ID, &f.SubscriptionID, &f.FilePath, &f.MD5, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan subscription file: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) UpsertSubscriptionFile(ctx context.Context, f *store.SubscriptionFile) error {
	if f.ID == uuid.Nil {
		f.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO subscription_files
		(id, subscription_id, file_path, md5, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
		ON CONFLICT (subscription_id, file_path)
		DO UPDATE SET md5 = EXCLUDED.md5, updated_at = now()`,
		f.ID, f.SubscriptionID, f.FilePath, f.MD5)
	if err != nil {
		return fmt.Errorf("pg: upsert subscription file: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) DeleteSubscriptionFile(ctx context.Context, subID uuid.UUID, filePath string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscription_files WHERE subscription_id=$1 AND file_path=$2`, subID, filePath)
	if err != nil {
		return fmt.Errorf("pg: delete subscription file: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) CreateSubscriptionLog(ctx context.Context, l *store.SubscriptionLog) error {
	if l.ID == uuid.Nil {
		l.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO subscription_logs
		(id, subscription_id, status, new_files, updated_files, deleted_files, error_output,
		 start_time, end_time, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())`,
		l.ID, l.SubscriptionID, l.Status, jsonStringSlice(l.NewFiles), jsonStringSlice(l.UpdatedFiles),
		jsonStringSlice(l.DeletedFiles), l.ErrorOutput, l.StartTime, l.EndTime)
	if err != nil {
		return fmt.Errorf("pg: create subscription log: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateSubscriptionLog(ctx context.Context, l *store.SubscriptionLog) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subscription_logs SET status=$2, new_files=$3,
		updated_files=$4, deleted_files=$5, error_output=$6, end_time=$7, updated_at=now()
		WHERE id=$1`,
		l.ID, l.Status, jsonStringSlice(l.NewFiles), jsonStringSlice(l.UpdatedFiles),
		jsonStringSlice(l.DeletedFiles), l.ErrorOutput, l.EndTime)
	if err != nil {
		return fmt.Errorf("pg: update subscription log: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SubscriptionStore) ListSubscriptionLogs(ctx context.Context, subID uuid.UUID, limit int) ([]*store.SubscriptionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, subscription_id, status, new_files,
		updated_files, deleted_files, error_output, start_time, end_time, created_at, updated_at
		FROM subscription_logs WHERE subscription_id=$1 ORDER BY start_time DESC LIMIT $2`,
		subID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: list subscription logs: %w", err)
	}
	defer rows.Close()
	var out []*store.SubscriptionLog
	for rows.Next() {
		var l store.SubscriptionLog
		var newFiles, updatedFiles, deletedFiles []byte
		if err := rows.Scan(&l.ID, &l.SubscriptionID, &l.Status, &newFiles, &updatedFiles,
			&deletedFiles, &l.ErrorOutput, &l.StartTime, &l.EndTime, &l.CreatedAt,
			&l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan subscription log: %w", err)
		}
		scanStringSlice(newFiles, &l.NewFiles)
		scanStringSlice(updatedFiles, &l.UpdatedFiles)
		scanStringSlice(deletedFiles, &l.DeletedFiles)
		out = append(out, &l)
	}
	return out, rows.Err()
}
