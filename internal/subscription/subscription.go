// Package subscription keeps a local directory in sync with a git
// repository on a schedule, tracking per-file content hashes so it can
// report which files were added, updated, or removed on each sync.
package subscription

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/scriptyard/taskd/internal/config"
	"github.com/scriptyard/taskd/internal/livelog"
	"github.com/scriptyard/taskd/internal/notifier"
	"github.com/scriptyard/taskd/internal/store"
)

const (
	gitTimeout        = 5 * time.Minute
	defaultBranch     = "main"
	notifyListPreview = 10
	subscriptionsRoot = "./data/subscriptions"
)

// DefaultSaveDirectory derives the directory a Subscription syncs into
// when it isn't given one explicitly, slugifying its name so it's safe
// to use as a path segment.
func DefaultSaveDirectory(name string) string {
	return filepath.Join(subscriptionsRoot, config.Slugify(name))
}

// Syncer performs one sync run of a Subscription.
type Syncer struct {
	stores   *store.Stores
	hub      *livelog.Hub
	notifier notifier.Notifier
}

// New creates a Syncer.
func New(stores *store.Stores, hub *livelog.Hub, n notifier.Notifier) *Syncer {
	return &Syncer{stores: stores, hub: hub, notifier: n}
}

// Run clones or pulls sub.RepoURL into sub.SaveDirectory, diffs the
// resulting file tree against the previously recorded SubscriptionFile
// rows, persists the new rows, records a SubscriptionLog, and notifies
// according to sub.NotificationType.
func (s *Syncer) Run(ctx context.Context, sub *store.Subscription) error {
	runCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	start := time.Now().UTC()
	log := &store.SubscriptionLog{
		SubscriptionID: sub.ID,
		Status:         store.TaskStatusRunning,
		StartTime:      start,
	}
	if err := s.stores.Subscriptions.CreateSubscriptionLog(runCtx, log); err != nil {
		return fmt.Errorf("subscription: create log: %w", err)
	}

	s.hub.Broadcast(livelog.RoomGlobal, livelog.Event{
		Type: "sub_start",
		Data: map[string]any{"subscription_id": sub.ID, "name": sub.Name},
	})

	err := s.sync(runCtx, sub, log)
	now := time.Now().UTC()
	log.EndTime = &now
	if err != nil {
		log.Status = store.TaskStatusFailed
		log.ErrorOutput = err.Error()
	} else {
		log.Status = store.TaskStatusSuccess
	}
	if uerr := s.stores.Subscriptions.UpdateSubscriptionLog(ctx, log); uerr != nil {
		slog.Error("subscription: update log failed", "subscription_id", sub.ID, "error", uerr)
	}

	s.hub.Broadcast(livelog.RoomGlobal, livelog.Event{
		Type: "sub_complete",
		Data: map[string]any{
			"subscription_id": sub.ID,
			"status":          log.Status,
			"new_files":       len(log.NewFiles),
			"updated_files":   len(log.UpdatedFiles),
			"deleted_files":   len(log.DeletedFiles),
		},
	})

	s.notify(ctx, sub, log)
	return err
}

func (s *Syncer) sync(ctx context.Context, sub *store.Subscription, log *store.SubscriptionLog) error {
	if sub.SaveDirectory == "" {
		sub.SaveDirectory = DefaultSaveDirectory(sub.Name)
	}
	if err := os.MkdirAll(sub.SaveDirectory, 0o755); err != nil {
		return fmt.Errorf("create save directory: %w", err)
	}

	if isGitRepo(sub.SaveDirectory) {
		branch, err := runGitDir(ctx, sub.SaveDirectory, "branch", "--show-current")
		if err != nil || branch == "" {
			branch = defaultBranch
		}
		if _, err := runGitDir(ctx, sub.SaveDirectory, "pull", "origin", branch); err != nil {
			return fmt.Errorf("git pull: %w", err)
		}
	} else {
		if err := forceRemoveTreeContents(sub.SaveDirectory); err != nil {
			return fmt.Errorf("clear save directory: %w", err)
		}
		if _, err := runGitDir(ctx, sub.SaveDirectory, "clone", sub.RepoURL, "."); err != nil {
			return fmt.Errorf("git clone: %w", err)
		}
	}

	existing, err := s.stores.Subscriptions.ListSubscriptionFiles(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("list tracked files: %w", err)
	}
	tracked := make(map[string]string, len(existing)) // relative path -> md5
	for _, f := range existing {
		tracked[f.FilePath] = f.MD5
	}

	current, err := walkRepo(sub)
	if err != nil {
		return fmt.Errorf("walk repo: %w", err)
	}

	for relPath, sum := range current {
		prevSum, wasTracked := tracked[relPath]
		if !wasTracked {
			log.NewFiles = append(log.NewFiles, relPath)
		} else if prevSum != sum {
			log.UpdatedFiles = append(log.UpdatedFiles, relPath)
		}
		if err := s.stores.Subscriptions.UpsertSubscriptionFile(ctx, &store.SubscriptionFile{
			SubscriptionID: sub.ID,
			FilePath:       relPath,
			MD5:            sum,
		}); err != nil {
			return fmt.Errorf("upsert tracked file %s: %w", relPath, err)
		}
	}

	if sub.SyncDeleteRemovedFiles {
		for relPath := range tracked {
			if _, stillPresent := current[relPath]; !stillPresent {
				log.DeletedFiles = append(log.DeletedFiles, relPath)
				if err := s.stores.Subscriptions.DeleteSubscriptionFile(ctx, sub.ID, relPath); err != nil {
					return fmt.Errorf("delete tracked file %s: %w", relPath, err)
				}
			}
		}
	}

	return nil
}

// walkRepo returns relative-path -> md5-hex for every file under
// sub.SaveDirectory that passes the extension and exclude-pattern
// filters, honoring IncludeSubfolders.
func walkRepo(sub *store.Subscription) (map[string]string, error) {
	out := make(map[string]string)
	root := sub.SaveDirectory

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".git") {
				return filepath.SkipDir
			}
			if !sub.IncludeSubfolders && rel != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldExcludePath(rel, sub.ExcludePatterns) {
			return nil
		}
		if !matchesExtension(rel, sub.FileExtensions) {
			return nil
		}
		sum, err := md5File(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}
		out[filepath.ToSlash(rel)] = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchesExtension(relPath string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(relPath)
	for _, want := range extensions {
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// shouldExcludePath reports whether relPath matches any of patterns,
// checked three ways: the full relative path, each individual path
// component, and the file's basename -- so a pattern like "docs/**"
// excludes a subtree while a bare "node_modules" pattern excludes that
// directory wherever it appears.
func shouldExcludePath(relPath string, patterns []string) bool {
	slashPath := filepath.ToSlash(relPath)
	base := filepath.Base(relPath)
	components := strings.Split(slashPath, "/")

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if ok, _ := doublestar.Match(pattern, slashPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		for _, comp := range components {
			if ok, _ := doublestar.Match(pattern, comp); ok {
				return true
			}
		}
	}
	return false
}

func md5File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

func isGitRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

func runGitDir(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(out.String()), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// forceRemoveTreeContents deletes everything under dir, retrying a
// chmod-then-remove on any entry that refuses to delete because it is
// marked read-only -- the same recovery the reference scheduler's
// force_remove_tree performs before a fresh clone.
func forceRemoveTreeContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := forceRemoveAll(path); err != nil {
			return err
		}
	}
	return nil
}

func forceRemoveAll(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		_ = os.Chmod(p, 0o700)
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return os.RemoveAll(path)
}

func (s *Syncer) notify(ctx context.Context, sub *store.Subscription, log *store.SubscriptionLog) {
	if sub.NotificationType == "" {
		return
	}
	isError := log.Status == store.TaskStatusFailed
	if !isError && len(log.NewFiles) == 0 && len(log.UpdatedFiles) == 0 && len(log.DeletedFiles) == 0 {
		return
	}
	title := fmt.Sprintf("Subscription %s %s", sub.Name, log.Status)
	var body strings.Builder
	if isError {
		fmt.Fprintf(&body, "Sync failed: %s", log.ErrorOutput)
	} else {
		fmt.Fprintf(&body, "New: %s\nUpdated: %s\nDeleted: %s",
			formatFileList(log.NewFiles), formatFileList(log.UpdatedFiles), formatFileList(log.DeletedFiles))
	}
	if err := s.notifier.Send(ctx, sub.NotificationType, title, body.String()); err != nil {
		slog.Error("subscription: notification failed", "subscription_id", sub.ID, "error", err)
	}
}

// formatFileList renders up to notifyListPreview names, appending an
// ellipsis summarizing how many more were omitted.
func formatFileList(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	if len(names) <= notifyListPreview {
		return strings.Join(names, ", ")
	}
	shown := names[:notifyListPreview]
	return fmt.Sprintf("%s, ... (%d more)", strings.Join(shown, ", "), len(names)-notifyListPreview)
}
