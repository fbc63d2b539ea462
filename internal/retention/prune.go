// Package retention bounds local disk usage by pruning old batch
// directories. It is the only component allowed to delete them, and it only
// ever touches directories carrying the batch prefix.
package retention

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forgeline/podctl/internal/transfer"
)

// Prune removes old batch directories under localBase, keeping the keep
// newest ranked by modification time. Per-directory removal errors are
// logged and counted as not removed. A negative keep removes nothing;
// keep=0 removes every batch.
func Prune(localBase string, keep int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if keep < 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(localBase)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	type batch struct {
		path    string
		modTime time.Time
	}
	var batches []batch
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), transfer.BatchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		batches = append(batches, batch{
			path:    filepath.Join(localBase, e.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(batches, func(i, j int) bool {
		return batches[i].modTime.After(batches[j].modTime)
	})

	removed := 0
	for _, b := range batches[min(keep, len(batches)):] {
		if err := os.RemoveAll(b.path); err != nil {
			logger.Warn("prune failed", "dir", b.path, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}
