// Package watch imports device backups dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/trevor-commits/proactive-outreach-crm/internal/ingest"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
)

const (
	MessagesFile = "sms.db"
	CallsFile    = "CallHistory.storedata"
)

// Importer ingests one archive pair.
type Importer interface {
	Import(ctx context.Context, ownerID, primaryPath, secondaryPath string) (ingest.ImportResult, error)
}

type Options struct {
	Debounce          time.Duration
	HeartbeatInterval time.Duration
	RestartBackoff    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.RestartBackoff <= 0 {
		o.RestartBackoff = 2 * time.Second
	}
	return o
}

// Watcher imports sms.db (and CallHistory.storedata when present) from Dir
// for one owner, then removes the files whether or not the import worked.
type Watcher struct {
	dir      string
	ownerID  string
	importer Importer
	status   *Status
	opts     Options

	mu sync.Mutex
}

// New returns a watcher over dir. status may be nil.
func New(dir, ownerID string, importer Importer, status *Status, opts Options) *Watcher {
	return &Watcher{dir: dir, ownerID: ownerID, importer: importer, status: status, opts: opts.withDefaults()}
}

// Run watches until ctx ends, restarting the filesystem watch with capped
// backoff when it fails.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create drop directory: %w", err)
	}
	log := logging.From(ctx).With("dir", w.dir)
	backoff := w.opts.RestartBackoff
	const maxBackoff = 30 * time.Second

	for {
		w.status.set(ctx, statusRunning, nil)
		err := w.watchOnce(ctx)
		if ctx.Err() != nil {
			w.status.set(context.WithoutCancel(ctx), statusStopped, nil)
			return nil
		}
		w.status.set(ctx, statusError, err)
		w.status.incrementRestarts(ctx)
		log.Warn("watcher stopped, restarting", "error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			w.status.set(context.WithoutCancel(ctx), statusStopped, nil)
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (w *Watcher) watchOnce(ctx context.Context) error {
	log := logging.From(ctx).With("dir", w.dir)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	stopHeartbeat := startHeartbeat(w.opts.HeartbeatInterval, func() { w.status.beat(ctx) })
	defer stopHeartbeat()

	log.Info("watching for device backups", "debounce", w.opts.Debounce)
	w.runScan(ctx)

	// pending counts armed or running debounce timers.
	var (
		pending sync.WaitGroup
		timer   *time.Timer
	)
	defer func() {
		if timer != nil && timer.Stop() {
			pending.Done()
		}
		pending.Wait()
	}()
	trigger := func() {
		if timer != nil && timer.Stop() {
			pending.Done()
		}
		pending.Add(1)
		timer = time.AfterFunc(w.opts.Debounce, func() {
			defer pending.Done()
			w.runScan(ctx)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watch events closed")
			}
			if isBackupFile(ev.Name) && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watch errors closed")
			}
			log.Warn("watch error", "error", err)
		}
	}
}

func isBackupFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, MessagesFile) || strings.HasPrefix(base, CallsFile)
}

func (w *Watcher) runScan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := w.Scan(ctx); err != nil {
		logging.From(ctx).Error("backup import failed", "dir", w.dir, "error", err)
	}
}

// Scan imports the archives currently in the directory. It reports false
// when there was nothing to import. Processed files are removed on both
// success and failure.
func (w *Watcher) Scan(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	primary := filepath.Join(w.dir, MessagesFile)
	if _, err := os.Stat(primary); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", primary, err)
	}
	secondary := filepath.Join(w.dir, CallsFile)
	if _, err := os.Stat(secondary); err != nil {
		secondary = ""
	}

	log := logging.From(ctx).With("owner", w.ownerID)
	res, err := w.importer.Import(ctx, w.ownerID, primary, secondary)
	w.cleanup(ctx, primary, secondary)
	w.status.markScan(ctx, err)
	if err != nil {
		return true, err
	}
	log.Info("imported dropped backup", "messages", res.Messages, "calls", res.Calls,
		"matched", res.Matched, "unmatched", res.Unmatched)
	return true, nil
}

func (w *Watcher) cleanup(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		for _, f := range []string{p, p + "-wal", p + "-shm"} {
			if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logging.From(ctx).Warn("failed to remove processed file", "path", f, "error", err)
			}
		}
	}
}

func startHeartbeat(interval time.Duration, beat func()) func() {
	if interval <= 0 || beat == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		beat()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				beat()
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}
