// Package download mirrors a legacy object tree into the local cache and
// reports whether anything changed since the previous download.
package download

import (
	"context"
	"crypto/md5"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/teranos/regalsync/errors"
	"github.com/teranos/regalsync/source"
)

// RecordFetcher returns raw source records
type RecordFetcher interface {
	FetchRecord(ctx context.Context, pid string) ([]byte, error)
}

// StreamGetter copies the stream at src to the local file dst
type StreamGetter func(ctx context.Context, src, dst string) error

// Result describes one Download call.
type Result struct {
	// Path is the per-PID cache directory handed to the builder
	Path string
	// Downloaded is true when the source was contacted in this call
	Downloaded bool
	// Updated is true when a cache existed and fetched content differs from it
	Updated bool
}

// Downloader fetches records and streams into cacheDir/<pid>/. It keeps no
// per-call state, so one Downloader can serve concurrent workers as long as
// they work on different PIDs.
type Downloader struct {
	cacheDir string
	records  RecordFetcher
	streams  StreamGetter
	logger   *zap.SugaredLogger
}

// Option customizes a Downloader
type Option func(*Downloader)

// WithStreamGetter replaces the go-getter based stream transport
func WithStreamGetter(g StreamGetter) Option {
	return func(d *Downloader) { d.streams = g }
}

// New creates a Downloader
func New(cacheDir string, records RecordFetcher, logger *zap.SugaredLogger, opts ...Option) *Downloader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Downloader{
		cacheDir: cacheDir,
		records:  records,
		streams:  getStream,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download makes sure the tree rooted at pid is cached.
//
// Without force and with an existing cache nothing is fetched. Otherwise the
// root record and every part_of descendant are fetched and compared by MD5
// with what was cached before.
func (d *Downloader) Download(ctx context.Context, pid string, force bool) (Result, error) {
	root := source.CacheDir(d.cacheDir, pid)
	res := Result{Path: root}

	_, statErr := os.Stat(source.RecordPath(root, pid))
	cached := statErr == nil
	if cached && !force {
		d.logger.Debugw("Using cached tree", "pid", pid, "path", root)
		return res, nil
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return res, errors.Wrapf(err, "failed to create cache dir for %s", pid)
	}

	changed, err := d.fetchTree(ctx, root, pid)
	if err != nil {
		return res, err
	}

	res.Downloaded = true
	res.Updated = cached && changed
	d.logger.Debugw("Downloaded tree",
		"pid", pid,
		"updated", res.Updated,
		"first_download", !cached,
	)
	return res, nil
}

// fetchTree walks the part_of hierarchy breadth first. It reports whether
// any record differs from its cached copy. The root record is written only
// after the whole walk succeeded, since its presence marks the tree cached.
func (d *Downloader) fetchTree(ctx context.Context, root, rootPID string) (bool, error) {
	changed := false
	var rootData []byte
	seen := map[string]bool{rootPID: true}
	queue := []string{rootPID}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, errors.Wrap(err, "download cancelled")
		}
		pid := queue[0]
		queue = queue[1:]

		data, err := d.records.FetchRecord(ctx, pid)
		if err != nil {
			if pid != rootPID && errors.IsNotFoundError(err) {
				d.logger.Warnw("Child record missing at source, skipping",
					"pid", pid,
					"root_pid", rootPID,
				)
				continue
			}
			return false, err
		}

		rec, err := source.Parse(data)
		if err != nil {
			if pid == rootPID {
				return false, errors.Wrapf(err, "record %s", pid)
			}
			d.logger.Warnw("Unreadable child record, skipping", "pid", pid, "error", err)
			continue
		}

		path := source.RecordPath(root, pid)
		recordChanged := !sameAsCached(path, data)
		if pid == rootPID {
			rootData = data
		} else if recordChanged {
			if err := writeAtomic(path, data); err != nil {
				return false, err
			}
		}
		changed = changed || recordChanged

		for _, s := range rec.Streams {
			d.fetchStream(ctx, root, pid, s, recordChanged)
		}

		for _, child := range rec.PartPIDs() {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}

	if err := writeIfChanged(source.RecordPath(root, rootPID), rootData); err != nil {
		return false, err
	}
	return changed, nil
}

// fetchStream downloads a stream when its record changed or the file is
// missing. Failures leave the stream absent; the builder tolerates that.
func (d *Downloader) fetchStream(ctx context.Context, root, pid string, s source.StreamRef, recordChanged bool) {
	if s.URL == "" {
		return
	}
	dst := source.StreamPath(root, pid, s)
	if _, err := os.Stat(dst); err == nil && !recordChanged {
		return
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		d.logger.Warnw("Failed to create stream dir", "pid", pid, "error", err)
		return
	}
	if err := d.streams(ctx, s.URL, dst); err != nil {
		d.logger.Warnw("Failed to fetch stream",
			"pid", pid,
			"kind", s.Kind,
			"url", s.URL,
			"error", err,
		)
	}
}

// sameAsCached reports whether path holds data, compared by MD5. A missing
// file never matches.
func sameAsCached(path string, data []byte) bool {
	old, err := os.ReadFile(path)
	return err == nil && md5.Sum(old) == md5.Sum(data)
}

func writeIfChanged(path string, data []byte) error {
	if sameAsCached(path, data) {
		return nil
	}
	return writeAtomic(path, data)
}

// writeAtomic replaces path with data through a temp file and rename
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", path)
	}
	return nil
}

// getStream fetches a single file with go-getter
func getStream(ctx context.Context, src, dst string) error {
	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Mode:    getter.ClientModeFile,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "failed to fetch %s", src)
	}
	return nil
}
