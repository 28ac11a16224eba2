/*
The migration driver: wires the stores, the converter, and the
scheduler together for one run, then points the destination's refs
at the converted history.
*/
package migrate

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/contentstore"
	"github.com/polydawn/lfsmigrate/convert"
	"github.com/polydawn/lfsmigrate/gitstore"
	"github.com/polydawn/lfsmigrate/hashcache"
	"github.com/polydawn/lfsmigrate/metrics"
	"github.com/polydawn/lfsmigrate/monitor"
	"github.com/polydawn/lfsmigrate/pathmatch"
	"github.com/polydawn/lfsmigrate/scheduler"
	"github.com/polydawn/lfsmigrate/warehouse"
	"github.com/polydawn/lfsmigrate/warehouse/impl/kvfs"
	"github.com/polydawn/lfsmigrate/warehouse/impl/kvhttp"
	"github.com/polydawn/lfsmigrate/warehouse/impl/kvs3"
	"github.com/polydawn/lfsmigrate/warehouse/uploadq"
)

type Options struct {
	Source      string
	Destination string // Removed and recreated.
	Patterns    []string
	Threads     int
	CachePath   string // Defaults to "<Destination>/lfs/cache.db".

	LFSURL        string         // Upload to this Git LFS server, if set.
	LFS           kvhttp.Options // Ignored unless LFSURL is set.
	S3            *kvs3.Config   // Upload to this bucket, if set.  Exclusive with LFSURL.
	UploadWorkers int

	Monitor     lfsmigrate.Monitor
	Metrics     *metrics.Metrics // May be nil.
	MetricsFile string           // Write a prometheus textfile here at the end, if set.
}

type Result struct {
	Objects  int
	Refs     []lfsmigrate.RefUpdate
	Duration time.Duration
}

/*
Run migrates the repository at opts.Source into a fresh repository at
opts.Destination.

Patterns and uploader settings are checked before anything on disk is
touched.  A failed run leaves a partial destination behind; the hash
cache stays valid and makes the next attempt cheaper.

May return errors of category:

  - `lfsmigrate.ErrUsage` -- for bad options, or an unopenable source
  - `lfsmigrate.ErrPattern` -- for a pattern that doesn't compile
  - `lfsmigrate.ErrRepoCorrupt` -- if the source can't be read
  - `lfsmigrate.ErrLocalIO` -- if the destination or staging area can't be written
  - `lfsmigrate.ErrCacheIO` -- if the hash cache fails
  - `lfsmigrate.ErrUpload` -- if an upload fails
  - `lfsmigrate.ErrInvariant` -- if the conversion comes out inconsistent
  - `lfsmigrate.ErrCancelled` -- if ctx ends first
*/
func Run(ctx context.Context, opts Options) (_ Result, err error) {
	defer RequireErrorHasCategory(&err, lfsmigrate.ErrorCategory(""))
	started := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Metrics == nil && opts.MetricsFile != "" {
		opts.Metrics = metrics.New()
	}

	// Everything that can be checked without side effects goes first.
	if _, err := pathmatch.NewMatcher(opts.Patterns, true); err != nil {
		return Result{}, err
	}
	uploader, err := newUploader(opts)
	if err != nil {
		return Result{}, err
	}
	if opts.Destination == "" {
		return Result{}, Errorf(lfsmigrate.ErrUsage, "destination path is required")
	}
	src, err := gitstore.OpenSource(opts.Source)
	if err != nil {
		return Result{}, err
	}
	if err := checkDisjoint(src.GitDir(), opts.Destination); err != nil {
		return Result{}, err
	}

	dst, err := gitstore.CreateDestination(opts.Destination)
	if err != nil {
		return Result{}, err
	}
	lfsDir := filepath.Join(dst.GitDir(), "lfs")
	cachePath := opts.CachePath
	if cachePath == "" {
		cachePath = filepath.Join(lfsDir, "cache.db")
	}
	cache, err := hashcache.Open(cachePath)
	if err != nil {
		return Result{}, err
	}
	defer cache.Close()
	local, err := kvfs.NewController(lfsDir)
	if err != nil {
		return Result{}, err
	}
	var queue *uploadq.Queue
	var uploads contentstore.UploadQueue
	if uploader != nil {
		queue = uploadq.New(ctx, uploader, opts.UploadWorkers, opts.Metrics)
		uploads = queue
	}
	conv, err := convert.New(opts.Patterns, contentstore.New(local, cache, uploads, opts.Metrics))
	if err != nil {
		return Result{}, err
	}
	monitor.Log(opts.Monitor, lfsmigrate.LogInfo, "moving matching files to LFS",
		[2]string{"patterns", strings.Join(conv.Patterns(), " ")})

	refs, err := src.References()
	if err != nil {
		return Result{}, err
	}
	var roots []convert.TaskKey
	for _, ref := range refs {
		if ref.Type() == plumbing.HashReference {
			roots = append(roots, convert.NewTaskKey(convert.Simple, "", ref.Hash()))
		}
	}

	graph, err := scheduler.Discover(ctx, conv, src.Reader(), roots, opts.Monitor)
	if err != nil {
		return Result{}, err
	}
	memo, err := scheduler.Run(ctx, graph, conv, scheduler.Options{
		Threads: opts.Threads,
		NewSession: func() scheduler.Session {
			return scheduler.Session{
				Reader:   src.Session().Reader(),
				Inserter: dst.Session().Inserter(),
			}
		},
		Monitor: opts.Monitor,
		Metrics: opts.Metrics,
	})
	if err != nil {
		if queue != nil {
			cancel()
			queue.Wait()
		}
		return Result{}, err
	}
	if queue != nil {
		monitor.PhaseStarted(opts.Monitor, "upload", -1)
		if err := queue.Wait(); err != nil {
			monitor.UploadFailed(opts.Monitor, err)
			return Result{}, err
		}
	}

	updates, err := rewriteRefs(dst, refs, memo, opts.Monitor)
	if err != nil {
		return Result{}, err
	}
	if opts.MetricsFile != "" {
		if err := opts.Metrics.WriteTextfile(opts.MetricsFile); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Objects:  memo.Len(),
		Refs:     updates,
		Duration: time.Since(started),
	}, nil
}

func newUploader(opts Options) (warehouse.Uploader, error) {
	switch {
	case opts.LFSURL != "" && opts.S3 != nil:
		return nil, Errorf(lfsmigrate.ErrUsage, "choose either an LFS server or an S3 bucket, not both")
	case opts.LFSURL != "":
		return kvhttp.NewController(opts.LFSURL, opts.LFS)
	case opts.S3 != nil:
		return kvs3.NewController(*opts.S3)
	default:
		return nil, nil
	}
}

// The destination is wiped, so it must not overlap the source.
func checkDisjoint(srcGitDir, dest string) error {
	destAbs, err := filepath.Abs(dest)
	if err != nil {
		return Errorf(lfsmigrate.ErrUsage, "invalid destination path: %s", err)
	}
	for _, protected := range []string{srcGitDir, filepath.Dir(srcGitDir)} {
		if destAbs == protected || strings.HasPrefix(protected, destAbs+string(filepath.Separator)) {
			return ErrorDetailed(lfsmigrate.ErrUsage, "destination would overwrite the source repository",
				map[string]string{"source": srcGitDir, "destination": destAbs})
		}
	}
	return nil
}

/*
Points every hash ref at its converted object.  Symbolic refs are
copied as they are.
*/
func rewriteRefs(dst *gitstore.Repository, refs []*plumbing.Reference, memo *scheduler.Memo, mon lfsmigrate.Monitor) ([]lfsmigrate.RefUpdate, error) {
	updates := make([]lfsmigrate.RefUpdate, 0, len(refs))
	for _, ref := range refs {
		var update lfsmigrate.RefUpdate
		switch ref.Type() {
		case plumbing.HashReference:
			id, err := memo.Resolve(convert.NewTaskKey(convert.Simple, "", ref.Hash()))
			if err != nil {
				return nil, err
			}
			if err := dst.SetReference(plumbing.NewHashReference(ref.Name(), id)); err != nil {
				return nil, err
			}
			update = lfsmigrate.RefUpdate{Name: ref.Name().String(), Old: ref.Hash().String(), New: id.String()}
		case plumbing.SymbolicReference:
			if err := dst.SetReference(ref); err != nil {
				return nil, err
			}
			update = lfsmigrate.RefUpdate{Name: ref.Name().String(), Old: ref.Target().String(), New: ref.Target().String()}
		default:
			continue
		}
		monitor.RefRewritten(mon, update)
		updates = append(updates, update)
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Name < updates[j].Name })
	return updates, nil
}
