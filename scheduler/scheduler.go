package scheduler

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/convert"
	"github.com/polydawn/lfsmigrate/metrics"
	"github.com/polydawn/lfsmigrate/monitor"
)

// Session is one worker's private view of the source and destination stores.
type Session struct {
	Reader   convert.ObjectReader
	Inserter convert.ObjectInserter
}

type Options struct {
	Threads    int            // Phase one workers.  Values below 1 mean 1.
	NewSession func() Session // Called once per worker, and once for phase two.
	Monitor    lfsmigrate.Monitor
	Metrics    *metrics.Metrics // May be nil.
}

/*
Run converts every node of the graph exactly once, consuming the graph.

Phase one takes every node without dependencies out of the graph and
converts them on a pool of workers.  Phase two peels the rest off in
topological order on the calling goroutine.  Afterwards the memo must
hold exactly one result per original node.

The first failure cancels all remaining work and is returned as is.

May return errors of category:

  - `lfsmigrate.ErrInvariant` -- for a cycle, or a memo that doesn't add up
  - `lfsmigrate.ErrCancelled` -- if ctx ends first
  - anything a task's conversion returns
*/
func Run(ctx context.Context, g *Graph, src TaskSource, opts Options) (_ *Memo, err error) {
	defer RequireErrorHasCategory(&err, lfsmigrate.ErrorCategory(""))
	total := g.Len()
	memo := NewMemo()

	leaves := g.ready()
	var next []convert.TaskKey
	for _, key := range leaves {
		next = append(next, g.remove(key)...)
	}
	if err := runParallel(ctx, leaves, src, memo, opts); err != nil {
		return nil, err
	}
	if err := runSequential(ctx, g, next, src, memo, opts); err != nil {
		return nil, err
	}

	if g.Len() > 0 {
		return nil, ErrorDetailed(lfsmigrate.ErrInvariant, "dependency cycle in task graph",
			map[string]string{"remaining": strconv.Itoa(g.Len())})
	}
	if memo.Len() != total {
		return nil, ErrorDetailed(lfsmigrate.ErrInvariant, "conversion results don't match task count",
			map[string]string{"tasks": strconv.Itoa(total), "results": strconv.Itoa(memo.Len())})
	}
	return memo, nil
}

func runParallel(ctx context.Context, keys []convert.TaskKey, src TaskSource, memo *Memo, opts Options) error {
	const phase = "convert"
	started := time.Now()
	threads := max(opts.Threads, 1)
	monitor.PhaseStarted(opts.Monitor, phase, int64(len(keys)))
	prog := monitor.NewProgress(opts.Monitor, phase, int64(len(keys)))
	defer prog.Close()

	sessions := make(chan Session, threads)
	for i := 0; i < threads; i++ {
		sessions <- opts.NewSession()
	}
	var failed atomic.Bool
	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(threads).
		WithCancelOnError().
		WithFirstError()
	for _, key := range keys {
		if failed.Load() || ctx.Err() != nil {
			break
		}
		p.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s := <-sessions
			defer func() { sessions <- s }()
			if err := convertOne(ctx, src, s, key, memo); err != nil {
				failed.Store(true)
				return err
			}
			opts.Metrics.TaskDone(key.Type.String(), phase)
			prog.Add(1)
			return nil
		})
	}
	err := p.Wait()
	switch {
	case err != nil && lfsmigrate.Categorized(err):
		return err
	case ctx.Err() != nil:
		return Errorf(lfsmigrate.ErrCancelled, "conversion cancelled")
	case err != nil:
		return Errorf(lfsmigrate.ErrInvariant, "conversion failed: %s", err)
	}
	monitor.PhaseDone(opts.Monitor, phase, prog.Done(), time.Since(started))
	return nil
}

func runSequential(ctx context.Context, g *Graph, queue []convert.TaskKey, src TaskSource, memo *Memo, opts Options) error {
	const phase = "convert-sequential"
	started := time.Now()
	monitor.PhaseStarted(opts.Monitor, phase, int64(g.Len()))
	prog := monitor.NewProgress(opts.Monitor, phase, int64(g.Len()))
	defer prog.Close()

	s := opts.NewSession()
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return Errorf(lfsmigrate.ErrCancelled, "conversion cancelled")
		}
		key := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if err := convertOne(ctx, src, s, key, memo); err != nil {
			return err
		}
		opts.Metrics.TaskDone(key.Type.String(), phase)
		prog.Add(1)
		queue = append(queue, g.remove(key)...)
	}
	monitor.PhaseDone(opts.Monitor, phase, prog.Done(), time.Since(started))
	return nil
}

func convertOne(ctx context.Context, src TaskSource, s Session, key convert.TaskKey, memo *Memo) error {
	task, err := src.Task(s.Reader, key)
	if err != nil {
		return err
	}
	id, err := task.Convert(ctx, s.Inserter, memo)
	if err != nil {
		return err
	}
	return memo.Put(key, id)
}
