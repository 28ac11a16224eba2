/*
An asynchronous pool in front of a warehouse.Uploader.

Extraction hands objects off with Submit and moves on; the driver joins
with Wait before declaring the migration successful.  The first failed
upload cancels everything still queued, and is what Wait returns.
*/
package uploadq

import (
	"context"
	"io"
	"sync"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sync/errgroup"

	"github.com/polydawn/lfsmigrate"
	"github.com/polydawn/lfsmigrate/metrics"
	"github.com/polydawn/lfsmigrate/warehouse"
)

type Queue struct {
	uploader warehouse.Uploader
	metrics  *metrics.Metrics
	parent   context.Context
	ctx      context.Context
	group    *errgroup.Group
	seen     sync.Map // oid -> struct{}

	mu       sync.Mutex
	firstErr error
}

// New starts a queue running at most `workers` uploads at once.
func New(ctx context.Context, uploader warehouse.Uploader, workers int, m *metrics.Metrics) *Queue {
	if workers < 1 {
		workers = 1
	}
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	return &Queue{
		uploader: uploader,
		metrics:  m,
		parent:   ctx,
		ctx:      gctx,
		group:    group,
	}
}

/*
Submit schedules an upload.  It blocks while all workers are busy.

Each oid is uploaded at most once per queue, no matter how many blobs
share that content.  If an earlier upload already failed, that failure
is returned and nothing is scheduled.
*/
func (q *Queue) Submit(obj warehouse.Object, open func() (io.ReadCloser, error)) error {
	if err := q.err(); err != nil {
		return err
	}
	if _, dup := q.seen.LoadOrStore(obj.Oid, struct{}{}); dup {
		return nil
	}
	q.group.Go(func() error {
		if q.ctx.Err() != nil {
			return nil
		}
		err := q.uploader.Upload(q.ctx, obj, open)
		if err != nil {
			q.metrics.Upload("failed")
			q.setErr(err)
			return err
		}
		q.metrics.Upload("ok")
		return nil
	})
	return nil
}

// Wait blocks until every submitted upload finished, returning the first failure.
func (q *Queue) Wait() error {
	q.group.Wait()
	if err := q.err(); err != nil {
		return err
	}
	if q.parent.Err() != nil {
		return Errorf(lfsmigrate.ErrCancelled, "uploads cancelled")
	}
	return nil
}

func (q *Queue) err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErr
}

func (q *Queue) setErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.firstErr == nil {
		q.firstErr = err
	}
}
