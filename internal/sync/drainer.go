package sync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vecindapp/portalsync/internal/model"
	"github.com/vecindapp/portalsync/internal/queue"
)

// Drainer makes one pass over the sync queue per invocation, re-attempting
// each job in enqueue order. A non-reentrant mutex serializes drains: two
// concurrent passes over the same queue would each write back a remaining
// set that omits the other's progress.
type Drainer struct {
	orch  *Orchestrator
	auth  Authenticator
	queue queue.Store
	log   *zap.Logger

	mu sync.Mutex
}

// NewDrainer wires a drainer over the shared orchestrator and queue.
func NewDrainer(orch *Orchestrator, auth Authenticator, q queue.Store, log *zap.Logger) *Drainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Drainer{orch: orch, auth: auth, queue: q, log: log}
}

// Drain re-attempts every queued job once, oldest first, and persists the
// survivors. Auth is refreshed once up front so a single login serves the
// whole batch; local-only jobs proceed even when that refresh fails.
func (d *Drainer) Drain(ctx context.Context, email string) (processed, remaining int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	jobs, err := d.queue.All()
	if err != nil {
		return 0, 0, err
	}
	if len(jobs) == 0 {
		return 0, 0, nil
	}

	if _, authErr := d.auth.EnsureAuth(ctx, email); authErr != nil {
		d.log.Warn("drain: auth refresh failed, remote jobs will stay queued", zap.Error(authErr))
	}

	var survivors []model.Job
	for _, job := range jobs {
		if execErr := d.orch.Execute(ctx, job); execErr != nil {
			job.Attempts++
			job.LastError = execErr.Error()
			survivors = append(survivors, job)
			d.log.Info("drain: job failed",
				zap.String("job", job.ID.String()),
				zap.String("type", string(job.Type)),
				zap.Int("attempts", job.Attempts),
				zap.Error(execErr),
			)
			continue
		}
		processed++
		d.log.Info("drain: job completed",
			zap.String("job", job.ID.String()),
			zap.String("type", string(job.Type)),
		)
	}

	if err := d.queue.Replace(survivors); err != nil {
		return processed, len(survivors), err
	}
	return processed, len(survivors), nil
}
