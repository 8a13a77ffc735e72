package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool fans queued tasks out to a fixed set of workers. Each worker handles
// one task at a time, so a single project is always processed sequentially
// while different projects run in parallel.
type Pool struct {
	queue    *Queue
	runner   *Runner
	archiver *Archiver
	size     int
	logger   *zap.Logger
}

// NewPool wires a Pool. size defaults to 2.
func NewPool(queue *Queue, runner *Runner, archiver *Archiver, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		queue:    queue,
		runner:   runner,
		archiver: archiver,
		size:     size,
		logger:   logger,
	}
}

// Run starts the workers and blocks until the context finishes and all
// workers drain.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) work(ctx context.Context, id int) {
	for {
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			// Context canceled or queue closed; the worker is done.
			return
		}
		p.logger.Info("task started",
			zap.Int("worker", id),
			zap.String("kind", string(task.Kind)),
			zap.String("project_id", task.ProjectID))

		switch task.Kind {
		case TaskResolve:
			err = p.runner.ProcessProject(ctx, task.ProjectID, task.ProjectName)
		case TaskArchive:
			err = p.archiver.BuildArchive(ctx, task.JobID, task.ProjectID, task.ProjectName)
		default:
			p.logger.Error("unknown task kind", zap.String("kind", string(task.Kind)))
			continue
		}
		if err != nil {
			p.logger.Warn("task failed",
				zap.Int("worker", id),
				zap.String("kind", string(task.Kind)),
				zap.String("project_id", task.ProjectID),
				zap.Error(err))
			continue
		}
		p.logger.Info("task finished",
			zap.Int("worker", id),
			zap.String("kind", string(task.Kind)),
			zap.String("project_id", task.ProjectID))
	}
}
