package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/queue"
)

// HandlerFunc processes a job. It should return an error if processing fails.
type HandlerFunc func(ctx context.Context, job queue.Job) error

// StartWorkers starts a pool of workers that process jobs from the queue.
// ctx: context for cancellation (workers will stop when context is cancelled)
// q: the queue to dequeue jobs from
// handler: function to process each job
// workerCount: number of worker goroutines to start
func StartWorkers(ctx context.Context, q queue.Queue, handler HandlerFunc, workerCount int) error {
	log := logger.GetDefault()
	log.Info("starting worker pool", zap.Int("worker_count", workerCount))

	var wg sync.WaitGroup
	wg.Add(workerCount)

	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		go func() {
			defer wg.Done()
			workerLoop(ctx, q, handler, workerID)
		}()
	}

	wg.Wait()
	log.Info("worker pool stopped")
	return nil
}

// workerLoop is the main loop for a single worker.
func workerLoop(ctx context.Context, q queue.Queue, handler HandlerFunc, workerID int) {
	log := logger.GetDefault().With(zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				return
			}
			log.Warn("dequeue error, continuing", zap.Error(err))
			continue
		}

		if err := handler(ctx, job); err != nil {
			log.Error("job handler failed", zap.String("job_type", job.Type), zap.Error(err))
			continue
		}
	}
}
