package worker

import (
	"sync"

	"go.uber.org/zap"

	"tenancy/internal/metrics"
)

type Job func()

// Pool runs jobs on a fixed number of goroutines. Table scans fan out over
// it so one slow table does not serialize a whole detection pass.
type Pool struct {
	name    string
	jobs    chan Job
	stopped chan struct{}
	wg      sync.WaitGroup
	workers int
	logger  *zap.Logger
}

func NewPool(name string, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		name:    name,
		jobs:    make(chan Job),
		stopped: make(chan struct{}),
		workers: workers,
		logger:  logger,
	}
}

func (p *Pool) Start() {
	p.logger.Info("starting worker pool",
		zap.String("pool", p.name), zap.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			metrics.WorkerActive.WithLabelValues(p.name).Add(1)
			defer metrics.WorkerActive.WithLabelValues(p.name).Sub(1)

			for {
				select {
				case <-p.stopped:
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job()
					metrics.JobsProcessed.WithLabelValues(p.name).Inc()
				}
			}
		}()
	}
}

// Submit blocks until a worker picks the job up or the pool stops. It
// reports whether the job was accepted.
func (p *Pool) Submit(job Job) bool {
	select {
	case <-p.stopped:
		return false
	case p.jobs <- job:
		return true
	}
}

func (p *Pool) Stop() {
	close(p.stopped)
	p.wg.Wait()
	p.logger.Info("worker pool stopped", zap.String("pool", p.name))
}
