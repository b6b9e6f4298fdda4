package app

import (
	"context"
	"errors"
	"time"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/queue"
	"files_manager/server/fileman/repository"
	"files_manager/server/fileman/worker"
)

// WorkerProcess is a standalone thumbnail consumer. It needs a broker shared
// with the API, so only the amqp queue driver is accepted.
type WorkerProcess struct {
	worker      *worker.Worker
	jobs        queue.Queue
	concurrency int
	closers     closers
}

func NewWorkerProcess(cfg Config) (*WorkerProcess, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueDriver != QueueDriverAMQP {
		return nil, errors.New("thumbnail worker requires QUEUE_DRIVER=amqp")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := &WorkerProcess{concurrency: cfg.WorkerConcurrency}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	ok := false
	defer func() {
		if !ok {
			p.closers.closeAll()
		}
	}()

	pool, err := openPool(ctx, cfg, &p.closers)
	if err != nil {
		return nil, err
	}
	jobs, err := openQueue(cfg, "files_manager-thumbworker", p.concurrency, &p.closers)
	if err != nil {
		return nil, err
	}
	sink, err := newSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.jobs = jobs
	p.worker = worker.New(repository.NewFileRepository(pool), worker.NewImagingThumbnailer(), sink)
	ok = true
	return p, nil
}

// Run consumes until ctx is cancelled. Jobs already started are finished
// before Run returns.
func (p *WorkerProcess) Run(ctx context.Context) {
	commonlog.Infof("start %d thumbnail worker(s)", p.concurrency)
	p.worker.RunN(ctx, p.jobs, p.concurrency)
}

func (p *WorkerProcess) Close() {
	p.closers.closeAll()
}
