package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

type WorkerPool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool // thread-safe value
	ctx       context.Context
	cancel    context.CancelFunc
	log       zerolog.Logger
}

func NewWorkerPool(size, queue int, log zerolog.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	wp := &WorkerPool{
		taskQueue: make(chan Task, queue),
		ctx:       ctx,
		cancel:    cancel,
		log:       log,
	}

	// Start the workers
	for range size {
		wp.wg.Add(1) // add to WaitGroup
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done() // signal when worker finished
	for task := range wp.taskQueue {
		if err := task(wp.ctx); err != nil { // run task
			wp.log.Warn().Err(err).Msg("worker task failed")
		}
	}
}

// Submit queues t and reports whether it was accepted. Tasks are dropped
// when the queue is full or the pool is shutting down.
func (wp *WorkerPool) Submit(t Task) bool {
	if wp.isClosing.Load() {
		wp.log.Warn().Msg("task submitted during shutdown, dropping")
		return false
	}
	select {
	case wp.taskQueue <- t: // send task to worker pool
		return true
	default:
		wp.log.Warn().Msg("task queue full, dropping task")
		return false
	}
}

// Shutdown closes the queue and waits for workers to finish
func (wp *WorkerPool) Shutdown() {
	if wp.isClosing.Swap(true) {
		return
	}
	close(wp.taskQueue) // Stop accepting new tasks
	wp.wg.Wait()        // Wait for all active workers to finish tasks
	wp.cancel()
}
