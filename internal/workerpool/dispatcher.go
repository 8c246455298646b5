package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task 上行命令任务
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher 单 worker 的有序命令分发器
// 提交方不等待执行结果，任务严格按提交顺序执行，失败通过回调上报
type Dispatcher struct {
	queue   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger
	onError func(name string, err error)

	mu     sync.RWMutex
	closed bool

	executed atomic.Int64
	failed   atomic.Int64
}

// New 创建分发器
// queueSize: 任务队列大小
// timeout: 单个任务超时
func New(queueSize int, timeout time.Duration, logger *slog.Logger, onError func(name string, err error)) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		logger:  logger,
		onError: onError,
	}

	d.wg.Add(1)
	go d.worker()

	d.logger.Info("Command dispatcher started",
		"queue_size", queueSize,
		"timeout", timeout)

	return d
}

// worker 按顺序执行任务，关闭后会先执行完队列中剩余任务
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for task := range d.queue {
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Task panic recovered",
					"task", task.Name,
					"panic", r)
				err = errPanic
			}
		}()
		err = task.Run(ctx)
	}()

	d.executed.Add(1)
	if err != nil {
		d.failed.Add(1)
		d.logger.Warn("Command failed",
			"task", task.Name,
			"error", err)
		if d.onError != nil {
			d.onError(task.Name, err)
		}
	}
}

// Submit 提交任务，队列满时阻塞直到有空位或分发器关闭
func (d *Dispatcher) Submit(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case <-d.ctx.Done():
		return false
	case d.queue <- task:
		return true
	}
}

// TrySubmit 尝试提交任务，队列满了立即返回 false
func (d *Dispatcher) TrySubmit(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- task:
		return true
	default:
		return false
	}
}

// Pending 队列中等待执行的任务数
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Stats 已执行和失败的任务数
func (d *Dispatcher) Stats() (executed, failed int64) {
	return d.executed.Load(), d.failed.Load()
}

// Shutdown 优雅关闭，等待已提交任务执行完成
func (d *Dispatcher) Shutdown() {
	d.cancel()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Command dispatcher shutdown completed")
}
