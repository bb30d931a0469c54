// Package dispatch exécute les effets de bord non critiques (push, e-mail,
// temps réel, audit) hors du chemin de la requête.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task est une unité de travail best-effort.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Submitter est l'interface consommée par les services.
type Submitter interface {
	Submit(task Task) bool
}

// Dispatcher est un pool de workers borné. Submit ne bloque jamais :
// si la file est pleine la tâche est abandonnée et journalisée.
type Dispatcher struct {
	tasks   chan Task
	timeout time.Duration
	logger  *zap.Logger

	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	dropped  atomic.Uint64
	failures atomic.Uint64
}

func New(workers, queueSize int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		tasks:   make(chan Task, queueSize),
		timeout: timeout,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) Submit(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.tasks <- task:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("dispatch queue full, task dropped", zap.String("task", task.Name))
		return false
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()
	if err := task.Run(ctx); err != nil {
		d.failures.Add(1)
		d.logger.Warn("dispatch task failed", zap.String("task", task.Name), zap.Error(err))
	}
}

// Stats retourne le nombre de tâches abandonnées et en échec.
func (d *Dispatcher) Stats() (dropped, failures uint64) {
	return d.dropped.Load(), d.failures.Load()
}

// Shutdown vide la file puis attend la fin des workers ou l'expiration du ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inline exécute les tâches immédiatement ; utilisé dans les tests.
type Inline struct{}

func (Inline) Submit(task Task) bool {
	_ = task.Run(context.Background())
	return true
}
