package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

// TaskSet runs dispatched work on supervised goroutines inside the current process.
// Tasks are detached from the dispatching request and bounded by their own timeout.
type TaskSet struct {
	searches  ports.SearchProcessor
	knowledge ports.KnowledgeProcessor
	timeout   time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewTaskSet(searches ports.SearchProcessor, knowledge ports.KnowledgeProcessor, timeout time.Duration) *TaskSet {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskSet{
		searches:  searches,
		knowledge: knowledge,
		timeout:   timeout,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

func (t *TaskSet) DispatchSearch(_ context.Context, searchID string) error {
	if t.searches == nil {
		return errors.New("search processor is not configured")
	}
	return t.spawn("search", searchID, t.searches.Process)
}

func (t *TaskSet) DispatchKnowledgeDocument(_ context.Context, documentID string) error {
	if t.knowledge == nil {
		return errors.New("knowledge processor is not configured")
	}
	return t.spawn("knowledge", documentID, t.knowledge.ProcessByID)
}

func (t *TaskSet) spawn(kind, id string, fn func(context.Context, string) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.WrapError(domain.ErrTemporary, "dispatch "+kind, errors.New("task set is shutting down"))
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		started := time.Now()

		ctx, cancel := context.WithTimeout(t.baseCtx, t.timeout)
		defer cancel()

		err := runGuarded(ctx, id, fn)
		if err != nil {
			slog.Error("task_failed", "kind", kind, "id", id, "error", err, "duration_ms", time.Since(started).Milliseconds())
			return
		}
		slog.Info("task_completed", "kind", kind, "id", id, "duration_ms", time.Since(started).Milliseconds())
	}()
	return nil
}

func runGuarded(ctx context.Context, id string, fn func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn(ctx, id)
}

// Wait blocks until every dispatched task has returned.
func (t *TaskSet) Wait() {
	t.wg.Wait()
}

// Shutdown stops accepting work and waits for running tasks. When ctx expires first,
// running tasks are cancelled and Shutdown still waits for them to write their status.
func (t *TaskSet) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return ctx.Err()
	}
}
