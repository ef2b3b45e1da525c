// Package scheduler drives each module's cycle on its own cooldown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"codeberg.org/welterm/udsd/internal/logger"
)

// Task is one periodically executed module cycle
type Task struct {
	Name     string
	Cooldown time.Duration
	Run      func(ctx context.Context)
}

// Scheduler runs every task on an independent loop. A slow or
// panicking task never delays the others.
type Scheduler struct {
	tasks []Task
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Add(tasks ...Task) {
	s.tasks = append(s.tasks, tasks...)
}

// Run blocks until ctx is cancelled and every task loop has exited.
// Each task runs immediately, then sleeps its cooldown between runs.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			loop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func loop(ctx context.Context, task Task) {
	logger.Debug().Str("task", task.Name).Dur("cooldown", task.Cooldown).Msg("Task loop started")

	for {
		if ctx.Err() != nil {
			return
		}

		runOnce(ctx, task)

		timer := time.NewTimer(task.Cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce confines a panic to the cycle that raised it; the loop
// carries on with the next cycle.
func runOnce(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("task", task.Name).Interface("panic", r).Msg("Task cycle panicked")
		}
	}()

	start := time.Now()
	task.Run(ctx)
	logger.Debug().Str("task", task.Name).Dur("elapsed", time.Since(start)).Msg("Task cycle finished")
}
