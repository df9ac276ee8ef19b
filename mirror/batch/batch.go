// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package batch executes independent tasks in parallel followed by a single finish task.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/gardener/cloud-mirror/api/mirror"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

type namedTask struct {
	name string
	task mirror.Task
}

var _ mirror.TaskQueue = (*Queue)(nil)

// Queue is a single-use mirror.TaskQueue running at most parallelism tasks at a time.
// A failing task neither cancels its siblings nor prevents the finish task from running.
type Queue struct {
	parallelism int
	tasks       []namedTask
	finish      mirror.Task
}

// New returns an empty Queue. A parallelism below one runs tasks sequentially.
func New(parallelism int) *Queue {
	return &Queue{parallelism: max(parallelism, 1)}
}

// Enqueue adds a task.
func (q *Queue) Enqueue(name string, task mirror.Task) {
	q.tasks = append(q.tasks, namedTask{name: name, task: task})
}

// Finish sets the task run once every enqueued task completed.
func (q *Queue) Finish(task mirror.Task) {
	q.finish = task
}

// Len returns the number of enqueued tasks.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Run executes all tasks, then the finish task, and blocks until both stages completed.
func (q *Queue) Run(ctx context.Context) (result mirror.BatchResult) {
	log := logr.FromContextOrDiscard(ctx)
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(q.parallelism)
	for _, t := range q.tasks {
		g.Go(func() error {
			err := runTask(ctx, t.task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error(err, "batch task failed", "task", t.name)
				result.Failed = append(result.Failed, fmt.Errorf("task %q: %w", t.name, err))
				return nil
			}
			result.Succeeded++
			return nil
		})
	}
	_ = g.Wait()
	if q.finish != nil {
		if result.FinishErr = runTask(ctx, q.finish); result.FinishErr != nil {
			log.Error(result.FinishErr, "batch finish task failed")
		}
	}
	log.V(3).Info("batch completed", "succeeded", result.Succeeded, "failed", len(result.Failed))
	return
}

func runTask(ctx context.Context, task mirror.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	if err = ctx.Err(); err != nil {
		return
	}
	return task(ctx)
}
