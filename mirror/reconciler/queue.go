// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"sync"

	"github.com/gardener/cloud-mirror/api/mirror"

	"github.com/go-logr/logr"
	"k8s.io/client-go/util/workqueue"
)

// maxRetries is the number of rate limited retries of a failed queued pass.
const maxRetries = 3

// Request asks for one pass over a kind in a cloud context.
type Request struct {
	CloudContext string
	Kind         mirror.Kind
}

type requestQueue = workqueue.TypedRateLimitingInterface[Request]

func newRequestQueue() requestQueue {
	return workqueue.NewTypedRateLimitingQueueWithConfig(
		workqueue.DefaultTypedControllerRateLimiter[Request](),
		workqueue.TypedRateLimitingQueueConfig[Request]{},
	)
}

// processNext handles one request and reports whether the queue is still running.
func processNext(q requestQueue, handle func(Request) error) bool {
	req, shutdown := q.Get()
	if shutdown {
		return false
	}
	defer q.Done(req)
	if err := handle(req); err != nil && q.NumRequeues(req) < maxRetries {
		q.AddRateLimited(req)
		return true
	}
	q.Forget(req)
	return true
}

// runWorkers drains q with the given number of workers. If drain is set the queue is shut down once it ran empty,
// otherwise the workers run until someone else shuts the queue down.
func runWorkers(workers int, q requestQueue, handle func(Request) error, drain bool) {
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for processNext(q, handle) {
			}
		})
	}
	if drain {
		q.ShutDownWithDrain()
	}
	wg.Wait()
}

// Enqueue requests a pass over every selected kind of cloudContext. Requests identical to a pending one are dropped.
func (r *Reconciler) Enqueue(cloudContext string) {
	for _, d := range r.descriptors {
		r.queue.Add(Request{CloudContext: cloudContext, Kind: d.Kind()})
	}
	queueDepth.Set(float64(r.queue.Len()))
}

// Start drains the queue fed by Enqueue until ctx is cancelled. Failed passes are retried with backoff.
// A Reconciler can be started only once.
func (r *Reconciler) Start(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)
	log.Info("Starting reconcile workers", "workers", r.workers, "kinds", len(r.descriptors))
	go func() {
		<-ctx.Done()
		r.queue.ShutDown()
	}()
	runWorkers(r.workers, r.queue, func(req Request) error {
		queueDepth.Set(float64(r.queue.Len()))
		_, err := r.Reconcile(ctx, req.Kind, req.CloudContext, mirror.ListParams{}, r.clearStale)
		if err != nil {
			log.Error(err, "pass failed", "kind", req.Kind, "cloudContext", req.CloudContext, "retries", r.queue.NumRequeues(req))
		}
		return err
	}, false)
	log.Info("Reconcile workers stopped")
	return nil
}
