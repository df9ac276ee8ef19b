// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package reconciler keeps the mirror store in line with the remote clusters.
package reconciler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/batch"
	"github.com/gardener/cloud-mirror/mirror/kinds"
	"github.com/gardener/cloud-mirror/mirror/lock"
	"github.com/gardener/cloud-mirror/mirror/mapper"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/utils/clock"
)

var _ mirror.Refresher = (*Reconciler)(nil)

// Args is the set of collaborators and settings of a Reconciler.
type Args struct {
	// Store holds the mirrored records.
	Store mirror.Store
	// Clients hands out the remote clients per cloud context.
	Clients mirror.ClientProvider
	// Locks serializes passes over the same kind and cloud context.
	Locks mirror.LockService
	// Clock is the time source of the mappers.
	Clock clock.PassiveClock
	// Kinds restricts ReconcileAll to the given kinds. Every supported kind is reconciled if empty.
	Kinds []mirror.Kind
	// Workers is the number of passes run concurrently by ReconcileAll and Start.
	Workers int
	// BatchParallelism bounds the number of objects mapped in parallel in batch mode.
	BatchParallelism int
	// ClearStale tells whether queued passes delete the records of vanished remote objects.
	ClearStale bool
	// NewTaskQueue creates the task queue of one batch mode pass. Defaults to batch.New.
	NewTaskQueue func(parallelism int) mirror.TaskQueue
}

// UpdateArgs describes one reconciliation pass.
type UpdateArgs struct {
	// CloudContext is the cluster being mirrored.
	CloudContext string
	// Descriptor tells how to list and map the kind.
	Descriptor kinds.Descriptor
	// Params narrow the remote listing.
	Params mirror.ListParams
	// ClearStale deletes the records whose remote object was not listed.
	ClearStale bool
	// BatchMode maps each object as an independent task and defers stale deletion to the finish task.
	BatchMode bool
	// Extra is handed to the mapper of every object.
	Extra mirror.ExtraData
}

// Reconciler runs reconciliation passes. It is safe for concurrent use.
type Reconciler struct {
	store            mirror.Store
	clients          mirror.ClientProvider
	locks            mirror.LockService
	clock            clock.PassiveClock
	descriptors      []kinds.Descriptor
	workers          int
	batchParallelism int
	clearStale       bool
	newTaskQueue     func(parallelism int) mirror.TaskQueue
	queue            requestQueue
}

// New creates a Reconciler.
func New(args Args) (*Reconciler, error) {
	descriptors, err := kinds.Select(args.Kinds)
	if err != nil {
		return nil, err
	}
	r := &Reconciler{
		store:            args.Store,
		clients:          args.Clients,
		locks:            args.Locks,
		clock:            args.Clock,
		descriptors:      descriptors,
		workers:          max(args.Workers, 1),
		batchParallelism: max(args.BatchParallelism, 1),
		clearStale:       args.ClearStale,
		newTaskQueue:     args.NewTaskQueue,
		queue:            newRequestQueue(),
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	if r.newTaskQueue == nil {
		r.newTaskQueue = func(parallelism int) mirror.TaskQueue { return batch.New(parallelism) }
	}
	return r, nil
}

// Kinds returns the kinds reconciled by ReconcileAll.
func (r *Reconciler) Kinds() []mirror.Kind {
	out := make([]mirror.Kind, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.Kind())
	}
	return out
}

// Reconcile runs one pass over kind in cloudContext, fetching the extra data the kind needs first.
// It returns false without error if the pass did not run because another pass holds the lock or the listing failed.
func (r *Reconciler) Reconcile(ctx context.Context, kind mirror.Kind, cloudContext string, params mirror.ListParams, clearStale bool) (bool, error) {
	desc, err := kinds.Get(kind)
	if err != nil {
		return false, err
	}
	rc, err := r.clients.ResourceClient(cloudContext)
	if err != nil {
		return false, err
	}
	extra, err := r.enrich(ctx, cloudContext, desc, rc)
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "cannot fetch extra data, skipping pass", "kind", kind, "cloudContext", cloudContext)
		passesTotal.WithLabelValues(string(kind), cloudContext, outcomeSkipped).Inc()
		return false, nil
	}
	return r.UpdateEntities(ctx, UpdateArgs{
		CloudContext: cloudContext,
		Descriptor:   desc,
		Params:       params,
		ClearStale:   clearStale,
		BatchMode:    desc.BatchMode,
		Extra:        extra,
	})
}

// passStats counts what a pass did to the store. Counters are updated from batch tasks.
type passStats struct {
	created, updated, failed, deleted atomic.Int64
}

// UpdateEntities lists the remote objects described by args, maps each of them onto its record and, if asked to,
// deletes the records of objects which no longer exist remotely.
//
// A pass holds the lock of its kind and cloud context for its whole duration. If the lock is held elsewhere or the
// listing fails, UpdateEntities returns false and leaves the store untouched. Outside batch mode the first mapping error
// aborts the pass before any record is deleted. In batch mode mapping errors are logged and counted and stale records
// are deleted once every object task completed.
func (r *Reconciler) UpdateEntities(ctx context.Context, args UpdateArgs) (ran bool, err error) {
	kind := args.Descriptor.Kind()
	log := logr.FromContextOrDiscard(ctx).WithValues("kind", kind, "cloudContext", args.CloudContext)
	rc, err := r.clients.ResourceClient(args.CloudContext)
	if err != nil {
		return false, err
	}

	lockName := lock.Name(args.CloudContext, kind)
	if !r.locks.TryAcquire(ctx, lockName) {
		log.V(2).Info("pass already running elsewhere, skipping", "lock", lockName)
		passesTotal.WithLabelValues(string(kind), args.CloudContext, outcomeSkipped).Inc()
		return false, nil
	}
	defer r.locks.Release(ctx, lockName)

	start := time.Now()
	var stats passStats
	defer func() {
		outcome := outcomeSuccess
		switch {
		case err != nil:
			outcome = outcomeFailed
		case !ran:
			outcome = outcomeSkipped
		}
		passesTotal.WithLabelValues(string(kind), args.CloudContext, outcome).Inc()
		if ran {
			passDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		}
		stats.report(string(kind), args.CloudContext)
	}()

	objs, err := rc.List(ctx, kind, args.Params)
	if err != nil {
		log.Error(err, "listing failed, leaving mirror untouched")
		return false, nil
	}
	existing, err := r.store.LoadAll(ctx, kind, args.CloudContext)
	if err != nil {
		return false, fmt.Errorf("%w: %s in %q: %w", mirror.ErrLoadRecord, kind, args.CloudContext, err)
	}
	stale, clearStale := seedStale(ctx, existing, args.Params, args.ClearStale)

	m := mapper.New(r.store, r.clock, args.Descriptor.Table)
	mapOne := func(ctx context.Context, raw map[string]any) error {
		outcome, err := m.Map(ctx, args.CloudContext, raw, args.Extra)
		if err != nil {
			stats.failed.Add(1)
			return err
		}
		switch outcome {
		case mapper.Created:
			stats.created.Add(1)
		case mapper.Updated:
			stats.updated.Add(1)
		}
		return nil
	}
	deleteStale := func(ctx context.Context) error {
		if !clearStale || len(stale) == 0 {
			return nil
		}
		recs := slices.SortedFunc(maps.Values(stale), func(a, b *mirror.Record) int { return cmp.Compare(a.Key(), b.Key()) })
		n, err := r.store.DeleteMany(ctx, recs)
		stats.deleted.Add(int64(n))
		if err != nil {
			return fmt.Errorf("%w: %s in %q: %w", mirror.ErrDeleteRecords, kind, args.CloudContext, err)
		}
		log.V(2).Info("deleted stale records", "count", n)
		return nil
	}

	if args.BatchMode {
		q := r.newTaskQueue(r.batchParallelism)
		for _, raw := range objs {
			key := objectKey(log, raw, args.Descriptor)
			delete(stale, key)
			q.Enqueue(key, func(ctx context.Context) error { return mapOne(ctx, raw) })
		}
		q.Finish(deleteStale)
		res := q.Run(ctx)
		log.V(2).Info("batch pass completed", "objects", len(objs), "mapped", res.Succeeded, "failed", len(res.Failed))
		return true, res.FinishErr
	}

	for _, raw := range objs {
		key := objectKey(log, raw, args.Descriptor)
		delete(stale, key)
		if err = mapOne(ctx, raw); err != nil {
			return false, err
		}
	}
	if err = deleteStale(ctx); err != nil {
		return true, err
	}
	log.V(2).Info("pass completed", "objects", len(objs), "created", stats.created.Load(), "updated", stats.updated.Load(), "deleted", stats.deleted.Load())
	return true, nil
}

// objectKey returns the record key of raw. An object without name is mirrored under the empty name.
func objectKey(log logr.Logger, raw map[string]any, desc kinds.Descriptor) string {
	name, namespace := mapper.ObjectMeta(raw, desc.Namespaced())
	if name == "" {
		log.V(4).Info("remote object without name", "namespace", namespace)
	}
	return mirror.RecordKey(name, namespace)
}

// seedStale returns the existing records that the listing described by params covers, keyed by record key.
// Records outside a namespace or label scoped listing are never candidates. A field selector cannot be evaluated
// against records, so stale clearing is turned off for field selected listings.
func seedStale(ctx context.Context, existing []*mirror.Record, params mirror.ListParams, clearStale bool) (map[string]*mirror.Record, bool) {
	stale := make(map[string]*mirror.Record, len(existing))
	if !clearStale {
		return stale, false
	}
	log := logr.FromContextOrDiscard(ctx)
	if params.FieldSelector != "" {
		log.V(2).Info("field selected listing, not clearing stale records", "fieldSelector", params.FieldSelector)
		return stale, false
	}
	selector := labels.Everything()
	if params.LabelSelector != "" {
		var err error
		if selector, err = labels.Parse(params.LabelSelector); err != nil {
			log.Error(err, "cannot parse label selector, not clearing stale records")
			return stale, false
		}
	}
	for _, rec := range existing {
		if params.Namespace != "" && rec.Namespace != params.Namespace {
			continue
		}
		if !selector.Matches(recordLabels(rec)) {
			continue
		}
		stale[rec.Key()] = rec
	}
	return stale, true
}

func recordLabels(rec *mirror.Record) labels.Set {
	set := make(labels.Set, len(rec.Labels))
	for _, kv := range rec.Labels {
		set[kv.ItemKey] = kv.ItemValue
	}
	return set
}

func (s *passStats) report(kind, cloudContext string) {
	for op, v := range map[string]int64{
		operationCreated: s.created.Load(),
		operationUpdated: s.updated.Load(),
		operationDeleted: s.deleted.Load(),
		operationFailed:  s.failed.Load(),
	} {
		if v > 0 {
			recordsTotal.WithLabelValues(kind, cloudContext, op).Add(float64(v))
		}
	}
}

// ReconcileAll runs one pass per selected kind over cloudContext, at most Workers passes at a time, and waits for
// all of them. Passes skipped because of a held lock are not errors.
func (r *Reconciler) ReconcileAll(ctx context.Context, cloudContext string) error {
	q := newRequestQueue()
	for _, d := range r.descriptors {
		q.Add(Request{CloudContext: cloudContext, Kind: d.Kind()})
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	runWorkers(r.workers, q, func(req Request) error {
		if _, err := r.Reconcile(ctx, req.Kind, req.CloudContext, mirror.ListParams{}, r.clearStale); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		return nil
	}, true)
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d passes over %q failed: %w", len(errs), len(r.descriptors), cloudContext, errors.Join(errs...))
	}
	return nil
}
