// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/testutil"
	"github.com/gardener/cloud-mirror/mirror/kinds"
	"github.com/gardener/cloud-mirror/mirror/lock"
	"github.com/gardener/cloud-mirror/mirror/mapper"
	"github.com/gardener/cloud-mirror/mirror/store/inmem"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	prometheustestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"k8s.io/apimachinery/pkg/util/wait"
	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	r     *Reconciler
	store *inmem.Store
	clock *testingclock.FakeClock
	rc    *fakeResources
	mc    *fakeMetrics
	locks *lock.Local
}

func newFixture(t *testing.T, kindsToReconcile ...mirror.Kind) *fixture {
	t.Helper()
	f := &fixture{
		clock: testingclock.NewFakeClock(epoch),
		rc:    newFakeResources(),
		mc:    &fakeMetrics{},
		locks: lock.NewLocal(),
	}
	f.store = inmem.New(f.clock)
	r, err := New(Args{
		Store: f.store,
		Clients: fakeProvider{
			resources: map[string]*fakeResources{"ctx1": f.rc},
			metrics:   map[string]*fakeMetrics{"ctx1": f.mc},
		},
		Locks:            f.locks,
		Clock:            f.clock,
		Kinds:            kindsToReconcile,
		Workers:          2,
		BatchParallelism: 4,
		ClearStale:       true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.r = r
	return f
}

func (f *fixture) seed(t *testing.T, kind mirror.Kind, name, namespace string) {
	t.Helper()
	if _, err := f.store.Save(context.Background(), mirror.NewRecord(kind, "ctx1", name, namespace)); err != nil {
		t.Fatalf("seeding record failed: %v", err)
	}
}

func (f *fixture) keys(t *testing.T, kind mirror.Kind) []string {
	t.Helper()
	recs, err := f.store.LoadAll(context.Background(), kind, "ctx1")
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.Key())
	}
	return keys
}

func configMapArgs(t *testing.T, batchMode, clearStale bool, hooks ...mapper.Hook) UpdateArgs {
	t.Helper()
	desc, err := kinds.Get(mirror.KindConfigMap)
	if err != nil {
		t.Fatal(err)
	}
	desc.Table.Hooks = append(append([]mapper.Hook(nil), desc.Table.Hooks...), hooks...)
	return UpdateArgs{CloudContext: "ctx1", Descriptor: desc, ClearStale: clearStale, BatchMode: batchMode}
}

var errBadObject = errors.New("bad object")

func failOn(name string) mapper.Hook {
	return func(_ context.Context, rec *mirror.Record, _ map[string]any, _ mirror.ExtraData) error {
		if rec.Name == name {
			return errBadObject
		}
		return nil
	}
}

func TestUpdateEntities(t *testing.T) {
	tests := map[string]struct {
		batchMode  bool
		clearStale bool
		hooks      []mapper.Hook
		params     mirror.ListParams
		listErr    error
		wantRan    bool
		wantErr    error
		wantKeys   []string
	}{
		"maps listed objects and clears stale records": {
			clearStale: true,
			wantRan:    true,
			wantKeys:   []string{"a:ns1", "b:ns2"},
		},
		"keeps stale records when not clearing": {
			wantRan:  true,
			wantKeys: []string{"a:ns1", "b:ns2", "gone:ns1", "other:ns2"},
		},
		"batch mode clears stale records after mapping": {
			batchMode:  true,
			clearStale: true,
			wantRan:    true,
			wantKeys:   []string{"a:ns1", "b:ns2"},
		},
		"failed listing leaves the mirror untouched": {
			clearStale: true,
			listErr:    errors.New("apiserver unavailable"),
			wantKeys:   []string{"gone:ns1", "other:ns2"},
		},
		"mapping error aborts before clearing": {
			clearStale: true,
			hooks:      []mapper.Hook{failOn("b")},
			wantErr:    errBadObject,
			wantKeys:   []string{"a:ns1", "gone:ns1", "other:ns2"},
		},
		"batch mode isolates mapping errors": {
			batchMode:  true,
			clearStale: true,
			hooks:      []mapper.Hook{failOn("a")},
			wantRan:    true,
			wantKeys:   []string{"b:ns2"},
		},
		"namespace scoped listing clears only within the namespace": {
			clearStale: true,
			params:     mirror.ListParams{Namespace: "ns1"},
			wantRan:    true,
			wantKeys:   []string{"a:ns1", "other:ns2"},
		},
		"label scoped listing clears only matching records": {
			clearStale: true,
			params:     mirror.ListParams{LabelSelector: "app=gone"},
			wantRan:    true,
			wantKeys:   []string{"a:ns1", "b:ns2", "other:ns2"},
		},
		"field selected listing never clears": {
			clearStale: true,
			params:     mirror.ListParams{FieldSelector: "metadata.name=a"},
			wantRan:    true,
			wantKeys:   []string{"a:ns1", "b:ns2", "gone:ns1", "other:ns2"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := testutil.LoggerContext(context.Background())
			f := newFixture(t)
			f.seed(t, mirror.KindConfigMap, "other", "ns2")
			if _, err := f.store.Save(ctx, &mirror.Record{Kind: mirror.KindConfigMap, CloudContext: "ctx1", Name: "gone", Namespace: "ns1",
				Labels: []mirror.KeyValue{{ItemKey: "app", ItemValue: "gone"}}}); err != nil {
				t.Fatal(err)
			}
			f.rc.set(mirror.KindConfigMap, configMap("a", "ns1", "1"), configMap("b", "ns2", "2"))
			if tc.listErr != nil {
				f.rc.failList(mirror.KindConfigMap, tc.listErr)
			}
			args := configMapArgs(t, tc.batchMode, tc.clearStale, tc.hooks...)
			args.Params = tc.params

			ran, err := f.r.UpdateEntities(ctx, args)
			testutil.AssertError(t, err, tc.wantErr)
			if ran != tc.wantRan {
				t.Errorf("UpdateEntities() ran = %t, want %t", ran, tc.wantRan)
			}
			if diff := cmp.Diff(tc.wantKeys, f.keys(t, mirror.KindConfigMap)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
			if !f.locks.TryAcquire(ctx, lock.Name("ctx1", mirror.KindConfigMap)) {
				t.Errorf("lock was not released")
			}
		})
	}
}

func TestUpdateEntitiesIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rc.set(mirror.KindConfigMap, configMap("a", "ns1", "1"), configMap("b", "ns2", "2"))
	args := configMapArgs(t, false, true)

	if _, err := f.r.UpdateEntities(ctx, args); err != nil {
		t.Fatalf("first pass error = %v", err)
	}
	first, _ := f.store.LoadAll(ctx, mirror.KindConfigMap, "ctx1")
	f.clock.Step(time.Hour)
	if _, err := f.r.UpdateEntities(ctx, args); err != nil {
		t.Fatalf("second pass error = %v", err)
	}
	second, _ := f.store.LoadAll(ctx, mirror.KindConfigMap, "ctx1")
	if len(first) != len(second) {
		t.Fatalf("record count changed from %d to %d", len(first), len(second))
	}
	for i := range first {
		if !mirrorContentEqual(first[i], second[i]) {
			t.Errorf("record %q changed content on an unchanged remote object", first[i].Key())
		}
		if !second[i].Changed.Equal(first[i].Changed) {
			t.Errorf("record %q changed = %v, want %v", first[i].Key(), second[i].Changed, first[i].Changed)
		}
		if !second[i].Refreshed.Equal(f.clock.Now()) {
			t.Errorf("record %q refreshed = %v, want %v", first[i].Key(), second[i].Refreshed, f.clock.Now())
		}
	}
}

func TestUpdateEntitiesObjectWithoutName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	unnamed := configMap("", "ns1", "1")
	delete(unnamed["metadata"].(map[string]any), "name")
	f.rc.set(mirror.KindConfigMap, unnamed, configMap("a", "ns1", "1"))
	args := configMapArgs(t, false, true)

	for pass := range 2 {
		ran, err := f.r.UpdateEntities(ctx, args)
		if err != nil || !ran {
			t.Fatalf("pass %d: UpdateEntities() = %v, %v", pass, ran, err)
		}
		want := []string{":ns1", "a:ns1"}
		if diff := cmp.Diff(want, f.keys(t, mirror.KindConfigMap), cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
			t.Errorf("pass %d: record keys mismatch (-want +got):\n%s", pass, diff)
		}
	}
}

func mirrorContentEqual(a, b *mirror.Record) bool {
	a, b = a.DeepCopy(), b.DeepCopy()
	a.Refreshed, b.Refreshed = time.Time{}, time.Time{}
	a.ResourceVersion, b.ResourceVersion = 0, 0
	return cmp.Equal(a, b)
}

func TestUpdateEntitiesAtMostOneConcurrentPass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rc.set(mirror.KindConfigMap, configMap("a", "ns1", "1"))
	entered := make(chan struct{})
	release := make(chan struct{})
	var first atomic.Bool
	f.rc.onList = func(mirror.Kind) {
		if first.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	}
	args := configMapArgs(t, false, true)
	skippedBefore := prometheustestutil.ToFloat64(passesTotal.WithLabelValues(string(mirror.KindConfigMap), "ctx1", outcomeSkipped))

	var (
		wg       sync.WaitGroup
		firstRan bool
		firstErr error
	)
	wg.Go(func() {
		firstRan, firstErr = f.r.UpdateEntities(ctx, args)
	})
	<-entered
	ran, err := f.r.UpdateEntities(ctx, args)
	if ran || err != nil {
		t.Errorf("concurrent UpdateEntities() = (%t, %v), want (false, <nil>)", ran, err)
	}
	close(release)
	wg.Wait()
	if !firstRan || firstErr != nil {
		t.Errorf("first UpdateEntities() = (%t, %v), want (true, <nil>)", firstRan, firstErr)
	}
	if got := f.rc.listCalls.Load(); got != 1 {
		t.Errorf("List() called %d times, want 1", got)
	}
	skippedAfter := prometheustestutil.ToFloat64(passesTotal.WithLabelValues(string(mirror.KindConfigMap), "ctx1", outcomeSkipped))
	if skippedAfter-skippedBefore != 1 {
		t.Errorf("skipped passes grew by %v, want 1", skippedAfter-skippedBefore)
	}

	if ran, err = f.r.UpdateEntities(ctx, args); !ran || err != nil {
		t.Errorf("UpdateEntities() after release = (%t, %v), want (true, <nil>)", ran, err)
	}
}

func TestReconcilePodWithUsage(t *testing.T) {
	ctx := testutil.LoggerContext(context.Background())
	tests := map[string]struct {
		metricsErr error
		wantCPU    float64
		wantMemory int64
	}{
		"usage from metrics": {
			wantCPU:    0.12,
			wantMemory: 48 * 1024 * 1024,
		},
		"metrics unavailable": {
			metricsErr: mirror.ErrMetricsUnavailable,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.rc.set(mirror.KindPod, testutil.MustLoadTestObject(t, "pod-a.yaml"))
			f.mc.pods = map[string]mirror.Usage{"pod-a:default": {CPU: 0.12, Memory: 48 * 1024 * 1024}}
			f.mc.err = tc.metricsErr

			ran, err := f.r.Reconcile(ctx, mirror.KindPod, "ctx1", mirror.ListParams{}, true)
			if !ran || err != nil {
				t.Fatalf("Reconcile() = (%t, %v), want (true, <nil>)", ran, err)
			}
			rec, found, err := f.store.Load(ctx, mirror.KindPod, "ctx1", "pod-a", "default")
			if err != nil || !found {
				t.Fatalf("Load() found=%t err=%v", found, err)
			}
			if got := rec.FloatField(kinds.FieldCPURequest); got != 0.35 {
				t.Errorf("cpu_request = %v, want 0.35", got)
			}
			if got := rec.FloatField(kinds.FieldCPUUsage); got != tc.wantCPU {
				t.Errorf("cpu_usage = %v, want %v", got, tc.wantCPU)
			}
			if got := rec.IntField(kinds.FieldMemoryUsage); got != tc.wantMemory {
				t.Errorf("memory_usage = %v, want %v", got, tc.wantMemory)
			}
			if got := rec.StringField(kinds.FieldStatus); got != "Running" {
				t.Errorf("status = %q, want Running", got)
			}
		})
	}
}

func TestReconcileNode(t *testing.T) {
	ctx := context.Background()
	t.Run("aggregates pods of the node", func(t *testing.T) {
		f := newFixture(t)
		f.rc.set(mirror.KindNode, testutil.MustLoadTestObject(t, "node-a.yaml"))
		f.rc.set(mirror.KindPod, testutil.MustLoadTestObject(t, "pod-a.yaml"))
		f.mc.nodes = map[string]mirror.Usage{"node-a": {CPU: 1.5, Memory: 1 << 30}}

		ran, err := f.r.Reconcile(ctx, mirror.KindNode, "ctx1", mirror.ListParams{}, true)
		if !ran || err != nil {
			t.Fatalf("Reconcile() = (%t, %v), want (true, <nil>)", ran, err)
		}
		rec, _, _ := f.store.Load(ctx, mirror.KindNode, "ctx1", "node-a", "")
		if got := rec.IntField("pods_allocated"); got != 1 {
			t.Errorf("pods_allocated = %d, want 1", got)
		}
		if got := rec.FloatField(kinds.FieldCPUUsage); got != 1.5 {
			t.Errorf("cpu_usage = %v, want 1.5", got)
		}
	})
	t.Run("skips the pass when pods cannot be listed", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, mirror.KindNode, "node-old", "")
		f.rc.set(mirror.KindNode, testutil.MustLoadTestObject(t, "node-a.yaml"))
		f.rc.failList(mirror.KindPod, errors.New("timeout"))

		ran, err := f.r.Reconcile(ctx, mirror.KindNode, "ctx1", mirror.ListParams{}, true)
		if ran || err != nil {
			t.Fatalf("Reconcile() = (%t, %v), want (false, <nil>)", ran, err)
		}
		if diff := cmp.Diff([]string{"node-old"}, f.keys(t, mirror.KindNode)); diff != "" {
			t.Errorf("records mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestReconcileErrors(t *testing.T) {
	f := newFixture(t)
	tests := map[string]struct {
		kind         mirror.Kind
		cloudContext string
		wantErr      error
	}{
		"unknown kind":          {kind: "widget", cloudContext: "ctx1", wantErr: mirror.ErrUnknownKind},
		"unknown cloud context": {kind: mirror.KindSecret, cloudContext: "nowhere", wantErr: mirror.ErrUnknownCloudContext},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ran, err := f.r.Reconcile(context.Background(), tc.kind, tc.cloudContext, mirror.ListParams{}, true)
			testutil.AssertError(t, err, tc.wantErr)
			if ran {
				t.Errorf("Reconcile() ran = true, want false")
			}
		})
	}
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mirror.KindConfigMap, mirror.KindSecret, mirror.KindConfigMap)
	if diff := cmp.Diff([]mirror.Kind{mirror.KindConfigMap, mirror.KindSecret}, f.r.Kinds()); diff != "" {
		t.Errorf("Kinds() mismatch (-want +got):\n%s", diff)
	}
	f.rc.set(mirror.KindConfigMap, configMap("a", "ns1", "1"))
	f.rc.set(mirror.KindSecret, map[string]any{"metadata": map[string]any{"name": "s", "namespace": "ns1"}})
	f.rc.set(mirror.KindNamespace, map[string]any{"metadata": map[string]any{"name": "ns1"}})

	if err := f.r.ReconcileAll(ctx, "ctx1"); err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a:ns1"}, f.keys(t, mirror.KindConfigMap)); diff != "" {
		t.Errorf("config maps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"s:ns1"}, f.keys(t, mirror.KindSecret)); diff != "" {
		t.Errorf("secrets mismatch (-want +got):\n%s", diff)
	}
	if got := f.keys(t, mirror.KindNamespace); len(got) != 0 {
		t.Errorf("unselected kind was reconciled: %v", got)
	}

	err := f.r.ReconcileAll(ctx, "nowhere")
	testutil.AssertError(t, err, mirror.ErrUnknownCloudContext)
}

func TestStartDrainsQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, mirror.KindConfigMap)
	f.rc.set(mirror.KindConfigMap, configMap("a", "ns1", "1"))

	done := make(chan error)
	go func() { done <- f.r.Start(ctx) }()
	f.r.Enqueue("ctx1")

	err := wait.PollUntilContextTimeout(ctx, 10*time.Millisecond, 5*time.Second, true, func(ctx context.Context) (bool, error) {
		_, found, err := f.store.Load(ctx, mirror.KindConfigMap, "ctx1", "a", "ns1")
		return found, err
	})
	if err != nil {
		t.Fatalf("record never appeared: %v", err)
	}
	cancel()
	select {
	case err = <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}
