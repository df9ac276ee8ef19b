// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package storetest holds behaviour tests every mirror.Store implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	testingclock "k8s.io/utils/clock/testing"
)

// Factory creates an empty store using the given clock.
type Factory func(t *testing.T, clk *testingclock.FakeClock) mirror.Store

// Epoch is the initial time of the fake clock handed to Factory.
var Epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRecord(kind mirror.Kind, cloudContext, name, namespace, status string) *mirror.Record {
	rec := mirror.NewRecord(kind, cloudContext, name, namespace)
	rec.Created = Epoch.Add(-time.Hour)
	rec.SetString("status", status)
	rec.Labels = []mirror.KeyValue{{ItemKey: "app", ItemValue: name}}
	return rec
}

func mustSave(ctx context.Context, t *testing.T, s mirror.Store, rec *mirror.Record) *mirror.Record {
	t.Helper()
	saved, err := s.Save(ctx, rec)
	if err != nil {
		t.Fatalf("Save(%s) failed: %v", rec.StoreKey(), err)
	}
	return saved
}

func keys(recs []*mirror.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Key())
	}
	return out
}

// Run runs the store behaviour tests against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("load missing record", func(t *testing.T) {
		s := newStore(t, testingclock.NewFakeClock(Epoch))
		rec, found, err := s.Load(context.Background(), mirror.KindPod, "ctx1", "p1", "ns1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if found || rec != nil {
			t.Errorf("expected no record, got %v", rec)
		}
	})

	t.Run("save and load round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, testingclock.NewFakeClock(Epoch))
		want := newRecord(mirror.KindPod, "ctx1", "p1", "ns1", "Running")
		want.SetFloat("cpu_request", 0.25)
		want.SetKeyValues("selector", []mirror.KeyValue{{ItemKey: "a", ItemValue: "1"}})
		saved := mustSave(ctx, t, s, want)
		if saved.ResourceVersion == 0 {
			t.Errorf("expected resource version to be assigned")
		}
		got, found, err := s.Load(ctx, mirror.KindPod, "ctx1", "p1", "ns1")
		if err != nil || !found {
			t.Fatalf("Load failed: found=%t err=%v", found, err)
		}
		if diff := cmp.Diff(saved, got, cmpopts.EquateEmpty(), cmpopts.EquateApproxTime(0)); diff != "" {
			t.Errorf("loaded record mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("loaded records are copies", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, testingclock.NewFakeClock(Epoch))
		mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx1", "p1", "ns1", "Running"))
		got, _, _ := s.Load(ctx, mirror.KindPod, "ctx1", "p1", "ns1")
		got.SetString("status", "Mutated")
		got.Labels[0].ItemValue = "mutated"
		again, _, _ := s.Load(ctx, mirror.KindPod, "ctx1", "p1", "ns1")
		if again.StringField("status") != "Running" || again.Labels[0].ItemValue != "p1" {
			t.Errorf("store content was modified through a loaded record: %+v", again)
		}
	})

	t.Run("changed moves only with content", func(t *testing.T) {
		ctx := context.Background()
		clk := testingclock.NewFakeClock(Epoch)
		s := newStore(t, clk)
		first := mustSave(ctx, t, s, newRecord(mirror.KindNode, "ctx1", "n1", "", "Ready"))

		clk.Step(time.Minute)
		same, _, _ := s.Load(ctx, mirror.KindNode, "ctx1", "n1", "")
		same.Refreshed = clk.Now()
		second := mustSave(ctx, t, s, same)
		if !second.Changed.Equal(first.Changed) {
			t.Errorf("Changed moved on unchanged content: %v -> %v", first.Changed, second.Changed)
		}
		if second.ResourceVersion <= first.ResourceVersion {
			t.Errorf("ResourceVersion did not increase: %d -> %d", first.ResourceVersion, second.ResourceVersion)
		}

		clk.Step(time.Minute)
		modified := second.DeepCopy()
		modified.SetString("status", "NotReady")
		third := mustSave(ctx, t, s, modified)
		if !third.Changed.Equal(clk.Now()) {
			t.Errorf("Changed = %v, want %v", third.Changed, clk.Now())
		}
		if !third.Created.Equal(first.Created) {
			t.Errorf("Created regressed: %v -> %v", first.Created, third.Created)
		}
	})

	t.Run("load all is scoped to kind and cloud context", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, testingclock.NewFakeClock(Epoch))
		mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx1", "b", "ns1", "Running"))
		mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx1", "a", "ns2", "Running"))
		mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx2", "c", "ns1", "Running"))
		mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx", "d", "ns1", "Running"))
		mustSave(ctx, t, s, newRecord(mirror.KindNode, "ctx1", "n1", "", "Ready"))

		got, err := s.LoadAll(ctx, mirror.KindPod, "ctx1")
		if err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if diff := cmp.Diff([]string{"a:ns2", "b:ns1"}, keys(got)); diff != "" {
			t.Errorf("LoadAll mismatch (-want +got):\n%s", diff)
		}
		none, err := s.LoadAll(ctx, mirror.KindService, "ctx1")
		if err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no services, got %v", keys(none))
		}
	})

	t.Run("delete many ignores missing records", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t, testingclock.NewFakeClock(Epoch))
		a := mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx1", "a", "ns1", "Running"))
		b := mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx1", "b", "ns1", "Running"))
		mustSave(ctx, t, s, newRecord(mirror.KindPod, "ctx1", "c", "ns1", "Running"))
		missing := newRecord(mirror.KindPod, "ctx1", "zz", "ns1", "Running")

		n, err := s.DeleteMany(ctx, []*mirror.Record{a, b, missing})
		if err != nil {
			t.Fatalf("DeleteMany failed: %v", err)
		}
		if n != 2 {
			t.Errorf("DeleteMany deleted %d records, want 2", n)
		}
		got, _ := s.LoadAll(ctx, mirror.KindPod, "ctx1")
		if diff := cmp.Diff([]string{"c:ns1"}, keys(got)); diff != "" {
			t.Errorf("remaining records mismatch (-want +got):\n%s", diff)
		}
	})
}
