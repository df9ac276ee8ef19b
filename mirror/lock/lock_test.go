// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"

	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes/fake"
	testingclock "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"
)

func TestName(t *testing.T) {
	if got := Name("ctx1", mirror.KindReplicaSet); got != "cloud-mirror-ctx1-replica_set" {
		t.Errorf("Name = %q", got)
	}
	if got := LeaseName("cloud-mirror-Prod/EU-replica_set"); got != "cloud-mirror-prod-eu-replica-set" {
		t.Errorf("LeaseName = %q", got)
	}
}

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	if !l.TryAcquire(ctx, "a") {
		t.Fatalf("first acquire must succeed")
	}
	if l.TryAcquire(ctx, "a") {
		t.Errorf("second acquire of a held lock must fail")
	}
	if !l.TryAcquire(ctx, "b") {
		t.Errorf("independent lock must be acquirable")
	}
	l.Release(ctx, "a")
	if !l.TryAcquire(ctx, "a") {
		t.Errorf("acquire after release must succeed")
	}
	l.Release(ctx, "never-held")
}

func TestLocalConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 32 {
		wg.Go(func() {
			<-start
			if l.TryAcquire(ctx, "contended") {
				winners.Add(1)
			}
		})
	}
	close(start)
	wg.Wait()
	if got := winners.Load(); got != 1 {
		t.Errorf("%d goroutines acquired the lock, want 1", got)
	}
}

const newLeaseDuration = 10 * time.Minute

func newLease(client *fake.Clientset, clk *testingclock.FakeClock, identity string) *Lease {
	return NewLease(LeaseArgs{
		Client:        client.CoordinationV1(),
		Namespace:     "kube-system",
		Identity:      identity,
		LeaseDuration: newLeaseDuration,
		Clock:         clk,
	})
}

func TestLease(t *testing.T) {
	ctx := context.Background()
	client := fake.NewClientset()
	clk := testingclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	a := newLease(client, clk, "replica-a")
	b := newLease(client, clk, "replica-b")
	name := Name("ctx1", mirror.KindPod)

	if !a.TryAcquire(ctx, name) {
		t.Fatalf("a must acquire a free lease")
	}
	if a.TryAcquire(ctx, name) {
		t.Errorf("a must not acquire the lease twice")
	}
	if b.TryAcquire(ctx, name) {
		t.Errorf("b must not acquire a lease held by a")
	}
	lease, err := client.CoordinationV1().Leases("kube-system").Get(ctx, LeaseName(name), metav1.GetOptions{})
	if err != nil {
		t.Fatalf("lease not created: %v", err)
	}
	if got := ptr.Deref(lease.Spec.HolderIdentity, ""); got != "replica-a" {
		t.Errorf("holder = %q, want replica-a", got)
	}

	a.Release(ctx, name)
	if !b.TryAcquire(ctx, name) {
		t.Fatalf("b must acquire a released lease")
	}
	b.Release(ctx, name)
}

func TestLeaseTakeoverAfterExpiry(t *testing.T) {
	ctx := context.Background()
	client := fake.NewClientset()
	clk := testingclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	name := Name("ctx1", mirror.KindNode)
	acquired := metav1.NewMicroTime(clk.Now())
	// left behind by a process that stopped without releasing
	abandoned := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: LeaseName(name), Namespace: "kube-system"},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       ptr.To("replica-a"),
			LeaseDurationSeconds: ptr.To(int32(600)),
			AcquireTime:          &acquired,
			RenewTime:            &acquired,
		},
	}
	if _, err := client.CoordinationV1().Leases("kube-system").Create(ctx, abandoned, metav1.CreateOptions{}); err != nil {
		t.Fatal(err)
	}
	b := newLease(client, clk, "replica-b")

	clk.Step(9 * time.Minute)
	if b.TryAcquire(ctx, name) {
		t.Errorf("b must not take over a lease before it expires")
	}
	clk.Step(2 * time.Minute)
	if !b.TryAcquire(ctx, name) {
		t.Fatalf("b must take over an expired lease")
	}
	lease, _ := client.CoordinationV1().Leases("kube-system").Get(ctx, LeaseName(name), metav1.GetOptions{})
	if got := ptr.Deref(lease.Spec.HolderIdentity, ""); got != "replica-b" {
		t.Errorf("holder = %q, want replica-b", got)
	}
	b.Release(ctx, name)
}

func TestLeaseRenewedWhileHeld(t *testing.T) {
	ctx := context.Background()
	client := fake.NewClientset()
	clk := testingclock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	a := newLease(client, clk, "replica-a")
	b := newLease(client, clk, "replica-b")
	name := Name("ctx1", mirror.KindPod)

	if !a.TryAcquire(ctx, name) {
		t.Fatalf("a must acquire a free lease")
	}
	// a pass running for three lease durations
	for range 9 {
		if err := wait.PollUntilContextTimeout(ctx, time.Millisecond, 5*time.Second, true, func(context.Context) (bool, error) {
			return clk.HasWaiters(), nil
		}); err != nil {
			t.Fatalf("renewal ticker not started: %v", err)
		}
		clk.Step(newLeaseDuration / 3)
		want := clk.Now()
		if err := wait.PollUntilContextTimeout(ctx, time.Millisecond, 5*time.Second, true, func(ctx context.Context) (bool, error) {
			lease, err := client.CoordinationV1().Leases("kube-system").Get(ctx, LeaseName(name), metav1.GetOptions{})
			if err != nil {
				return false, err
			}
			return lease.Spec.RenewTime != nil && lease.Spec.RenewTime.Equal(&metav1.MicroTime{Time: want}), nil
		}); err != nil {
			t.Fatalf("lease not renewed at %s: %v", want, err)
		}
	}
	if b.TryAcquire(ctx, name) {
		t.Errorf("b must not take over a lease that is renewed")
	}

	a.Release(ctx, name)
	if clk.HasWaiters() {
		t.Errorf("renewal still running after release")
	}
	if !b.TryAcquire(ctx, name) {
		t.Fatalf("b must acquire a released lease")
	}
	b.Release(ctx, name)
}
