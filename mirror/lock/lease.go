// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package lock

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"

	"github.com/go-logr/logr"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	coordinationclient "k8s.io/client-go/kubernetes/typed/coordination/v1"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"
)

var invalidLeaseNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)

// LeaseName converts a lock name into a valid Lease object name.
func LeaseName(lockName string) string {
	name := invalidLeaseNameChars.ReplaceAllString(strings.ToLower(lockName), "-")
	return strings.Trim(name, "-.")
}

// LeaseArgs configures a Lease lock service.
type LeaseArgs struct {
	// Client is the coordination client of the cluster holding the leases.
	Client coordinationclient.LeasesGetter
	// Namespace is the namespace holding the leases.
	Namespace string
	// Identity identifies this process as lease holder.
	Identity string
	// LeaseDuration is the time after which a lease that was neither renewed nor released is considered abandoned.
	LeaseDuration time.Duration
	// RenewInterval is the period at which held leases are renewed. Defaults to a third of LeaseDuration.
	RenewInterval time.Duration
	// Clock is the time source.
	Clock clock.WithTicker
}

var _ mirror.LockService = (*Lease)(nil)

// Lease keeps locks as coordination.k8s.io Leases so that several mirror processes exclude each other.
// Held leases are renewed every RenewInterval until released. A lease not renewed within LeaseDuration is taken over.
type Lease struct {
	args LeaseArgs
	mu   sync.Mutex
	held map[string]*renewal
}

type renewal struct {
	stop chan struct{}
	done chan struct{}
}

// NewLease returns a Lease lock service.
func NewLease(args LeaseArgs) *Lease {
	if args.RenewInterval <= 0 {
		args.RenewInterval = args.LeaseDuration / 3
	}
	return &Lease{args: args, held: make(map[string]*renewal)}
}

// TryAcquire acquires the named lock if neither this process nor another lease holder holds it.
func (l *Lease) TryAcquire(ctx context.Context, name string) bool {
	log := logr.FromContextOrDiscard(ctx).WithValues("lock", name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		log.V(4).Info("lock is held by this process")
		return false
	}
	if err := l.acquire(ctx, LeaseName(name)); err != nil {
		log.V(4).Info("lock is not available", "reason", err.Error())
		return false
	}
	r := &renewal{stop: make(chan struct{}), done: make(chan struct{})}
	l.held[name] = r
	go l.renew(context.WithoutCancel(ctx), LeaseName(name), r)
	return true
}

// renew keeps the lease alive until r is stopped or the lease was lost.
func (l *Lease) renew(ctx context.Context, leaseName string, r *renewal) {
	defer close(r.done)
	log := logr.FromContextOrDiscard(ctx).WithValues("lease", leaseName)
	ticker := l.args.Clock.NewTicker(l.args.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C():
			lost, err := l.renewOnce(ctx, leaseName)
			if lost {
				log.Info("lease was taken over, no longer renewing")
				return
			}
			if err != nil {
				log.Error(err, "cannot renew lease")
			}
		}
	}
}

func (l *Lease) renewOnce(ctx context.Context, leaseName string) (lost bool, err error) {
	leases := l.args.Client.Leases(l.args.Namespace)
	lease, err := leases.Get(ctx, leaseName, metav1.GetOptions{})
	if err != nil {
		return apierrors.IsNotFound(err), err
	}
	if ptr.Deref(lease.Spec.HolderIdentity, "") != l.args.Identity {
		return true, nil
	}
	now := metav1.NewMicroTime(l.args.Clock.Now())
	lease.Spec.RenewTime = &now
	_, err = leases.Update(ctx, lease, metav1.UpdateOptions{})
	return false, err
}

func (l *Lease) acquire(ctx context.Context, leaseName string) error {
	leases := l.args.Client.Leases(l.args.Namespace)
	now := metav1.NewMicroTime(l.args.Clock.Now())
	lease, err := leases.Get(ctx, leaseName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		lease = &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: leaseName, Namespace: l.args.Namespace},
			Spec:       l.heldSpec(now),
		}
		_, err = leases.Create(ctx, lease, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if l.heldElsewhere(lease) {
		return apierrors.NewConflict(schema.GroupResource{Group: coordinationv1.GroupName, Resource: "leases"}, leaseName, errHeld(ptr.Deref(lease.Spec.HolderIdentity, "")))
	}
	lease.Spec = l.heldSpec(now)
	// the resource version carried by lease makes a concurrent takeover fail with a conflict
	_, err = leases.Update(ctx, lease, metav1.UpdateOptions{})
	return err
}

func (l *Lease) heldSpec(now metav1.MicroTime) coordinationv1.LeaseSpec {
	return coordinationv1.LeaseSpec{
		HolderIdentity:       ptr.To(l.args.Identity),
		LeaseDurationSeconds: ptr.To(int32(l.args.LeaseDuration / time.Second)),
		AcquireTime:          &now,
		RenewTime:            &now,
	}
}

func (l *Lease) heldElsewhere(lease *coordinationv1.Lease) bool {
	holder := ptr.Deref(lease.Spec.HolderIdentity, "")
	if holder == "" {
		return false
	}
	if lease.Spec.RenewTime == nil {
		return true
	}
	expiry := lease.Spec.RenewTime.Add(time.Duration(ptr.Deref(lease.Spec.LeaseDurationSeconds, 0)) * time.Second)
	return l.args.Clock.Now().Before(expiry)
}

// Release clears the holder of the named lease if this process holds it.
func (l *Lease) Release(ctx context.Context, name string) {
	log := logr.FromContextOrDiscard(ctx).WithValues("lock", name)
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.held[name]
	if !ok {
		return
	}
	delete(l.held, name)
	close(r.stop)
	<-r.done
	leases := l.args.Client.Leases(l.args.Namespace)
	lease, err := leases.Get(ctx, LeaseName(name), metav1.GetOptions{})
	if err != nil {
		log.Error(err, "cannot get lease to release")
		return
	}
	if ptr.Deref(lease.Spec.HolderIdentity, "") != l.args.Identity {
		log.Info("lease was taken over before release", "holder", ptr.Deref(lease.Spec.HolderIdentity, ""))
		return
	}
	lease.Spec.HolderIdentity = nil
	lease.Spec.AcquireTime = nil
	lease.Spec.RenewTime = nil
	if _, err = leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
		// an unreleased lease expires after LeaseDuration
		log.Error(err, "cannot release lease")
	}
}

type errHeld string

func (e errHeld) Error() string {
	return "lease is held by " + string(e)
}
