// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package server hosts the reconciliation engine and the time scheduler in a controller-runtime manager.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	commontypes "github.com/gardener/cloud-mirror/api/common/types"
	configv1alpha1 "github.com/gardener/cloud-mirror/api/config/v1alpha1"
	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/client"
	"github.com/gardener/cloud-mirror/mirror/lock"
	"github.com/gardener/cloud-mirror/mirror/reconciler"
	"github.com/gardener/cloud-mirror/mirror/store/badgerstore"
	"github.com/gardener/cloud-mirror/mirror/store/inmem"
	"github.com/gardener/cloud-mirror/mirror/timescheduler"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	coordinationclient "k8s.io/client-go/kubernetes/typed/coordination/v1"
	"k8s.io/utils/clock"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

var _ commontypes.Service = (*Server)(nil)

// Server is the long running mirror daemon.
type Server struct {
	mgr   manager.Manager
	store mirror.Store

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires the mirror components described by cfg into a new Server. The returned Server owns the opened store.
func New(ctx context.Context, cfg configv1alpha1.MirrorConfig) (s *Server, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("%w: %w", mirror.ErrInitFailed, err)
		}
	}()
	log := logr.FromContextOrDiscard(ctx)
	restCfg, err := client.RESTConfig(cfg.ClientConnection, "")
	if err != nil {
		return nil, fmt.Errorf("cannot load control cluster config: %w", err)
	}
	clients, err := client.NewProviderFromConfig(cfg.ClientConnection, cfg.CloudContexts)
	if err != nil {
		return nil, err
	}
	controlClient, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: control cluster: %w", mirror.ErrCreateClient, err)
	}
	locks, err := NewLockService(cfg.Reconciler, controlClient.CoordinationV1(), Identity())
	if err != nil {
		return nil, err
	}
	clk := clock.RealClock{}
	store, err := NewStore(ctx, cfg.Store, clk)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()
	rec, err := reconciler.New(reconciler.Args{
		Store:            store,
		Clients:          clients,
		Locks:            locks,
		Clock:            clk,
		Kinds:            cfg.Reconciler.Kinds,
		Workers:          cfg.Reconciler.Workers,
		BatchParallelism: cfg.Reconciler.BatchParallelism,
		ClearStale:       ptr.Deref(cfg.Reconciler.ClearStale, true),
	})
	if err != nil {
		return nil, err
	}

	le := cfg.LeaderElection
	mgr, err := manager.New(restCfg, manager.Options{
		BaseContext:             func() context.Context { return ctx },
		Logger:                  log,
		HealthProbeBindAddress:  cfg.Server.HealthProbeBindAddress,
		LeaderElection:          le.Enabled,
		LeaderElectionNamespace: le.ResourceNamespace,
		LeaderElectionID:        le.ResourceName,
		LeaseDuration:           ptr.To(le.LeaseDuration.Duration),
		RenewDeadline:           ptr.To(le.RenewDeadline.Duration),
		RetryPeriod:             ptr.To(le.RetryPeriod.Duration),
		GracefulShutdownTimeout: ptr.To(cfg.Server.GracefulShutdownTimeout.Duration),
		Metrics: metricsserver.Options{
			BindAddress: cfg.Server.MetricsBindAddress,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create manager: %w", err)
	}
	if err = mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return nil, err
	}
	if err = mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return nil, err
	}
	if err = mgr.Add(rec); err != nil {
		return nil, err
	}
	if err = mgr.Add(Periodic("enqueue", cfg.Reconciler.Interval.Duration, func(context.Context) error {
		for _, cc := range clients.CloudContexts() {
			rec.Enqueue(cc)
		}
		return nil
	})); err != nil {
		return nil, err
	}
	if cfg.Scheduler.Enabled {
		loc, err := Location(cfg.Scheduler.TimeZone)
		if err != nil {
			return nil, err
		}
		sched := timescheduler.New(timescheduler.Args{
			Projects:  timescheduler.NewFileProjectStore(cfg.Scheduler.ProjectsFile),
			Clients:   clients,
			Store:     store,
			Refresher: rec,
			Clock:     clk,
			Location:  loc,
		})
		if err = mgr.Add(Periodic("schedule", cfg.Scheduler.Interval.Duration, sched.Run)); err != nil {
			return nil, err
		}
	}
	log.Info("Mirror server initialized", "cloudContexts", clients.CloudContexts(), "kinds", len(rec.Kinds()),
		"store", cfg.Store.Backend, "locks", cfg.Reconciler.LockBackend, "scheduler", cfg.Scheduler.Enabled)
	return &Server{mgr: mgr, store: store}, nil
}

// NewStore opens the mirror store selected by cfg.
func NewStore(ctx context.Context, cfg configv1alpha1.StoreConfig, clk clock.PassiveClock) (mirror.Store, error) {
	switch cfg.Backend {
	case configv1alpha1.StoreBackendMemory, "":
		return inmem.New(clk), nil
	case configv1alpha1.StoreBackendBadger:
		return badgerstore.Open(ctx, clk, badgerstore.Options{
			Path:       cfg.Path,
			GCInterval: cfg.GCInterval.Duration,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewLockService creates the lock service selected by cfg. Leases are only required for the lease backend.
func NewLockService(cfg configv1alpha1.ReconcilerConfig, leases coordinationclient.LeasesGetter, identity string) (mirror.LockService, error) {
	switch cfg.LockBackend {
	case configv1alpha1.LockBackendLocal, "":
		return lock.NewLocal(), nil
	case configv1alpha1.LockBackendLease:
		if leases == nil {
			return nil, errors.New("lease lock backend requires a coordination client")
		}
		return lock.NewLease(lock.LeaseArgs{
			Client:        leases,
			Namespace:     cfg.LockNamespace,
			Identity:      identity,
			LeaseDuration: cfg.LockLeaseDuration.Duration,
			Clock:         clock.RealClock{},
		}), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// Identity returns a lease holder identity unique to this process.
func Identity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = mirror.ProgramName
	}
	return hostname + "_" + string(uuid.NewUUID())
}

// Location resolves the time zone of schedule clock times. An empty name selects the local time zone.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// Periodic returns a runnable invoking fn every interval until its context is cancelled. Errors of fn are logged.
func Periodic(name string, interval time.Duration, fn func(context.Context) error) manager.RunnableFunc {
	return func(ctx context.Context) error {
		log := logr.FromContextOrDiscard(ctx).WithValues("runnable", name)
		log.Info("Starting periodic runnable", "interval", interval)
		wait.UntilWithContext(ctx, func(ctx context.Context) {
			if err := fn(ctx); err != nil {
				log.Error(err, "periodic run failed")
			}
		}, interval)
		return nil
	}
}

// Start runs the manager and blocks until it stopped.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: server already started", mirror.ErrStartFailed)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)
	if err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("%w: %w", mirror.ErrStartFailed, err)
	}
	return nil
}

// Stop cancels the manager, waits for it to stop within ctx and closes the store.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	var errs []error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("manager did not stop in time: %w", ctx.Err()))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
