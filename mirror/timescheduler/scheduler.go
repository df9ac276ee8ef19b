// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package timescheduler turns namespace capacity on and off on a daily schedule by managing ResourceQuota objects.
package timescheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/objutil"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// ManagedByLabel marks the ResourceQuota objects created by the scheduler.
const ManagedByLabel = "app.kubernetes.io/managed-by"

// Action is what the scheduler does to the quota of one target in one cloud context.
type Action int

const (
	// ActionNone leaves the quota alone.
	ActionNone Action = iota
	// ActionZero throttles the namespace to zero capacity.
	ActionZero
	// ActionRemove deletes the quota.
	ActionRemove
	// ActionCapacity grants the configured capacity.
	ActionCapacity
)

func (a Action) String() string {
	switch a {
	case ActionZero:
		return "zero"
	case ActionRemove:
		return "remove"
	case ActionCapacity:
		return "capacity"
	default:
		return "none"
	}
}

var actionsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
	Namespace: "cloud_mirror",
	Name:      "scheduler_actions_total",
	Help:      "Total quota actions taken by the time scheduler by action and result.",
}, []string{"action", "result"})

// zeroHard returns the quota of a namespace outside its active window.
func zeroHard() map[string]any {
	return map[string]any{"cpu": "0m", "memory": "0Mi", "pods": "0"}
}

// Args is the set of collaborators of a Scheduler.
type Args struct {
	// Projects provides the schedule targets.
	Projects mirror.ProjectStore
	// Clients hands out the remote clients per cloud context.
	Clients mirror.ClientProvider
	// Store holds the mirrored ResourceQuota records.
	Store mirror.Store
	// Refresher re-mirrors the ResourceQuota kind after the scheduler acted.
	Refresher mirror.Refresher
	// Clock is the time source. Defaults to the real clock.
	Clock clock.PassiveClock
	// Location is the time zone schedule clock times are given in. Defaults to time.Local.
	Location *time.Location
}

// Scheduler evaluates the schedule targets. It holds no reconciliation lock itself.
type Scheduler struct {
	projects  mirror.ProjectStore
	clients   mirror.ClientProvider
	store     mirror.Store
	refresher mirror.Refresher
	clock     clock.PassiveClock
	location  *time.Location
}

// New creates a Scheduler.
func New(args Args) *Scheduler {
	s := &Scheduler{
		projects:  args.Projects,
		clients:   args.Clients,
		store:     args.Store,
		refresher: args.Refresher,
		clock:     args.Clock,
		location:  args.Location,
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.location == nil {
		s.location = time.Local
	}
	return s
}

// Decide returns the action due for target given the current time and the mirrored quota record, if any.
//
// The desired state follows from the window: outside it the quota is zero, inside it the quota is removed or set to
// capacity depending on ResourceSchedulerEnabled. The desired state is applied only when no record exists, when the
// record was last changed on the other side of the window boundary or when the target changed after the record and
// the mirrored limits differ from the desired ones.
func Decide(target mirror.ScheduleTarget, rec *mirror.Record, now time.Time) Action {
	current := ValidateScheduledTime(target.StartupTime, target.StopTime, now)
	desired := ActionZero
	if current {
		desired = ActionCapacity
		if !target.ResourceSchedulerEnabled {
			desired = ActionRemove
		}
	}
	if rec == nil {
		if desired == ActionRemove {
			return ActionNone
		}
		return desired
	}
	previous := ValidateScheduledTime(target.StartupTime, target.StopTime, rec.Changed.In(now.Location()))
	if previous != current {
		return desired
	}
	if target.Changed.After(rec.Changed) && !mirrored(rec, desired, target) {
		return desired
	}
	return ActionNone
}

// mirrored reports whether rec already reflects the desired action for target.
func mirrored(rec *mirror.Record, desired Action, target mirror.ScheduleTarget) bool {
	if desired == ActionRemove {
		return false
	}
	hard, _ := desiredHard(desired, target)
	pods, _ := strconv.ParseInt(hard["pods"].(string), 10, 64)
	return rec.FloatField("cpu_hard") == objutil.ParseCores(hard["cpu"].(string)) &&
		rec.IntField("memory_hard") == objutil.ParseBytes(hard["memory"].(string)) &&
		rec.IntField("pods_hard") == pods
}

// desiredHard returns spec.hard for a zero or capacity action. Invalid capacity falls back to zero and is returned as
// error.
func desiredHard(action Action, target mirror.ScheduleTarget) (map[string]any, error) {
	if action != ActionCapacity {
		return zeroHard(), nil
	}
	hard, err := capacityHard(target)
	if err != nil {
		return zeroHard(), err
	}
	return hard, nil
}

// Run evaluates every schedule target in each of its cloud contexts once. Failures of one target do not stop the
// others and are returned joined.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)
	targets, err := s.projects.ListScheduleTargets(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now().In(s.location)
	var errs []error
	for _, target := range targets {
		for _, cc := range target.CloudContexts {
			if err = s.runTarget(ctx, target, cc, now); err != nil {
				log.Error(err, "cannot apply schedule", "project", target.Project, "namespace", target.Namespace, "cloudContext", cc)
				errs = append(errs, err)
			}
		}
	}
	log.V(2).Info("scheduler run completed", "targets", len(targets), "failed", len(errs))
	return errors.Join(errs...)
}

func (s *Scheduler) runTarget(ctx context.Context, target mirror.ScheduleTarget, cloudContext string, now time.Time) (err error) {
	quotaName := target.QuotaName
	if quotaName == "" {
		quotaName = target.Namespace
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("namespace", target.Namespace, "quota", quotaName, "cloudContext", cloudContext)
	rc, err := s.clients.ResourceClient(cloudContext)
	if err != nil {
		return
	}
	rec, found, err := s.store.Load(ctx, mirror.KindResourceQuota, cloudContext, quotaName, target.Namespace)
	if err != nil {
		return
	}
	if !found {
		rec = nil
	}
	action := Decide(target, rec, now)
	if action == ActionNone {
		log.V(4).Info("schedule unchanged")
		return nil
	}
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
			err = fmt.Errorf("%w: %s quota %q in %q of %q: %w", mirror.ErrScheduleQuota, action, quotaName, target.Namespace, cloudContext, err)
		}
		actionsTotal.WithLabelValues(action.String(), result).Inc()
	}()

	switch action {
	case ActionZero, ActionCapacity:
		hard, capErr := desiredHard(action, target)
		if capErr != nil {
			log.Error(capErr, "invalid capacity, throttling namespace to zero")
		}
		err = createOrUpdateQuota(ctx, rc, target.Namespace, quotaName, hard)
	case ActionRemove:
		if err = rc.Delete(ctx, mirror.KindResourceQuota, target.Namespace, quotaName); err == nil {
			_, err = s.store.DeleteMany(ctx, []*mirror.Record{rec})
		}
	}
	if err != nil {
		return
	}
	log.Info("Applied schedule", "action", action, "project", target.Project)
	s.refresh(ctx, cloudContext, target.Namespace)
	return nil
}

// refresh re-mirrors the quotas of namespace. A skipped refresh is picked up by the next reconciliation.
func (s *Scheduler) refresh(ctx context.Context, cloudContext, namespace string) {
	if s.refresher == nil {
		return
	}
	log := logr.FromContextOrDiscard(ctx)
	ran, err := s.refresher.Reconcile(ctx, mirror.KindResourceQuota, cloudContext, mirror.ListParams{Namespace: namespace}, true)
	switch {
	case err != nil:
		log.Error(err, "cannot refresh resource quotas", "namespace", namespace, "cloudContext", cloudContext)
	case !ran:
		log.V(2).Info("resource quota refresh skipped", "namespace", namespace, "cloudContext", cloudContext)
	}
}

// capacityHard returns the quota granting the configured capacity of target.
func capacityHard(target mirror.ScheduleTarget) (map[string]any, error) {
	var errs []error
	for name, value := range map[string]string{"cpu": target.CPU, "memory": target.Memory} {
		if _, err := resource.ParseQuantity(value); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", name, value, err))
		}
	}
	if target.Pods < 0 {
		errs = append(errs, fmt.Errorf("pods %d must not be negative", target.Pods))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return map[string]any{
		"cpu":    target.CPU,
		"memory": target.Memory,
		"pods":   strconv.FormatInt(target.Pods, 10),
	}, nil
}

// createOrUpdateQuota makes spec.hard of the named quota contain hard. Other limits of an existing quota are kept.
func createOrUpdateQuota(ctx context.Context, rc mirror.ResourceClient, namespace, name string, hard map[string]any) error {
	live, err := rc.Get(ctx, mirror.KindResourceQuota, namespace, name)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return err
		}
		_, err = rc.Create(ctx, mirror.KindResourceQuota, namespace, map[string]any{
			"apiVersion": "v1",
			"kind":       "ResourceQuota",
			"metadata": map[string]any{
				"name":      name,
				"namespace": namespace,
				"labels":    map[string]any{ManagedByLabel: mirror.ProgramName},
			},
			"spec": map[string]any{"hard": hard},
		})
		return err
	}
	patched, err := objutil.MergePatch(live, map[string]any{"spec": map[string]any{"hard": hard}})
	if err != nil {
		return err
	}
	_, err = rc.Update(ctx, mirror.KindResourceQuota, namespace, patched)
	return err
}
