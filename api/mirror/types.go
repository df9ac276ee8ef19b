// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"maps"
	"slices"
	"time"

	commontypes "github.com/gardener/cloud-mirror/api/common/types"
)

const (
	// ProgramName is the name of the mirror daemon binary.
	ProgramName = "cloud-mirror"
	// LockNamePrefix is the prefix of every reconciliation lock name.
	LockNamePrefix = "cloud-mirror"
)

// Kind is the tag identifying a mirrored Kubernetes resource kind.
type Kind string

// Supported resource kinds. The values double as store table names.
const (
	KindNode                  Kind = "node"
	KindNamespace             Kind = "namespace"
	KindPod                   Kind = "pod"
	KindDeployment            Kind = "deployment"
	KindReplicaSet            Kind = "replica_set"
	KindService               Kind = "service"
	KindCronJob               Kind = "cron_job"
	KindJob                   Kind = "job"
	KindResourceQuota         Kind = "resource_quota"
	KindLimitRange            Kind = "limit_range"
	KindSecret                Kind = "secret"
	KindConfigMap             Kind = "config_map"
	KindNetworkPolicy         Kind = "network_policy"
	KindRole                  Kind = "role"
	KindClusterRole           Kind = "cluster_role"
	KindStorageClass          Kind = "storage_class"
	KindStatefulSet           Kind = "stateful_set"
	KindPersistentVolume      Kind = "persistent_volume"
	KindIngress               Kind = "ingress"
	KindDaemonSet             Kind = "daemon_set"
	KindEndpoint              Kind = "endpoint"
	KindEvent                 Kind = "event"
	KindPersistentVolumeClaim Kind = "persistent_volume_claim"
	KindClusterRoleBinding    Kind = "cluster_role_binding"
	KindRoleBinding           Kind = "role_binding"
	KindServiceAccount        Kind = "service_account"
	KindAPIService            Kind = "api_service"
	KindPriorityClass         Kind = "priority_class"
)

// KeyValue is one entry of a normalized key-value block such as labels or annotations.
type KeyValue struct {
	ItemKey   string `json:"item_key"`
	ItemValue string `json:"item_value"`
}

// Fields holds the kind specific values of a Record keyed by field name.
// Values are split by type so that a Record can be persisted and restored without losing type information.
type Fields struct {
	Strings   map[string]string     `json:"strings,omitempty"`
	Ints      map[string]int64      `json:"ints,omitempty"`
	Floats    map[string]float64    `json:"floats,omitempty"`
	Bools     map[string]bool       `json:"bools,omitempty"`
	KeyValues map[string][]KeyValue `json:"keyValues,omitempty"`
}

// Record is the locally mirrored state of one remote object.
// Records are values: a Store hands out copies and persists only what is explicitly passed to Store.Save.
type Record struct {
	Kind         Kind       `json:"kind"`
	CloudContext string     `json:"cloudContext"`
	Name         string     `json:"name"`
	Namespace    string     `json:"namespace,omitempty"`
	Created      time.Time  `json:"created"`
	Changed      time.Time  `json:"changed"`
	Refreshed    time.Time  `json:"refreshed"`
	Labels       []KeyValue `json:"labels,omitempty"`
	Annotations  []KeyValue `json:"annotations,omitempty"`
	// Detail is a YAML dump of the complete remote object.
	Detail string `json:"detail,omitempty"`
	Fields Fields `json:"fields"`
	// ResourceVersion is assigned by the Store on every save.
	ResourceVersion int64 `json:"resourceVersion"`
}

// NewRecord returns an empty Record for the given kind and natural key.
func NewRecord(kind Kind, cloudContext, name, namespace string) *Record {
	return &Record{
		Kind:         kind,
		CloudContext: cloudContext,
		Name:         name,
		Namespace:    namespace,
	}
}

// RecordKey returns the key identifying a record within one kind and cloud context.
// Cluster scoped records are keyed by name and namespaced records by "name:namespace".
func RecordKey(name, namespace string) string {
	if namespace == "" {
		return name
	}
	return name + ":" + namespace
}

// StoreKey returns the key identifying a record within one kind across all cloud contexts.
func StoreKey(cloudContext, name, namespace string) string {
	return cloudContext + "/" + RecordKey(name, namespace)
}

// Key returns the RecordKey of this record.
func (r *Record) Key() string {
	return RecordKey(r.Name, r.Namespace)
}

// StoreKey returns the StoreKey of this record.
func (r *Record) StoreKey() string {
	return StoreKey(r.CloudContext, r.Name, r.Namespace)
}

// DeepCopy returns a copy of the record sharing no mutable state with the receiver.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Labels = slices.Clone(r.Labels)
	out.Annotations = slices.Clone(r.Annotations)
	out.Fields = Fields{
		Strings: maps.Clone(r.Fields.Strings),
		Ints:    maps.Clone(r.Fields.Ints),
		Floats:  maps.Clone(r.Fields.Floats),
		Bools:   maps.Clone(r.Fields.Bools),
	}
	if r.Fields.KeyValues != nil {
		out.Fields.KeyValues = make(map[string][]KeyValue, len(r.Fields.KeyValues))
		for k, v := range r.Fields.KeyValues {
			out.Fields.KeyValues[k] = slices.Clone(v)
		}
	}
	return &out
}

// SetString sets the string field with the given name.
func (r *Record) SetString(name, value string) {
	if r.Fields.Strings == nil {
		r.Fields.Strings = make(map[string]string)
	}
	r.Fields.Strings[name] = value
}

// SetInt sets the integer field with the given name.
func (r *Record) SetInt(name string, value int64) {
	if r.Fields.Ints == nil {
		r.Fields.Ints = make(map[string]int64)
	}
	r.Fields.Ints[name] = value
}

// SetFloat sets the float field with the given name.
func (r *Record) SetFloat(name string, value float64) {
	if r.Fields.Floats == nil {
		r.Fields.Floats = make(map[string]float64)
	}
	r.Fields.Floats[name] = value
}

// SetBool sets the boolean field with the given name.
func (r *Record) SetBool(name string, value bool) {
	if r.Fields.Bools == nil {
		r.Fields.Bools = make(map[string]bool)
	}
	r.Fields.Bools[name] = value
}

// SetKeyValues sets the key-value list field with the given name.
func (r *Record) SetKeyValues(name string, value []KeyValue) {
	if r.Fields.KeyValues == nil {
		r.Fields.KeyValues = make(map[string][]KeyValue)
	}
	r.Fields.KeyValues[name] = value
}

// StringField returns the string field with the given name or "" if absent.
func (r *Record) StringField(name string) string {
	return r.Fields.Strings[name]
}

// IntField returns the integer field with the given name or 0 if absent.
func (r *Record) IntField(name string) int64 {
	return r.Fields.Ints[name]
}

// FloatField returns the float field with the given name or 0 if absent.
func (r *Record) FloatField(name string) float64 {
	return r.Fields.Floats[name]
}

// BoolField returns the boolean field with the given name or false if absent.
func (r *Record) BoolField(name string) bool {
	return r.Fields.Bools[name]
}

// KeyValuesField returns the key-value list field with the given name or nil if absent.
func (r *Record) KeyValuesField(name string) []KeyValue {
	return r.Fields.KeyValues[name]
}

// ListParams narrows a remote list call.
type ListParams struct {
	// Namespace restricts the list to one namespace. Empty lists across all namespaces.
	Namespace string `json:"namespace,omitempty"`
	// LabelSelector is a label selector in its string form.
	LabelSelector string `json:"labelSelector,omitempty"`
	// FieldSelector is a field selector in its string form.
	FieldSelector string `json:"fieldSelector,omitempty"`
}

// ResourceClient issues calls against a remote cluster API.
// Objects are exchanged as plain nested maps mirroring the upstream API schema.
type ResourceClient interface {
	// List returns every object of the given kind matching params.
	// Implementations must return an error rather than a partial result when any part of the listing fails.
	List(ctx context.Context, kind Kind, params ListParams) ([]map[string]any, error)
	// Get returns the object of the given kind identified by namespace and name.
	Get(ctx context.Context, kind Kind, namespace, name string) (map[string]any, error)
	// Create creates the given object and returns the created object.
	Create(ctx context.Context, kind Kind, namespace string, obj map[string]any) (map[string]any, error)
	// Update updates the given object and returns the updated object.
	Update(ctx context.Context, kind Kind, namespace string, obj map[string]any) (map[string]any, error)
	// Delete deletes the object of the given kind identified by namespace and name.
	Delete(ctx context.Context, kind Kind, namespace, name string) error
}

// Usage is a point-in-time resource usage sample.
type Usage struct {
	// CPU is the CPU usage in cores.
	CPU float64 `json:"cpu"`
	// Memory is the memory usage in bytes.
	Memory int64 `json:"memory"`
}

// MetricsClient fetches usage snapshots from the metrics API of a cluster.
type MetricsClient interface {
	// ListPodMetrics returns pod usage keyed by RecordKey(name, namespace).
	ListPodMetrics(ctx context.Context) (map[string]Usage, error)
	// ListNodeMetrics returns node usage keyed by node name.
	ListNodeMetrics(ctx context.Context) (map[string]Usage, error)
}

// ClientProvider hands out the clients for a cloud context.
type ClientProvider interface {
	// CloudContexts returns the names of all known cloud contexts.
	CloudContexts() []string
	// ResourceClient returns the ResourceClient for the given cloud context.
	ResourceClient(cloudContext string) (ResourceClient, error)
	// MetricsClient returns the MetricsClient for the given cloud context.
	MetricsClient(cloudContext string) (MetricsClient, error)
}

// Store is the keyed record store holding mirrored records. There is one logical table per Kind.
type Store interface {
	// Load returns a copy of the record identified by its natural key. found is false if no such record exists.
	Load(ctx context.Context, kind Kind, cloudContext, name, namespace string) (rec *Record, found bool, err error)
	// LoadAll returns copies of all records of the given kind belonging to the given cloud context.
	LoadAll(ctx context.Context, kind Kind, cloudContext string) ([]*Record, error)
	// Save creates or updates the given record and returns the stored copy.
	// The store assigns ResourceVersion and maintains Changed, which moves only when record content changes.
	Save(ctx context.Context, rec *Record) (*Record, error)
	// DeleteMany deletes the given records, ignoring records which no longer exist, and returns the number deleted.
	DeleteMany(ctx context.Context, recs []*Record) (int, error)
	// Close releases resources held by the store.
	Close() error
}

// LockService provides process wide named mutual exclusion.
type LockService interface {
	// TryAcquire acquires the named lock without blocking. It returns false if the lock is held elsewhere.
	TryAcquire(ctx context.Context, name string) bool
	// Release releases the named lock.
	Release(ctx context.Context, name string)
}

// Task is one unit of deferred work.
type Task func(ctx context.Context) error

// BatchResult summarizes the execution of a TaskQueue.
type BatchResult struct {
	// Succeeded is the number of tasks that completed without error.
	Succeeded int
	// Failed holds the errors of the tasks which failed.
	Failed []error
	// FinishErr is the error of the finish task, if any.
	FinishErr error
}

// TaskQueue schedules independent units of work followed by one finish unit which runs after all of them completed.
type TaskQueue interface {
	// Enqueue adds a task. Tasks may run in parallel and in any order.
	Enqueue(name string, task Task)
	// Finish sets the task that runs once after every enqueued task completed, irrespective of their outcome.
	Finish(task Task)
	// Run executes the queue to completion and blocks until it drained.
	Run(ctx context.Context) BatchResult
}

// ExtraData carries pre-fetched data made available to field mappers.
type ExtraData struct {
	// PodMetrics is pod usage keyed by RecordKey(name, namespace).
	PodMetrics map[string]Usage
	// NodeMetrics is node usage keyed by node name.
	NodeMetrics map[string]Usage
	// Pods are the raw pods of the cluster, used to aggregate per-node figures.
	Pods []map[string]any
}

// ScheduleTarget is one namespace level schedule evaluated by the resource quota time scheduler.
type ScheduleTarget struct {
	// Project is the name of the project owning the schedule.
	Project string `json:"project"`
	// Namespace is the namespace whose capacity is scheduled.
	Namespace string `json:"namespace"`
	// CloudContexts are the clusters the namespace is scheduled on.
	CloudContexts []string `json:"cloudContexts"`
	// StartupTime is the start of the active window as "HH:MM".
	StartupTime string `json:"startupTime"`
	// StopTime is the end of the active window as "HH:MM".
	StopTime string `json:"stopTime"`
	// ResourceSchedulerEnabled tells whether the quota is managed while inside the window.
	ResourceSchedulerEnabled bool `json:"resourceSchedulerEnabled"`
	// CPU is the CPU capacity granted inside the window, as a quantity string.
	CPU string `json:"cpu,omitempty"`
	// Memory is the memory capacity granted inside the window, as a quantity string.
	Memory string `json:"memory,omitempty"`
	// Pods is the pod count capacity granted inside the window.
	Pods int64 `json:"pods,omitempty"`
	// QuotaName is the name of the managed ResourceQuota object. Defaults to the namespace name.
	QuotaName string `json:"quotaName,omitempty"`
	// Changed is the time the schedule configuration was last modified.
	Changed time.Time `json:"changed,omitempty"`
}

// ProjectStore provides the configured schedule targets.
type ProjectStore interface {
	// ListScheduleTargets returns all schedule targets.
	ListScheduleTargets(ctx context.Context) ([]ScheduleTarget, error)
}

// Refresher reconciles a single kind for a cloud context.
type Refresher interface {
	// Reconcile runs one reconciliation pass and reports whether it ran.
	Reconcile(ctx context.Context, kind Kind, cloudContext string, params ListParams, clearStale bool) (bool, error)
}

// App represents an application process that wraps a mirror service, an application context and application cancel func.
//
// `main` entry-point functions that embed the mirror are expected to construct a new App instance via cli.LaunchApp and
// defer App.Cancel. They should block on <-App.Ctx.Done() and invoke cli.ShutdownApp.
type App struct {
	// Server is the mirror service.
	Server commontypes.Service
	// Ctx is the application context.
	Ctx context.Context
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
	// ShutdownTimeout bounds the time given to Server to stop.
	ShutdownTimeout time.Duration
}
