// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	commontypes "github.com/gardener/cloud-mirror/api/common/types"
	"github.com/gardener/cloud-mirror/api/mirror"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// MirrorConfig defines the configuration for the cloud-mirror daemon.
//
//nolint:govet // fieldalignment: intentional layout for readability of the config file
type MirrorConfig struct {
	metav1.TypeMeta `json:",inline"`
	// Server is basic server configuration for the mirror daemon.
	Server commontypes.ServerConfig `json:"server"`
	// ClientConnection defines the configuration for constructing kube clients.
	ClientConnection ClientConnectionConfig `json:"clientConnection"`
	// LeaderElection defines the configuration for leader election.
	LeaderElection LeaderElectionConfig `json:"leaderElection"`
	// CloudContexts are the clusters that are mirrored.
	CloudContexts []CloudContextConfig `json:"cloudContexts"`
	// Reconciler is the configuration of the reconciliation engine.
	Reconciler ReconcilerConfig `json:"reconciler"`
	// Scheduler is the configuration of the resource quota time scheduler.
	Scheduler SchedulerConfig `json:"scheduler"`
	// Store is the configuration of the mirror store.
	Store StoreConfig `json:"store"`
}

// ClientConnectionConfig contains details for constructing a client.
type ClientConnectionConfig struct {
	// KubeConfigPath is the path to kube-config. Falls back to the default loading rules if empty.
	KubeConfigPath string `json:"kubeConfigPath,omitempty"`
	// Burst allows extra queries to accumulate when a client is exceeding its rate.
	Burst int `json:"burst,omitempty"`
	// QPS controls the number of queries per second allowed for this connection.
	QPS float32 `json:"qps,omitempty"`
	// Timeout is the timeout of a single request to a cluster.
	Timeout metav1.Duration `json:"timeout,omitempty"`
}

// LeaderElectionConfig defines the configuration for the leader election.
type LeaderElectionConfig struct {
	// ResourceName determines the name of the resource that leader election
	// will use for holding the leader lock.
	ResourceName string `json:"resourceName"`
	// ResourceNamespace determines the namespace in which the leader
	// election resource will be created.
	ResourceNamespace string `json:"resourceNamespace"`
	// LeaseDuration is the duration that non-leader candidates will wait
	// after observing a leadership renewal until attempting to acquire
	// leadership of the occupied but un-renewed leader slot.
	LeaseDuration metav1.Duration `json:"leaseDuration"`
	// RenewDeadline is the interval between attempts by the acting leader to
	// renew its leadership before it stops leading.
	RenewDeadline metav1.Duration `json:"renewDeadline"`
	// RetryPeriod is the duration leader elector clients should wait
	// between attempting acquisition and renewal of leadership.
	RetryPeriod metav1.Duration `json:"retryPeriod"`
	// Enabled specifies whether leader election is enabled. Set this
	// to true when running replicated instances of the mirror for high availability.
	Enabled bool `json:"enabled"`
}

// CloudContextConfig binds a cloud context name to a kubeconfig context.
type CloudContextConfig struct {
	// Name is the cloud context name used as partition key of mirrored records.
	Name string `json:"name"`
	// KubeConfigContext is the kubeconfig context used to reach the cluster. Defaults to Name.
	KubeConfigContext string `json:"kubeConfigContext,omitempty"`
}

// LockBackend selects the implementation of the reconciliation locks.
type LockBackend string

const (
	// LockBackendLocal keeps locks in process memory.
	LockBackendLocal LockBackend = "local"
	// LockBackendLease keeps locks as coordination.k8s.io Leases in the control cluster.
	LockBackendLease LockBackend = "lease"
)

// ReconcilerConfig is the configuration of the reconciliation engine.
type ReconcilerConfig struct {
	// Interval is the period between two full reconciliations of a cloud context.
	Interval metav1.Duration `json:"interval"`
	// Workers is the number of workers draining the reconciliation queue.
	Workers int `json:"workers"`
	// BatchParallelism is the maximum number of per-object mapping tasks run in parallel in batch mode.
	BatchParallelism int `json:"batchParallelism"`
	// ClearStale tells whether mirror records of vanished remote objects are deleted.
	ClearStale *bool `json:"clearStale,omitempty"`
	// Kinds restricts reconciliation to the given kinds. All supported kinds are reconciled if empty.
	Kinds []mirror.Kind `json:"kinds,omitempty"`
	// LockBackend selects the lock implementation.
	LockBackend LockBackend `json:"lockBackend"`
	// LockNamespace is the namespace holding lock leases when LockBackend is lease.
	LockNamespace string `json:"lockNamespace,omitempty"`
	// LockLeaseDuration is the time after which an unreleased lock lease is considered abandoned.
	LockLeaseDuration metav1.Duration `json:"lockLeaseDuration,omitempty"`
}

// SchedulerConfig is the configuration of the resource quota time scheduler.
type SchedulerConfig struct {
	// Enabled tells whether the scheduler runs.
	Enabled bool `json:"enabled"`
	// Interval is the period between two scheduler evaluations.
	Interval metav1.Duration `json:"interval"`
	// ProjectsFile is the path of the YAML file holding the schedule targets.
	ProjectsFile string `json:"projectsFile,omitempty"`
	// TimeZone is the IANA time zone the clock times of schedule targets are given in. Defaults to the local time zone.
	TimeZone string `json:"timeZone,omitempty"`
}

// StoreBackend selects the implementation of the mirror store.
type StoreBackend string

const (
	// StoreBackendMemory keeps mirror records in memory.
	StoreBackendMemory StoreBackend = "memory"
	// StoreBackendBadger persists mirror records in a BadgerDB database.
	StoreBackendBadger StoreBackend = "badger"
)

// StoreConfig is the configuration of the mirror store.
type StoreConfig struct {
	// Backend selects the store implementation.
	Backend StoreBackend `json:"backend"`
	// Path is the database directory for the badger backend.
	Path string `json:"path,omitempty"`
	// GCInterval is the period of value log garbage collection for the badger backend.
	GCInterval metav1.Duration `json:"gcInterval,omitempty"`
}
