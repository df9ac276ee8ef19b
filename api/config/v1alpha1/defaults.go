// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"time"

	"github.com/gardener/cloud-mirror/api/common/constants"
	commontypes "github.com/gardener/cloud-mirror/api/common/types"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

const (
	defaultLeaderElectionResourceName = "cloud-mirror-leader-election"
	defaultLockNamespace              = "kube-system"
	// DefaultReconcileInterval is the default period between two full reconciliations.
	DefaultReconcileInterval = 5 * time.Minute
	// DefaultSchedulerInterval is the default period between two scheduler evaluations.
	DefaultSchedulerInterval = time.Minute
	// DefaultWorkers is the default number of reconciliation workers.
	DefaultWorkers = 4
	// DefaultBatchParallelism is the default parallelism of batch mode mapping.
	DefaultBatchParallelism = 8
)

// SetDefaults_MirrorConfig sets defaults for the complete MirrorConfig.
func SetDefaults_MirrorConfig(cfg *MirrorConfig) {
	SetDefaults_ServerConfig(&cfg.Server)
	SetDefaults_ClientConnectionConfig(&cfg.ClientConnection)
	SetDefaults_LeaderElectionConfig(&cfg.LeaderElection)
	SetDefaults_ReconcilerConfig(&cfg.Reconciler)
	SetDefaults_SchedulerConfig(&cfg.Scheduler)
	SetDefaults_StoreConfig(&cfg.Store)
	for i := range cfg.CloudContexts {
		if cfg.CloudContexts[i].KubeConfigContext == "" {
			cfg.CloudContexts[i].KubeConfigContext = cfg.CloudContexts[i].Name
		}
	}
}

// SetDefaults_ServerConfig sets defaults for the server configuration.
func SetDefaults_ServerConfig(serverConfig *commontypes.ServerConfig) {
	if serverConfig.HealthProbeBindAddress == "" {
		serverConfig.HealthProbeBindAddress = constants.DefaultHealthProbeBindAddress
	}
	if serverConfig.MetricsBindAddress == "" {
		serverConfig.MetricsBindAddress = constants.DefaultMetricsBindAddress
	}
	if serverConfig.GracefulShutdownTimeout.Duration == 0 {
		serverConfig.GracefulShutdownTimeout = metav1.Duration{Duration: constants.DefaultGracefulShutdownTimeout}
	}
}

// SetDefaults_ClientConnectionConfig sets defaults for the k8s client connection.
func SetDefaults_ClientConnectionConfig(clientConnConfig *ClientConnectionConfig) {
	if clientConnConfig.QPS == 0.0 {
		clientConnConfig.QPS = 100.0
	}
	if clientConnConfig.Burst == 0 {
		clientConnConfig.Burst = 120
	}
	if clientConnConfig.Timeout.Duration == 0 {
		clientConnConfig.Timeout = metav1.Duration{Duration: 60 * time.Second}
	}
}

// SetDefaults_LeaderElectionConfig sets defaults for the leader election of the mirror daemon.
func SetDefaults_LeaderElectionConfig(leaderElectionConfig *LeaderElectionConfig) {
	zero := metav1.Duration{}
	if leaderElectionConfig.LeaseDuration == zero {
		leaderElectionConfig.LeaseDuration = metav1.Duration{Duration: 15 * time.Second}
	}
	if leaderElectionConfig.RenewDeadline == zero {
		leaderElectionConfig.RenewDeadline = metav1.Duration{Duration: 10 * time.Second}
	}
	if leaderElectionConfig.RetryPeriod == zero {
		leaderElectionConfig.RetryPeriod = metav1.Duration{Duration: 2 * time.Second}
	}
	if leaderElectionConfig.ResourceName == "" {
		leaderElectionConfig.ResourceName = defaultLeaderElectionResourceName
	}
	if leaderElectionConfig.ResourceNamespace == "" {
		leaderElectionConfig.ResourceNamespace = defaultLockNamespace
	}
}

// SetDefaults_ReconcilerConfig sets defaults for the reconciliation engine.
func SetDefaults_ReconcilerConfig(reconcilerConfig *ReconcilerConfig) {
	if reconcilerConfig.Interval.Duration == 0 {
		reconcilerConfig.Interval = metav1.Duration{Duration: DefaultReconcileInterval}
	}
	if reconcilerConfig.Workers == 0 {
		reconcilerConfig.Workers = DefaultWorkers
	}
	if reconcilerConfig.BatchParallelism == 0 {
		reconcilerConfig.BatchParallelism = DefaultBatchParallelism
	}
	if reconcilerConfig.ClearStale == nil {
		reconcilerConfig.ClearStale = ptr.To(true)
	}
	if reconcilerConfig.LockBackend == "" {
		reconcilerConfig.LockBackend = LockBackendLocal
	}
	if reconcilerConfig.LockNamespace == "" {
		reconcilerConfig.LockNamespace = defaultLockNamespace
	}
	if reconcilerConfig.LockLeaseDuration.Duration == 0 {
		reconcilerConfig.LockLeaseDuration = metav1.Duration{Duration: 10 * time.Minute}
	}
}

// SetDefaults_SchedulerConfig sets defaults for the resource quota time scheduler.
func SetDefaults_SchedulerConfig(schedulerConfig *SchedulerConfig) {
	if schedulerConfig.Interval.Duration == 0 {
		schedulerConfig.Interval = metav1.Duration{Duration: DefaultSchedulerInterval}
	}
}

// SetDefaults_StoreConfig sets defaults for the mirror store.
func SetDefaults_StoreConfig(storeConfig *StoreConfig) {
	if storeConfig.Backend == "" {
		storeConfig.Backend = StoreBackendMemory
	}
	if storeConfig.GCInterval.Duration == 0 {
		storeConfig.GCInterval = metav1.Duration{Duration: 5 * time.Minute}
	}
}
