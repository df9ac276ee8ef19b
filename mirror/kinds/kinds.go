// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package kinds holds the catalog of mirrored resource kinds: where to list them and how to map them.
package kinds

import (
	"fmt"
	"slices"

	"github.com/gardener/cloud-mirror/api/mirror"
	m "github.com/gardener/cloud-mirror/mirror/mapper"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Enrichment names the extra data a kind needs before its objects are mapped.
type Enrichment int

const (
	// EnrichNone needs no extra data.
	EnrichNone Enrichment = iota
	// EnrichPodUsage needs the pod usage snapshot.
	EnrichPodUsage
	// EnrichNodeUsage needs the node usage snapshot and the pods of the cluster.
	EnrichNodeUsage
)

// Descriptor binds a Kind to its remote API resource and its mapping table.
type Descriptor struct {
	// GVR is the remote API resource listed for the kind.
	GVR schema.GroupVersionResource
	// ObjectKind is the API kind of a single object, e.g. "Pod".
	ObjectKind string
	// BatchMode tells whether objects of the kind are mapped as independent batch tasks by default.
	BatchMode bool
	// Enrichment is the extra data fetched before mapping.
	Enrichment Enrichment
	// Table is the mapping table of the kind.
	Table m.Table
}

// Kind returns the mirror kind of the descriptor.
func (d Descriptor) Kind() mirror.Kind {
	return d.Table.Kind
}

// Namespaced tells whether objects of the kind live in namespaces.
func (d Descriptor) Namespaced() bool {
	return d.Table.Namespaced
}

// ListKind returns the API kind of a list of objects, e.g. "PodList".
func (d Descriptor) ListKind() string {
	return d.ObjectKind + "List"
}

var (
	core       = schema.GroupVersion{Version: "v1"}
	apps       = schema.GroupVersion{Group: "apps", Version: "v1"}
	batch      = schema.GroupVersion{Group: "batch", Version: "v1"}
	networking = schema.GroupVersion{Group: "networking.k8s.io", Version: "v1"}
	rbac       = schema.GroupVersion{Group: "rbac.authorization.k8s.io", Version: "v1"}
	storage    = schema.GroupVersion{Group: "storage.k8s.io", Version: "v1"}
	apireg     = schema.GroupVersion{Group: "apiregistration.k8s.io", Version: "v1"}
	scheduling = schema.GroupVersion{Group: "scheduling.k8s.io", Version: "v1"}
)

func describe(kind mirror.Kind, gv schema.GroupVersion, resource, objectKind string, namespaced bool, rules []m.FieldRule, hooks ...m.Hook) Descriptor {
	return Descriptor{
		GVR:        gv.WithResource(resource),
		ObjectKind: objectKind,
		Table: m.Table{
			Kind:       kind,
			Namespaced: namespaced,
			Rules:      rules,
			Hooks:      hooks,
		},
	}
}

func batched(d Descriptor) Descriptor {
	d.BatchMode = true
	return d
}

func enriched(e Enrichment, d Descriptor) Descriptor {
	d.Enrichment = e
	return d
}

func withDetailFilter(filter func(map[string]any) map[string]any, d Descriptor) Descriptor {
	d.Table.DetailFilter = filter
	return d
}

var workloadStatus = []m.FieldRule{
	m.Rule("replicas", "spec.replicas", m.Int),
	m.Rule("ready_replicas", "status.readyReplicas", m.Int),
	m.Rule("available_replicas", "status.availableReplicas", m.Int),
	m.Rule("observed_generation", "status.observedGeneration", m.Int),
	m.Rule("selector", "spec.selector.matchLabels", m.KeyValues),
}

func rules(groups ...[]m.FieldRule) []m.FieldRule {
	return slices.Concat(groups...)
}

var catalog = []Descriptor{
	enriched(EnrichNodeUsage, describe(mirror.KindNode, core, "nodes", "Node", false, []m.FieldRule{
		m.Rule("pod_cidr", "spec.podCIDR", m.String),
		m.Rule("provider_id", "spec.providerID", m.String),
		m.Rule("unschedulable", "spec.unschedulable", m.Bool),
		m.Rule("kubelet_version", "status.nodeInfo.kubeletVersion", m.String),
		m.Rule("os_image", "status.nodeInfo.osImage", m.String),
		m.Rule("kernel_version", "status.nodeInfo.kernelVersion", m.String),
		m.Rule("container_runtime_version", "status.nodeInfo.containerRuntimeVersion", m.String),
		m.Rule("architecture", "status.nodeInfo.architecture", m.String),
		m.Rule("operating_system", "status.nodeInfo.operatingSystem", m.String),
		m.Rule("cpu_capacity", "status.capacity.cpu", m.CPUCores),
		m.Rule("memory_capacity", "status.capacity.memory", m.MemoryBytes),
		m.Rule("pods_capacity", "status.capacity.pods", m.Int),
		m.Rule("cpu_allocatable", "status.allocatable.cpu", m.CPUCores),
		m.Rule("memory_allocatable", "status.allocatable.memory", m.MemoryBytes),
		m.Rule("pods_allocatable", "status.allocatable.pods", m.Int),
	}, conditionHook("ready", "Ready"), nodeAddressesHook, nodePodsHook, nodeUsageHook)),

	describe(mirror.KindNamespace, core, "namespaces", "Namespace", false, []m.FieldRule{
		m.Rule(FieldStatus, "status.phase", m.String),
	}),

	batched(enriched(EnrichPodUsage, describe(mirror.KindPod, core, "pods", "Pod", true, []m.FieldRule{
		m.Rule(FieldStatus, "status.phase", m.String),
		m.Rule("node_name", "spec.nodeName", m.String),
		m.Rule("pod_ip", "status.podIP", m.String),
		m.Rule("host_ip", "status.hostIP", m.String),
		m.Rule("qos_class", "status.qosClass", m.String),
		m.Rule("restart_policy", "spec.restartPolicy", m.String),
		m.Rule("service_account", "spec.serviceAccountName", m.String),
		m.Rule("priority_class", "spec.priorityClassName", m.String),
		m.Rule("start_time", "status.startTime", m.Timestamp),
	}, podHook, ownerHook, podUsageHook))),

	describe(mirror.KindDeployment, apps, "deployments", "Deployment", true, rules(workloadStatus, []m.FieldRule{
		m.Rule("strategy", "spec.strategy.type", m.String),
		m.Rule("updated_replicas", "status.updatedReplicas", m.Int),
		m.Rule("unavailable_replicas", "status.unavailableReplicas", m.Int),
		m.Rule("min_ready_seconds", "spec.minReadySeconds", m.Int),
		m.Rule("revision_history_limit", "spec.revisionHistoryLimit", m.Int),
		m.Rule("paused", "spec.paused", m.Bool),
	}), templateResourcesHook("spec.template.spec"), conditionHook("available", "Available")),

	batched(describe(mirror.KindReplicaSet, apps, "replicasets", "ReplicaSet", true, rules(workloadStatus, []m.FieldRule{
		m.Rule("fully_labeled_replicas", "status.fullyLabeledReplicas", m.Int),
	}), templateResourcesHook("spec.template.spec"), ownerHook)),

	describe(mirror.KindService, core, "services", "Service", true, []m.FieldRule{
		m.Rule("type", "spec.type", m.StringOr("ClusterIP")),
		m.Rule("cluster_ip", "spec.clusterIP", m.String),
		m.Rule("external_ips", "spec.externalIPs", m.Join),
		m.Rule("session_affinity", "spec.sessionAffinity", m.StringOr("None")),
		m.Rule("external_traffic_policy", "spec.externalTrafficPolicy", m.String),
		m.Rule("external_name", "spec.externalName", m.String),
		m.Rule("selector", "spec.selector", m.KeyValues),
		m.Rule("load_balancer", "status.loadBalancer.ingress", m.YAML),
	}, servicePortsHook),

	describe(mirror.KindCronJob, batch, "cronjobs", "CronJob", true, []m.FieldRule{
		m.Rule("schedule", "spec.schedule", m.String),
		m.Rule("time_zone", "spec.timeZone", m.String),
		m.Rule("suspend", "spec.suspend", m.Bool),
		m.Rule("concurrency_policy", "spec.concurrencyPolicy", m.StringOr("Allow")),
		m.Rule("starting_deadline_seconds", "spec.startingDeadlineSeconds", m.Int),
		m.Rule("successful_jobs_history_limit", "spec.successfulJobsHistoryLimit", m.Int),
		m.Rule("failed_jobs_history_limit", "spec.failedJobsHistoryLimit", m.Int),
		m.Rule("last_schedule_time", "status.lastScheduleTime", m.Timestamp),
		m.Rule("last_successful_time", "status.lastSuccessfulTime", m.Timestamp),
	}, cronJobActiveHook, templateResourcesHook("spec.jobTemplate.spec.template.spec")),

	describe(mirror.KindJob, batch, "jobs", "Job", true, []m.FieldRule{
		m.Rule("completions", "spec.completions", m.Int),
		m.Rule("parallelism", "spec.parallelism", m.Int),
		m.Rule("backoff_limit", "spec.backoffLimit", m.Int),
		m.Rule("active", "status.active", m.Int),
		m.Rule("succeeded", "status.succeeded", m.Int),
		m.Rule("failed", "status.failed", m.Int),
		m.Rule("start_time", "status.startTime", m.Timestamp),
		m.Rule("completion_time", "status.completionTime", m.Timestamp),
	}, jobStatusHook, ownerHook, templateResourcesHook("spec.template.spec")),

	describe(mirror.KindResourceQuota, core, "resourcequotas", "ResourceQuota", true, []m.FieldRule{
		m.Rule("hard", "spec.hard", m.KeyValues),
		m.Rule("used", "status.used", m.KeyValues),
		m.Rule("scopes", "spec.scopes", m.Join),
		m.Rule("cpu_hard", "spec.hard.cpu", m.CPUCores),
		m.Rule("memory_hard", "spec.hard.memory", m.MemoryBytes),
		m.Rule("pods_hard", "spec.hard.pods", m.Int),
		m.Rule("cpu_used", "status.used.cpu", m.CPUCores),
		m.Rule("memory_used", "status.used.memory", m.MemoryBytes),
		m.Rule("pods_used", "status.used.pods", m.Int),
	}),

	describe(mirror.KindLimitRange, core, "limitranges", "LimitRange", true, []m.FieldRule{
		m.Rule("limits", "spec.limits", m.YAML),
		m.Rule("limit_count", "spec.limits", m.Count),
	}),

	withDetailFilter(redactSecretData, describe(mirror.KindSecret, core, "secrets", "Secret", true, []m.FieldRule{
		m.Rule("type", "type", m.StringOr("Opaque")),
		m.Rule("immutable", "immutable", m.Bool),
	}, dataKeysHook, secretAnnotationsHook)),

	describe(mirror.KindConfigMap, core, "configmaps", "ConfigMap", true, []m.FieldRule{
		m.Rule("data", "data", m.KeyValues),
		m.Rule("immutable", "immutable", m.Bool),
	}, dataKeysHook),

	describe(mirror.KindNetworkPolicy, networking, "networkpolicies", "NetworkPolicy", true, []m.FieldRule{
		m.Rule("pod_selector", "spec.podSelector.matchLabels", m.KeyValues),
		m.Rule("policy_types", "spec.policyTypes", m.Join),
		m.Rule("ingress", "spec.ingress", m.YAML),
		m.Rule("egress", "spec.egress", m.YAML),
	}),

	describe(mirror.KindRole, rbac, "roles", "Role", true, nil, rbacRulesHook),

	describe(mirror.KindClusterRole, rbac, "clusterroles", "ClusterRole", false, []m.FieldRule{
		m.Rule("aggregation_rule", "aggregationRule", m.YAML),
	}, rbacRulesHook),

	describe(mirror.KindStorageClass, storage, "storageclasses", "StorageClass", false, []m.FieldRule{
		m.Rule("provisioner", "provisioner", m.String),
		m.Rule("reclaim_policy", "reclaimPolicy", m.StringOr("Delete")),
		m.Rule("volume_binding_mode", "volumeBindingMode", m.StringOr("Immediate")),
		m.Rule("allow_volume_expansion", "allowVolumeExpansion", m.Bool),
		m.Rule("parameters", "parameters", m.KeyValues),
	}),

	describe(mirror.KindStatefulSet, apps, "statefulsets", "StatefulSet", true, rules(workloadStatus, []m.FieldRule{
		m.Rule("service_name", "spec.serviceName", m.String),
		m.Rule("pod_management_policy", "spec.podManagementPolicy", m.StringOr("OrderedReady")),
		m.Rule("update_strategy", "spec.updateStrategy.type", m.StringOr("RollingUpdate")),
		m.Rule("current_replicas", "status.currentReplicas", m.Int),
		m.Rule("updated_replicas", "status.updatedReplicas", m.Int),
		m.Rule("volume_claim_templates", "spec.volumeClaimTemplates", m.Count),
	}), templateResourcesHook("spec.template.spec")),

	describe(mirror.KindPersistentVolume, core, "persistentvolumes", "PersistentVolume", false, []m.FieldRule{
		m.Rule("capacity", "spec.capacity.storage", m.MemoryBytes),
		m.Rule("access_modes", "spec.accessModes", m.Join),
		m.Rule("reclaim_policy", "spec.persistentVolumeReclaimPolicy", m.String),
		m.Rule("storage_class", "spec.storageClassName", m.String),
		m.Rule("volume_mode", "spec.volumeMode", m.StringOr("Filesystem")),
		m.Rule(FieldStatus, "status.phase", m.String),
		m.Rule("reason", "status.reason", m.String),
	}, namespacedRefHook("claim_ref", "spec.claimRef")),

	describe(mirror.KindIngress, networking, "ingresses", "Ingress", true, []m.FieldRule{
		m.Rule("ingress_class", "spec.ingressClassName", m.String),
		m.Rule("default_backend", "spec.defaultBackend", m.YAML),
		m.Rule("tls", "spec.tls", m.YAML),
		m.Rule("load_balancer", "status.loadBalancer.ingress", m.YAML),
	}, ingressRulesHook),

	describe(mirror.KindDaemonSet, apps, "daemonsets", "DaemonSet", true, []m.FieldRule{
		m.Rule("selector", "spec.selector.matchLabels", m.KeyValues),
		m.Rule("update_strategy", "spec.updateStrategy.type", m.StringOr("RollingUpdate")),
		m.Rule("desired_number_scheduled", "status.desiredNumberScheduled", m.Int),
		m.Rule("current_number_scheduled", "status.currentNumberScheduled", m.Int),
		m.Rule("number_ready", "status.numberReady", m.Int),
		m.Rule("number_available", "status.numberAvailable", m.Int),
		m.Rule("number_misscheduled", "status.numberMisscheduled", m.Int),
		m.Rule("updated_number_scheduled", "status.updatedNumberScheduled", m.Int),
		m.Rule("node_selector", "spec.template.spec.nodeSelector", m.KeyValues),
	}, templateResourcesHook("spec.template.spec")),

	batched(describe(mirror.KindEndpoint, core, "endpoints", "Endpoints", true, nil, endpointsHook)),

	batched(describe(mirror.KindEvent, core, "events", "Event", true, []m.FieldRule{
		m.Rule("type", "type", m.String),
		m.Rule("reason", "reason", m.String),
		m.Rule("message", "message", m.String),
		m.Rule("object_kind", "involvedObject.kind", m.String),
		m.Rule("object_name", "involvedObject.name", m.String),
		m.Rule("object_namespace", "involvedObject.namespace", m.String),
		m.Rule("source", "source.component", m.String),
		m.Rule("count", "count", m.Int),
		m.Rule("first_timestamp", "firstTimestamp", m.Timestamp),
		m.Rule("last_timestamp", "lastTimestamp", m.Timestamp),
	})),

	describe(mirror.KindPersistentVolumeClaim, core, "persistentvolumeclaims", "PersistentVolumeClaim", true, []m.FieldRule{
		m.Rule(FieldStatus, "status.phase", m.String),
		m.Rule("volume_name", "spec.volumeName", m.String),
		m.Rule("storage_class", "spec.storageClassName", m.String),
		m.Rule("access_modes", "spec.accessModes", m.Join),
		m.Rule("volume_mode", "spec.volumeMode", m.StringOr("Filesystem")),
		m.Rule("request", "spec.resources.requests.storage", m.MemoryBytes),
		m.Rule("capacity", "status.capacity.storage", m.MemoryBytes),
	}),

	describe(mirror.KindClusterRoleBinding, rbac, "clusterrolebindings", "ClusterRoleBinding", false, nil, bindingHook),

	describe(mirror.KindRoleBinding, rbac, "rolebindings", "RoleBinding", true, nil, bindingHook),

	describe(mirror.KindServiceAccount, core, "serviceaccounts", "ServiceAccount", true, []m.FieldRule{
		m.Rule("secret_count", "secrets", m.Count),
		m.Rule("automount_token", "automountServiceAccountToken", m.Bool),
	}, nameListHook("image_pull_secrets", "imagePullSecrets")),

	describe(mirror.KindAPIService, apireg, "apiservices", "APIService", false, []m.FieldRule{
		m.Rule("group", "spec.group", m.String),
		m.Rule("version", "spec.version", m.String),
		m.Rule("group_priority_minimum", "spec.groupPriorityMinimum", m.Int),
		m.Rule("version_priority", "spec.versionPriority", m.Int),
		m.Rule("insecure_skip_tls_verify", "spec.insecureSkipTLSVerify", m.Bool),
	}, namespacedRefHook("service", "spec.service"), conditionHook("available", "Available")),

	describe(mirror.KindPriorityClass, scheduling, "priorityclasses", "PriorityClass", false, []m.FieldRule{
		m.Rule("value", "value", m.Int),
		m.Rule("global_default", "globalDefault", m.Bool),
		m.Rule("preemption_policy", "preemptionPolicy", m.StringOr("PreemptLowerPriority")),
		m.Rule("description", "description", m.String),
	}),
}

var byKind = func() map[mirror.Kind]Descriptor {
	index := make(map[mirror.Kind]Descriptor, len(catalog))
	for _, d := range catalog {
		index[d.Kind()] = d
	}
	return index
}()

// Get returns the descriptor of the given kind.
func Get(kind mirror.Kind) (Descriptor, error) {
	d, ok := byKind[kind]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", mirror.ErrUnknownKind, kind)
	}
	return d, nil
}

// All returns the descriptors of every supported kind in reconciliation order.
func All() []Descriptor {
	return slices.Clone(catalog)
}

// Kinds returns every supported kind in reconciliation order.
func Kinds() []mirror.Kind {
	kinds := make([]mirror.Kind, 0, len(catalog))
	for _, d := range catalog {
		kinds = append(kinds, d.Kind())
	}
	return kinds
}

// Select returns the descriptors of the given kinds without duplicates, or of every kind if none are given.
func Select(kinds []mirror.Kind) ([]Descriptor, error) {
	if len(kinds) == 0 {
		return All(), nil
	}
	selected := make([]Descriptor, 0, len(kinds))
	for _, k := range kinds {
		d, err := Get(k)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(selected, func(s Descriptor) bool { return s.Kind() == k }) {
			continue
		}
		selected = append(selected, d)
	}
	return selected, nil
}

// ListKinds returns the list kind of every supported resource, keyed by resource.
func ListKinds() map[schema.GroupVersionResource]string {
	listKinds := make(map[schema.GroupVersionResource]string, len(catalog))
	for _, d := range catalog {
		listKinds[d.GVR] = d.ListKind()
	}
	return listKinds
}
