// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package kinds

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/objutil"
	"github.com/gardener/cloud-mirror/common/podutil"
	"github.com/gardener/cloud-mirror/mirror/mapper"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// Record field names shared by several kinds.
const (
	FieldCPURequest    = "cpu_request"
	FieldCPULimit      = "cpu_limit"
	FieldCPUUsage      = "cpu_usage"
	FieldMemoryRequest = "memory_request"
	FieldMemoryLimit   = "memory_limit"
	FieldMemoryUsage   = "memory_usage"
	FieldStatus        = "status"
)

func setResourceFields(rec *mirror.Record, requests, limits corev1.ResourceList) {
	cpuReq, memReq := objutil.ResourceListToUsage(requests)
	cpuLim, memLim := objutil.ResourceListToUsage(limits)
	rec.SetFloat(FieldCPURequest, cpuReq)
	rec.SetFloat(FieldCPULimit, cpuLim)
	rec.SetInt(FieldMemoryRequest, memReq)
	rec.SetInt(FieldMemoryLimit, memLim)
}

func decodePodSpec(raw map[string]any) (spec corev1.PodSpec, err error) {
	if raw == nil {
		return
	}
	err = runtime.DefaultUnstructuredConverter.FromUnstructured(raw, &spec)
	return
}

// podHook sets container resource sums, container counts and restarts of a pod.
func podHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	var pod corev1.Pod
	if err := objutil.FromUnstructuredMap(raw, &pod); err != nil {
		return err
	}
	requests, limits := podutil.AggregateContainerResources(&pod.Spec)
	setResourceFields(rec, requests, limits)

	images := make([]string, 0, len(pod.Spec.Containers))
	for _, c := range pod.Spec.Containers {
		images = append(images, c.Image)
	}
	rec.SetString("images", strings.Join(images, ","))
	rec.SetInt("containers", int64(len(pod.Spec.Containers)))
	rec.SetInt("ready_containers", podutil.ReadyContainerCount(&pod.Status))
	rec.SetInt("restarts", podutil.RestartCount(&pod.Status))
	ready := ""
	if _, cond := podutil.GetPodCondition(&pod.Status, corev1.PodReady); cond != nil {
		ready = string(cond.Status)
	}
	rec.SetString("ready", ready)
	return nil
}

// podUsageHook copies the pod usage snapshot. Absent metrics leave usage at zero.
func podUsageHook(_ context.Context, rec *mirror.Record, _ map[string]any, extra mirror.ExtraData) error {
	usage := extra.PodMetrics[rec.Key()]
	rec.SetFloat(FieldCPUUsage, usage.CPU)
	rec.SetInt(FieldMemoryUsage, usage.Memory)
	return nil
}

// nodeUsageHook copies the node usage snapshot. Absent metrics leave usage at zero.
func nodeUsageHook(_ context.Context, rec *mirror.Record, _ map[string]any, extra mirror.ExtraData) error {
	usage := extra.NodeMetrics[rec.Name]
	rec.SetFloat(FieldCPUUsage, usage.CPU)
	rec.SetInt(FieldMemoryUsage, usage.Memory)
	return nil
}

// nodePodsHook aggregates the non-terminated pods scheduled onto the node.
func nodePodsHook(_ context.Context, rec *mirror.Record, _ map[string]any, extra mirror.ExtraData) error {
	var pods []corev1.Pod
	for _, raw := range extra.Pods {
		if mapper.LookupString(raw, "spec.nodeName") != rec.Name {
			continue
		}
		var pod corev1.Pod
		if err := objutil.FromUnstructuredMap(raw, &pod); err != nil {
			return err
		}
		if podutil.IsTerminated(&pod) {
			continue
		}
		pods = append(pods, pod)
	}
	requests, limits := podutil.AggregatePodsResources(pods)
	setResourceFields(rec, requests, limits)
	rec.SetInt("pods_allocated", int64(len(pods)))
	return nil
}

// nodeAddressesHook maps status.addresses as address type to address.
func nodeAddressesHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	addresses := make(map[string]any)
	for _, item := range mapper.LookupSlice(raw, "status.addresses") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		addresses[mapper.LookupString(m, "type")] = mapper.LookupString(m, "address")
	}
	rec.SetKeyValues("addresses", mapper.NormalizeKeyValues(addresses))
	return nil
}

// conditionHook stores the status of the condition of the given type found in status.conditions.
func conditionHook(field, conditionType string) mapper.Hook {
	return func(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
		status := ""
		for _, item := range mapper.LookupSlice(raw, "status.conditions") {
			m, ok := item.(map[string]any)
			if ok && mapper.LookupString(m, "type") == conditionType {
				status = mapper.LookupString(m, "status")
				break
			}
		}
		rec.SetString(field, status)
		return nil
	}
}

// templateResourcesHook sums container resources of the pod template at the given path.
func templateResourcesHook(path string) mapper.Hook {
	return func(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
		spec, err := decodePodSpec(mapper.LookupMap(raw, path))
		if err != nil {
			return err
		}
		requests, limits := podutil.AggregateContainerResources(&spec)
		setResourceFields(rec, requests, limits)
		return nil
	}
}

// ownerHook stores the kind and name of the controlling owner reference as "Kind/name".
func ownerHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	owner := ""
	for _, item := range mapper.LookupSlice(raw, "metadata.ownerReferences") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if controller, _ := m["controller"].(bool); controller || owner == "" {
			owner = mapper.LookupString(m, "kind") + "/" + mapper.LookupString(m, "name")
		}
	}
	rec.SetString("owner", owner)
	return nil
}

// namespacedRefHook stores a reference object at path as "namespace/name".
func namespacedRefHook(field, path string) mapper.Hook {
	return func(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
		ref := mapper.LookupMap(raw, path)
		if ref == nil {
			rec.SetString(field, "")
			return nil
		}
		name := mapper.LookupString(ref, "name")
		if ns := mapper.LookupString(ref, "namespace"); ns != "" {
			name = ns + "/" + name
		}
		rec.SetString(field, name)
		return nil
	}
}

// cronJobActiveHook counts the jobs currently run by a cron job. status.active is omitted by the API when empty.
func cronJobActiveHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	active := mapper.LookupSlice(raw, "status.active")
	names := make([]string, 0, len(active))
	for _, item := range active {
		if m, ok := item.(map[string]any); ok {
			names = append(names, mapper.LookupString(m, "name"))
		}
	}
	rec.SetInt("active", int64(len(active)))
	rec.SetString("active_jobs", strings.Join(names, ","))
	return nil
}

// jobStatusHook derives a single status from the job conditions.
func jobStatusHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	status := "Running"
	for _, item := range mapper.LookupSlice(raw, "status.conditions") {
		m, ok := item.(map[string]any)
		if !ok || mapper.LookupString(m, "status") != "True" {
			continue
		}
		switch t := mapper.LookupString(m, "type"); t {
		case "Complete", "Failed", "Suspended":
			status = t
		}
	}
	rec.SetString(FieldStatus, status)
	return nil
}

// servicePortsHook renders spec.ports as "name:port/protocol->targetPort" entries.
func servicePortsHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	var ports []string
	for _, item := range mapper.LookupSlice(raw, "spec.ports") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p := fmt.Sprintf("%s/%s", mapper.LookupString(m, "port"), mapper.LookupString(m, "protocol"))
		if name := mapper.LookupString(m, "name"); name != "" {
			p = name + ":" + p
		}
		if target := mapper.LookupString(m, "targetPort"); target != "" {
			p += "->" + target
		}
		if nodePort := mapper.LookupString(m, "nodePort"); nodePort != "" {
			p += " (node " + nodePort + ")"
		}
		ports = append(ports, p)
	}
	rec.SetString("ports", strings.Join(ports, ","))
	return nil
}

// endpointsHook flattens the subsets of an Endpoints object.
func endpointsHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	var addresses, notReady, ports []string
	for _, item := range mapper.LookupSlice(raw, "subsets") {
		subset, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, a := range mapper.LookupSlice(subset, "addresses") {
			if m, ok := a.(map[string]any); ok {
				addresses = append(addresses, mapper.LookupString(m, "ip"))
			}
		}
		for _, a := range mapper.LookupSlice(subset, "notReadyAddresses") {
			if m, ok := a.(map[string]any); ok {
				notReady = append(notReady, mapper.LookupString(m, "ip"))
			}
		}
		for _, p := range mapper.LookupSlice(subset, "ports") {
			if m, ok := p.(map[string]any); ok {
				ports = append(ports, fmt.Sprintf("%s/%s", mapper.LookupString(m, "port"), mapper.LookupString(m, "protocol")))
			}
		}
	}
	slices.Sort(addresses)
	slices.Sort(notReady)
	rec.SetString("addresses", strings.Join(addresses, ","))
	rec.SetString("not_ready_addresses", strings.Join(notReady, ","))
	rec.SetString("ports", strings.Join(slices.Compact(slices.Sorted(slices.Values(ports))), ","))
	rec.SetInt("ready_count", int64(len(addresses)))
	return nil
}

// ingressRulesHook flattens host and path rules of an Ingress.
func ingressRulesHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	var hosts, paths []string
	for _, item := range mapper.LookupSlice(raw, "spec.rules") {
		rule, ok := item.(map[string]any)
		if !ok {
			continue
		}
		host := mapper.LookupString(rule, "host")
		if host != "" {
			hosts = append(hosts, host)
		}
		for _, p := range mapper.LookupSlice(rule, "http.paths") {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			backend := mapper.LookupString(m, "backend.service.name")
			if port := mapper.LookupString(m, "backend.service.port.number"); port != "" {
				backend += ":" + port
			} else if port = mapper.LookupString(m, "backend.service.port.name"); port != "" {
				backend += ":" + port
			}
			paths = append(paths, host+mapper.LookupString(m, "path")+"->"+backend)
		}
	}
	rec.SetString("hosts", strings.Join(hosts, ","))
	rec.SetString("paths", strings.Join(paths, ","))
	return nil
}

// rbacRulesHook renders policy rules as "verbs on apiGroups/resources" lines.
func rbacRulesHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	rules := mapper.LookupSlice(raw, "rules")
	lines := make([]string, 0, len(rules))
	for _, item := range rules {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		target := joinList(m, "resources")
		if groups := joinList(m, "apiGroups"); groups != "" {
			target = groups + "/" + target
		}
		if urls := joinList(m, "nonResourceURLs"); urls != "" {
			target = urls
		}
		line := joinList(m, "verbs") + " on " + target
		if names := joinList(m, "resourceNames"); names != "" {
			line += " [" + names + "]"
		}
		lines = append(lines, line)
	}
	rec.SetString("rules", strings.Join(lines, "\n"))
	rec.SetInt("rule_count", int64(len(lines)))
	return nil
}

func joinList(m map[string]any, key string) string {
	items, _ := m[key].([]any)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s := fmt.Sprint(item)
		if s == "" {
			s = `""`
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

// bindingHook maps the role reference and subjects of a (Cluster)RoleBinding.
func bindingHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	rec.SetString("role_ref", mapper.LookupString(raw, "roleRef.kind")+"/"+mapper.LookupString(raw, "roleRef.name"))
	subjects := mapper.LookupSlice(raw, "subjects")
	rendered := make([]string, 0, len(subjects))
	for _, item := range subjects {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := mapper.LookupString(m, "name")
		if ns := mapper.LookupString(m, "namespace"); ns != "" {
			name = ns + "/" + name
		}
		rendered = append(rendered, mapper.LookupString(m, "kind")+":"+name)
	}
	rec.SetString("subjects", strings.Join(rendered, ","))
	rec.SetInt("subject_count", int64(len(rendered)))
	return nil
}

// dataKeysHook stores the sorted keys of data and binaryData. Values are not inspected.
func dataKeysHook(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
	var keys []string
	for _, path := range []string{"data", "binaryData", "stringData"} {
		for k := range mapper.LookupMap(raw, path) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	rec.SetString("data_keys", strings.Join(keys, ","))
	rec.SetInt("data_count", int64(len(keys)))
	return nil
}

// nameListHook stores the names of the objects referenced by the list at path.
func nameListHook(field, path string) mapper.Hook {
	return func(_ context.Context, rec *mirror.Record, raw map[string]any, _ mirror.ExtraData) error {
		items := mapper.LookupSlice(raw, path)
		names := make([]string, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				names = append(names, mapper.LookupString(m, "name"))
			}
		}
		rec.SetString(field, strings.Join(names, ","))
		return nil
	}
}

// redactSecretData blanks every secret value so that secret material never reaches the mirror.
// raw itself is left untouched.
func redactSecretData(raw map[string]any) map[string]any {
	redacted := maps.Clone(raw)
	for _, path := range []string{"data", "stringData"} {
		data := mapper.LookupMap(raw, path)
		if data == nil {
			continue
		}
		blank := make(map[string]any, len(data))
		for k := range data {
			blank[k] = ""
		}
		redacted[path] = blank
	}
	if annotations := mapper.LookupMap(raw, "metadata.annotations"); annotations != nil {
		metadata := maps.Clone(mapper.LookupMap(raw, "metadata"))
		annotations = maps.Clone(annotations)
		delete(annotations, corev1.LastAppliedConfigAnnotation)
		metadata["annotations"] = annotations
		redacted["metadata"] = metadata
	}
	return redacted
}

// secretAnnotationsHook drops the last applied configuration annotation, which embeds the secret data.
func secretAnnotationsHook(_ context.Context, rec *mirror.Record, _ map[string]any, _ mirror.ExtraData) error {
	rec.Annotations = slices.DeleteFunc(rec.Annotations, func(kv mirror.KeyValue) bool {
		return kv.ItemKey == corev1.LastAppliedConfigAnnotation
	})
	return nil
}
