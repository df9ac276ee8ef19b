// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package podutil

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// GetPodCondition extracts the provided condition from the given status and returns that.
// Returns nil and -1 if the condition is not present, and the index of the located condition.
func GetPodCondition(status *corev1.PodStatus, conditionType corev1.PodConditionType) (int, *corev1.PodCondition) {
	if status == nil {
		return -1, nil
	}
	for i := range status.Conditions {
		if status.Conditions[i].Type == conditionType {
			return i, &status.Conditions[i]
		}
	}
	return -1, nil
}

// AggregateContainerResources computes the sum of resource requests and limits of all regular containers
// of the given pod spec.
func AggregateContainerResources(spec *corev1.PodSpec) (requests, limits corev1.ResourceList) {
	requests = corev1.ResourceList{}
	limits = corev1.ResourceList{}
	if spec == nil {
		return
	}
	for _, c := range spec.Containers {
		addResourceList(requests, c.Resources.Requests)
		addResourceList(limits, c.Resources.Limits)
	}
	return
}

// AggregatePodsResources sums up the container requests and limits of the given pods.
func AggregatePodsResources(pods []corev1.Pod) (requests, limits corev1.ResourceList) {
	requests = corev1.ResourceList{}
	limits = corev1.ResourceList{}
	for i := range pods {
		r, l := AggregateContainerResources(&pods[i].Spec)
		addResourceList(requests, r)
		addResourceList(limits, l)
	}
	return
}

func addResourceList(into, from corev1.ResourceList) {
	for name, q := range from {
		sum, ok := into[name]
		if !ok {
			sum = resource.Quantity{}
		}
		sum.Add(q)
		into[name] = sum
	}
}

// RestartCount returns the number of restarts summed across all container statuses.
func RestartCount(status *corev1.PodStatus) (count int64) {
	for _, cs := range status.ContainerStatuses {
		count += int64(cs.RestartCount)
	}
	return
}

// ReadyContainerCount returns the number of containers reported ready.
func ReadyContainerCount(status *corev1.PodStatus) (count int64) {
	for _, cs := range status.ContainerStatuses {
		if cs.Ready {
			count++
		}
	}
	return
}

// IsTerminated tells whether the pod has reached a terminal phase and no longer occupies node capacity.
func IsTerminated(pod *corev1.Pod) bool {
	return pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed
}
