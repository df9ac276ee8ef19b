// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package objutil

import (
	"fmt"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/runtime"
	kjson "k8s.io/apimachinery/pkg/util/json"
	sigyaml "sigs.k8s.io/yaml"
)

// ToYAML serializes the given value to YAML.
func ToYAML(obj any) (string, error) {
	data, err := sigyaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to marshal object to YAML: %w", err)
	}
	return string(data), nil
}

// FromUnstructuredMap converts the given plain nested map into the typed k8s object pointed to by objPtr.
func FromUnstructuredMap(m map[string]any, objPtr any) error {
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(m, objPtr); err != nil {
		return fmt.Errorf("cannot convert unstructured into %T: %w", objPtr, err)
	}
	return nil
}

// MergePatch applies the given JSON merge patch onto a copy of original and returns the patched map.
// original is left untouched.
func MergePatch(original map[string]any, patch map[string]any) (map[string]any, error) {
	originalJSON, err := kjson.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal original object: %w", err)
	}
	patchJSON, err := kjson.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	patchedJSON, err := jsonpatch.MergePatch(originalJSON, patchJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to apply merge-patch: %w", err)
	}
	var patched map[string]any
	if err = kjson.Unmarshal(patchedJSON, &patched); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patched object: %w", err)
	}
	return patched, nil
}

// ParseCores parses a CPU quantity string such as "500m" or "2" into a number of cores.
// Unparsable or empty quantities yield 0.
func ParseCores(s string) float64 {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return QuantityToCores(q)
}

// QuantityToCores converts a CPU quantity into a number of cores.
func QuantityToCores(q resource.Quantity) float64 {
	return float64(q.MilliValue()) / 1000.0
}

// ParseBytes parses a memory quantity string such as "128Mi" or "1G" into a number of bytes.
// Unparsable or empty quantities yield 0.
func ParseBytes(s string) int64 {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0
	}
	return q.Value()
}

// ResourceListToUsage sums the cpu and memory entries of the given resource list into cores and bytes.
func ResourceListToUsage(resources corev1.ResourceList) (cores float64, bytes int64) {
	if cpu, ok := resources[corev1.ResourceCPU]; ok {
		cores = QuantityToCores(cpu)
	}
	if mem, ok := resources[corev1.ResourceMemory]; ok {
		bytes = mem.Value()
	}
	return
}
