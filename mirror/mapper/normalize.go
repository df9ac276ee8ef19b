// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package mapper

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gardener/cloud-mirror/api/mirror"
)

// NormalizeKeyValues converts an arbitrary key-value block into a list sorted by key.
// Nil values become the empty string and non-string values are rendered with fmt.
func NormalizeKeyValues(m map[string]any) []mirror.KeyValue {
	if len(m) == 0 {
		return nil
	}
	kvs := make([]mirror.KeyValue, 0, len(m))
	for k, v := range m {
		kvs = append(kvs, mirror.KeyValue{ItemKey: k, ItemValue: scalarString(v)})
	}
	slices.SortFunc(kvs, func(a, b mirror.KeyValue) int {
		return strings.Compare(a.ItemKey, b.ItemKey)
	})
	return kvs
}

// NormalizeStringMap is NormalizeKeyValues for typed string maps.
func NormalizeStringMap(m map[string]string) []mirror.KeyValue {
	if len(m) == 0 {
		return nil
	}
	generic := make(map[string]any, len(m))
	for k, v := range m {
		generic[k] = v
	}
	return NormalizeKeyValues(generic)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
