// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package mapper

import (
	"strconv"
	"strings"
	"time"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/objutil"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Transform stores the value found at the path of a FieldRule into the named record field.
// found is false when the path is absent from the raw object. Transforms must apply a default in that case.
type Transform func(rec *mirror.Record, field string, value any, found bool) error

// FieldRule maps one nested path of a raw object onto one record field.
type FieldRule struct {
	// Name is the record field name.
	Name string
	// Path is the dot separated path into the raw object, e.g. "status.phase".
	Path string
	// Transform converts and stores the value.
	Transform Transform
}

// Lookup returns the value at the dot separated path within obj.
func Lookup(obj map[string]any, path string) (any, bool) {
	if path == "" {
		return obj, obj != nil
	}
	v, found, err := unstructured.NestedFieldNoCopy(obj, strings.Split(path, ".")...)
	if err != nil || !found || v == nil {
		return nil, false
	}
	return v, true
}

// LookupString returns the string at path or "" if absent.
func LookupString(obj map[string]any, path string) string {
	v, found := Lookup(obj, path)
	if !found {
		return ""
	}
	return scalarString(v)
}

// LookupMap returns the map at path or nil if absent or not a map.
func LookupMap(obj map[string]any, path string) map[string]any {
	v, _ := Lookup(obj, path)
	m, _ := v.(map[string]any)
	return m
}

// LookupSlice returns the slice at path or nil if absent or not a slice.
func LookupSlice(obj map[string]any, path string) []any {
	v, _ := Lookup(obj, path)
	s, _ := v.([]any)
	return s
}

// ParseTimestamp parses an RFC 3339 timestamp as used in Kubernetes object metadata.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	case time.Time:
		return t.UTC(), !t.IsZero()
	default:
		return time.Time{}, false
	}
}

// AsInt64 converts the numeric representations found in decoded objects into an int64.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// String stores the value as string, defaulting to "".
func String(rec *mirror.Record, field string, value any, found bool) error {
	return StringOr("")(rec, field, value, found)
}

// StringOr returns a Transform storing the value as string, defaulting to def.
func StringOr(def string) Transform {
	return func(rec *mirror.Record, field string, value any, found bool) error {
		if !found {
			rec.SetString(field, def)
			return nil
		}
		rec.SetString(field, scalarString(value))
		return nil
	}
}

// Int stores the value as integer, defaulting to 0.
func Int(rec *mirror.Record, field string, value any, found bool) error {
	i, _ := AsInt64(value)
	rec.SetInt(field, i)
	return nil
}

// Bool stores the value as boolean, defaulting to false.
func Bool(rec *mirror.Record, field string, value any, found bool) error {
	var b bool
	switch t := value.(type) {
	case bool:
		b = t
	case string:
		b, _ = strconv.ParseBool(t)
	}
	rec.SetBool(field, found && b)
	return nil
}

// Timestamp stores an RFC 3339 timestamp normalized to UTC, defaulting to "".
func Timestamp(rec *mirror.Record, field string, value any, found bool) error {
	ts, ok := ParseTimestamp(value)
	if !found || !ok {
		rec.SetString(field, "")
		return nil
	}
	rec.SetString(field, ts.Format(time.RFC3339))
	return nil
}

// KeyValues stores a nested map as normalized key-value list, defaulting to an empty list.
func KeyValues(rec *mirror.Record, field string, value any, _ bool) error {
	m, _ := value.(map[string]any)
	rec.SetKeyValues(field, NormalizeKeyValues(m))
	return nil
}

// Count stores the number of elements of a list or map, defaulting to 0.
func Count(rec *mirror.Record, field string, value any, _ bool) error {
	var n int
	switch t := value.(type) {
	case []any:
		n = len(t)
	case map[string]any:
		n = len(t)
	}
	rec.SetInt(field, int64(n))
	return nil
}

// CPUCores stores a CPU quantity as float number of cores, defaulting to 0.
func CPUCores(rec *mirror.Record, field string, value any, _ bool) error {
	rec.SetFloat(field, objutil.ParseCores(scalarString(value)))
	return nil
}

// MemoryBytes stores a memory quantity as integer byte count, defaulting to 0.
func MemoryBytes(rec *mirror.Record, field string, value any, _ bool) error {
	rec.SetInt(field, objutil.ParseBytes(scalarString(value)))
	return nil
}

// Quantity stores the value in its raw quantity notation, defaulting to "".
func Quantity(rec *mirror.Record, field string, value any, found bool) error {
	return String(rec, field, value, found)
}

// Join stores a list of scalars as a comma separated string, defaulting to "".
func Join(rec *mirror.Record, field string, value any, _ bool) error {
	items, _ := value.([]any)
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, scalarString(item))
	}
	rec.SetString(field, strings.Join(parts, ","))
	return nil
}

// YAML stores a YAML dump of the nested value, defaulting to "".
func YAML(rec *mirror.Record, field string, value any, found bool) error {
	if !found {
		rec.SetString(field, "")
		return nil
	}
	s, err := objutil.ToYAML(value)
	if err != nil {
		return err
	}
	rec.SetString(field, s)
	return nil
}

// Rule is shorthand for a FieldRule literal.
func Rule(name, path string, transform Transform) FieldRule {
	return FieldRule{Name: name, Path: path, Transform: transform}
}
