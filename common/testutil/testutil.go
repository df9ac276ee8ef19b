// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	kjson "k8s.io/apimachinery/pkg/util/json"
	"k8s.io/klog/v2"
	sigyaml "sigs.k8s.io/yaml"
)

//go:embed testdata/*
var testDataFS embed.FS

// AssertError compares the received error with the wanted one and
// checks for equality first by comparing them otherwise by checking
// if the received error is a substring of the wanted error.
func AssertError(t *testing.T, got error, want error) {
	t.Helper()
	if isNil(got) && isNil(want) {
		return
	}
	if (isNil(got) && !isNil(want)) || (!isNil(got) && isNil(want)) {
		t.Errorf("Unexpected error, got: %v, want: %v", got, want)
		return
	}
	if errors.Is(got, want) || strings.Contains(got.Error(), want.Error()) {
		t.Logf("Expected error: %v", got)
	} else {
		t.Errorf("Unexpected error, got: %v, want: %v", got, want)
	}
}

// isNil checks if v is nil. (source: https://antonz.org/do-not-testify/)
func isNil(v any) bool {
	if v == nil {
		return true
	}
	// A non-nil interface can still hold a nil value, so we must check the underlying value.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Map, reflect.Pointer, reflect.Slice,
		reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// LoadTestObject returns the raw nested map form of the object held by the given testdata file.
func LoadTestObject(fileName string) (obj map[string]any, err error) {
	data, err := testDataFS.ReadFile("testdata/" + fileName)
	if err != nil {
		return
	}
	jsonData, err := sigyaml.YAMLToJSON(data)
	if err != nil {
		err = fmt.Errorf("failed to convert %q to JSON: %w", fileName, err)
		return
	}
	// kjson decodes integral numbers as int64 like the dynamic client does
	err = kjson.Unmarshal(jsonData, &obj)
	if err != nil {
		err = fmt.Errorf("failed to unmarshal %q into object: %w", fileName, err)
	}
	return
}

// LoadTestPods returns the raw pod objects from the pod resource files.
func LoadTestPods() (pods []map[string]any, err error) {
	podA, err := LoadTestObject("pod-a.yaml")
	if err != nil {
		return
	}
	pods = append(pods, podA)
	return
}

// LoggerContext wraps the given context with a logr logger based on the klog backend.
func LoggerContext(ctx context.Context) context.Context {
	log := klog.NewKlogr()
	return logr.NewContext(ctx, log)
}

// MustLoadTestObject is like LoadTestObject but fails the test on error.
func MustLoadTestObject(t *testing.T, fileName string) map[string]any {
	t.Helper()
	obj, err := LoadTestObject(fileName)
	if err != nil {
		t.Fatalf("cannot load test object %q: %v", fileName, err)
	}
	return obj
}
