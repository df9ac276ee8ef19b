// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/mapper"
)

var errNotImplemented = errors.New("not implemented")

type fakeResources struct {
	mu        sync.Mutex
	objs      map[mirror.Kind][]map[string]any
	listErr   map[mirror.Kind]error
	listCalls atomic.Int32
	onList    func(kind mirror.Kind)
}

func newFakeResources() *fakeResources {
	return &fakeResources{objs: map[mirror.Kind][]map[string]any{}, listErr: map[mirror.Kind]error{}}
}

func (f *fakeResources) set(kind mirror.Kind, objs ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objs[kind] = objs
}

func (f *fakeResources) failList(kind mirror.Kind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr[kind] = err
}

func (f *fakeResources) List(_ context.Context, kind mirror.Kind, params mirror.ListParams) ([]map[string]any, error) {
	f.listCalls.Add(1)
	if f.onList != nil {
		f.onList(kind)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[kind]; err != nil {
		return nil, fmt.Errorf("%w: %w", mirror.ErrListResources, err)
	}
	out := make([]map[string]any, 0, len(f.objs[kind]))
	for _, o := range f.objs[kind] {
		if params.Namespace != "" && mapper.LookupString(o, "metadata.namespace") != params.Namespace {
			continue
		}
		out = append(out, o)
	}
	return slices.Clip(out), nil
}

func (f *fakeResources) Get(context.Context, mirror.Kind, string, string) (map[string]any, error) {
	return nil, errNotImplemented
}

func (f *fakeResources) Create(context.Context, mirror.Kind, string, map[string]any) (map[string]any, error) {
	return nil, errNotImplemented
}

func (f *fakeResources) Update(context.Context, mirror.Kind, string, map[string]any) (map[string]any, error) {
	return nil, errNotImplemented
}

func (f *fakeResources) Delete(context.Context, mirror.Kind, string, string) error {
	return errNotImplemented
}

type fakeMetrics struct {
	pods  map[string]mirror.Usage
	nodes map[string]mirror.Usage
	err   error
}

func (f *fakeMetrics) ListPodMetrics(context.Context) (map[string]mirror.Usage, error) {
	return f.pods, f.err
}

func (f *fakeMetrics) ListNodeMetrics(context.Context) (map[string]mirror.Usage, error) {
	return f.nodes, f.err
}

type fakeProvider struct {
	resources map[string]*fakeResources
	metrics   map[string]*fakeMetrics
}

func (p fakeProvider) CloudContexts() []string {
	var names []string
	for name := range p.resources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (p fakeProvider) ResourceClient(cloudContext string) (mirror.ResourceClient, error) {
	rc, ok := p.resources[cloudContext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", mirror.ErrUnknownCloudContext, cloudContext)
	}
	return rc, nil
}

func (p fakeProvider) MetricsClient(cloudContext string) (mirror.MetricsClient, error) {
	mc, ok := p.metrics[cloudContext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", mirror.ErrUnknownCloudContext, cloudContext)
	}
	return mc, nil
}

func configMap(name, namespace, value string) map[string]any {
	return map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]any{
			"name":              name,
			"namespace":         namespace,
			"creationTimestamp": "2025-05-01T00:00:00Z",
			"labels":            map[string]any{"app": name},
		},
		"data": map[string]any{"key": value},
	}
}
