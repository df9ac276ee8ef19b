// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/common/objutil"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

var _ mirror.MetricsClient = (*Metrics)(nil)

// Metrics is a mirror.MetricsClient backed by the metrics.k8s.io API.
type Metrics struct {
	client metricsclient.Interface
}

// NewMetrics returns a Metrics client. A nil client yields ErrMetricsUnavailable on every call.
func NewMetrics(client metricsclient.Interface) *Metrics {
	return &Metrics{client: client}
}

// ListPodMetrics returns the usage of every pod summed across its containers.
func (m *Metrics) ListPodMetrics(ctx context.Context) (map[string]mirror.Usage, error) {
	if m.client == nil {
		return nil, fmt.Errorf("%w: no metrics client", mirror.ErrMetricsUnavailable)
	}
	list, err := m.client.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot list pod metrics: %w", mirror.ErrMetricsUnavailable, err)
	}
	usage := make(map[string]mirror.Usage, len(list.Items))
	for _, pm := range list.Items {
		total := corev1.ResourceList{}
		for _, c := range pm.Containers {
			for name, q := range c.Usage {
				sum := total[name]
				sum.Add(q)
				total[name] = sum
			}
		}
		cpu, mem := objutil.ResourceListToUsage(total)
		usage[mirror.RecordKey(pm.Name, pm.Namespace)] = mirror.Usage{CPU: cpu, Memory: mem}
	}
	return usage, nil
}

// ListNodeMetrics returns the usage of every node.
func (m *Metrics) ListNodeMetrics(ctx context.Context) (map[string]mirror.Usage, error) {
	if m.client == nil {
		return nil, fmt.Errorf("%w: no metrics client", mirror.ErrMetricsUnavailable)
	}
	list, err := m.client.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot list node metrics: %w", mirror.ErrMetricsUnavailable, err)
	}
	usage := make(map[string]mirror.Usage, len(list.Items))
	for _, nm := range list.Items {
		cpu, mem := objutil.ResourceListToUsage(nm.Usage)
		usage[nm.Name] = mirror.Usage{CPU: cpu, Memory: mem}
	}
	return usage, nil
}
