// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"context"
	"fmt"

	"github.com/gardener/cloud-mirror/api/mirror"
	"github.com/gardener/cloud-mirror/mirror/kinds"

	"github.com/go-logr/logr"
)

const metricsUnavailableMsg = "cannot fetch usage, metrics-server may not be installed; usage defaults to zero"

// enrich fetches the extra data the mapping table of desc needs.
// Usage snapshots are best effort. The pod list nodes are aggregated from is not, since mapping nodes without it
// would overwrite their pod figures with zeros.
func (r *Reconciler) enrich(ctx context.Context, cloudContext string, desc kinds.Descriptor, rc mirror.ResourceClient) (extra mirror.ExtraData, err error) {
	if desc.Enrichment == kinds.EnrichNone {
		return
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("kind", desc.Kind(), "cloudContext", cloudContext)
	mc, err := r.clients.MetricsClient(cloudContext)
	if err != nil {
		return
	}
	switch desc.Enrichment {
	case kinds.EnrichPodUsage:
		if extra.PodMetrics, err = mc.ListPodMetrics(ctx); err != nil {
			log.Info(metricsUnavailableMsg, "error", err.Error())
			extra.PodMetrics, err = map[string]mirror.Usage{}, nil
		}
	case kinds.EnrichNodeUsage:
		if extra.NodeMetrics, err = mc.ListNodeMetrics(ctx); err != nil {
			log.Info(metricsUnavailableMsg, "error", err.Error())
			extra.NodeMetrics, err = map[string]mirror.Usage{}, nil
		}
		if extra.Pods, err = rc.List(ctx, mirror.KindPod, mirror.ListParams{}); err != nil {
			err = fmt.Errorf("cannot list pods for node aggregation: %w", err)
		}
	}
	return
}
