// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Pass outcomes reported by passesTotal.
const (
	outcomeSuccess = "success"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Record operations reported by recordsTotal.
const (
	operationCreated = "created"
	operationUpdated = "updated"
	operationDeleted = "deleted"
	operationFailed  = "failed"
)

var (
	passesTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloud_mirror",
		Name:      "reconcile_passes_total",
		Help:      "Total reconciliation passes by kind, cloud context and outcome.",
	}, []string{"kind", "cloud_context", "outcome"})

	recordsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloud_mirror",
		Name:      "records_total",
		Help:      "Total mirror record operations by kind, cloud context and operation.",
	}, []string{"kind", "cloud_context", "operation"})

	passDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloud_mirror",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconciliation passes that ran, by kind.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"kind"})

	queueDepth = promauto.With(metrics.Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "cloud_mirror",
		Name:      "reconcile_queue_depth",
		Help:      "Number of reconciliation requests waiting in the queue.",
	})
)
