// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Service is a component that can be started and stopped.
type Service interface {
	// Start starts the service with the given context. Start may block depending on the implementation.
	// The context is expected to be populated with a logger.
	Start(ctx context.Context) error
	// Stop stops the service. Stop does not block.
	Stop(ctx context.Context) error
}

// ServerConfig is the common configuration for a server which can be used as standalone
// or embedded within another process.
type ServerConfig struct {
	// HealthProbeBindAddress is the host and port for serving health probes.
	HealthProbeBindAddress string `json:"healthProbeBindAddress,omitempty"`
	// MetricsBindAddress is the host and port for serving metrics.
	MetricsBindAddress string `json:"metricsBindAddress,omitempty"`
	// GracefulShutdownTimeout is the time given to the service to gracefully shutdown.
	GracefulShutdownTimeout metav1.Duration `json:"gracefulShutdownTimeout"`
}

// QPSBurst is a simple encapsulation of client QPS and Burst settings.
type QPSBurst struct {
	// QPS is the queries per second rate limit for the client.
	QPS float32 `json:"qps"`
	// Burst is the burst size for rate limiting, allowing temporary spikes above QPS.
	Burst int `json:"burst"`
}

// ClientFacades is a holder for the k8s client interfaces used against one cluster.
type ClientFacades struct {
	// Client is the standard Kubernetes clientset for accessing core APIs.
	Client kubernetes.Interface
	// DynClient is the dynamic client for accessing arbitrary Kubernetes resources.
	DynClient dynamic.Interface
	// MetricsClient is the clientset for the metrics.k8s.io API. It is nil if it could not be constructed.
	MetricsClient metricsclient.Interface
}
