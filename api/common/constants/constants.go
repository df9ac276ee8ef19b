// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package constants

import "time"

// ContextKey is the type of keys used to store values in a context.Context by this module.
type ContextKey string

const (
	// TraceLogPathCtxKey is the context key for the path of the trace log file.
	TraceLogPathCtxKey ContextKey = "trace-log-path"
)

const (
	// DefaultGracefulShutdownTimeout is the default time given to a service to shut down.
	DefaultGracefulShutdownTimeout = 5 * time.Second
	// DefaultHealthProbeBindAddress is the default bind address of the health probe endpoint.
	DefaultHealthProbeBindAddress = ":8081"
	// DefaultMetricsBindAddress is the default bind address of the metrics endpoint.
	DefaultMetricsBindAddress = ":8080"
)
