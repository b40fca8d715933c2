// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package observability provides monitoring, logging, and tracing for cortexd.
//
// # Overview
//
// This package enables operators to watch a running cortexd process through:
//   - Metrics collection (Prometheus)
//   - Structured logging
//   - Distributed tracing (OpenTelemetry)
//   - Health checks
//
// # Metrics
//
// Collect and expose metrics for monitoring:
//
//	collector := metrics.NewPrometheusCollector()
//	wsMetrics := metrics.NewWorkspaceMetrics(collector)
//
//	wsMetrics.RecordRequest("ws-1", "lock.acquire", 0.004)
//
//	http.Handle("/metrics", collector.Handler())
//
// # Logging
//
// Structured logging with context propagation:
//
//	logger := logging.NewStructuredLogger(logging.LevelInfo)
//
//	ctx := logging.WithRequestID(ctx, "req-123")
//	logger.Info(ctx, "lock granted",
//	    logging.String("workspace_id", "ws-1"),
//	    logging.Int("duration_ms", 4),
//	)
//
// # Tracing
//
// Distributed tracing with OpenTelemetry:
//
//	shutdown, err := tracing.InitTracing(tracing.DefaultConfig())
//	defer shutdown(ctx)
//
//	ctx, span := tracing.StartSpan(ctx, "session.merge")
//	defer span.End()
//
// # Health Checks
//
// Liveness, readiness, and startup probes; readiness aggregates whatever
// health.Checker implementations the caller passes in:
//
//	liveness := health.NewLivenessChecker()
//	readiness := health.NewReadinessChecker(storeCheck)
//
//	http.Handle("/health/live", health.Handler(liveness))
//	http.Handle("/health/ready", health.Handler(readiness))
package observability
