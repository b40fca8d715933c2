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

package metrics

const (
	// Request metrics
	MetricRequestsTotal   = "cortex_requests_total"
	MetricRequestDuration = "cortex_request_duration_seconds"
	MetricErrorsTotal     = "cortex_errors_total"

	// Session metrics
	MetricSessionsOpen   = "cortex_sessions_open"
	MetricSessionsOpened = "cortex_sessions_opened_total"
	MetricSessionsClosed = "cortex_sessions_closed_total"

	// Lock metrics
	MetricLocksHeld        = "cortex_locks_held"
	MetricLockWaitDuration = "cortex_lock_wait_duration_seconds"
	MetricLockConflicts    = "cortex_lock_conflicts_total"
	MetricDeadlocks        = "cortex_deadlocks_detected_total"

	// Merge metrics
	MetricMergesTotal     = "cortex_merges_total"
	MetricMergeConflicts  = "cortex_merge_conflicts_total"
	MetricMergeDuration   = "cortex_merge_duration_seconds"

	// System metrics
	MetricActiveGoroutines = "cortex_active_goroutines"
	MetricMemoryUsage      = "cortex_memory_bytes"
)

// WorkspaceMetrics provides per-workspace operational metrics for the
// session engine, lock manager, and merge engine.
type WorkspaceMetrics struct {
	collector Collector
}

// NewWorkspaceMetrics creates a new workspace metrics collector.
func NewWorkspaceMetrics(collector Collector) *WorkspaceMetrics {
	return &WorkspaceMetrics{
		collector: collector,
	}
}

// RecordRequest records an API request with duration.
func (m *WorkspaceMetrics) RecordRequest(workspaceID, operation string, duration float64) {
	labels := NewLabels("workspace_id", workspaceID, "operation", operation)
	m.collector.IncrementCounter(MetricRequestsTotal, labels)
	m.collector.ObserveHistogram(MetricRequestDuration, duration, labels)
}

// RecordError records a request-level error.
func (m *WorkspaceMetrics) RecordError(workspaceID, errorType string) {
	labels := NewLabels("workspace_id", workspaceID, "type", errorType)
	m.collector.IncrementCounter(MetricErrorsTotal, labels)
}

// SetSessionsOpen sets the current number of open sessions for a workspace.
func (m *WorkspaceMetrics) SetSessionsOpen(workspaceID string, count float64) {
	m.collector.SetGauge(MetricSessionsOpen, count, NewLabels("workspace_id", workspaceID))
}

// RecordSessionOpened records a session creation.
func (m *WorkspaceMetrics) RecordSessionOpened(workspaceID string) {
	m.collector.IncrementCounter(MetricSessionsOpened, NewLabels("workspace_id", workspaceID))
}

// RecordSessionClosed records a session commit, abort, or expiry.
func (m *WorkspaceMetrics) RecordSessionClosed(workspaceID, reason string) {
	m.collector.IncrementCounter(MetricSessionsClosed, NewLabels("workspace_id", workspaceID, "reason", reason))
}

// SetLocksHeld sets the current number of granted locks for a workspace.
func (m *WorkspaceMetrics) SetLocksHeld(workspaceID string, count float64) {
	m.collector.SetGauge(MetricLocksHeld, count, NewLabels("workspace_id", workspaceID))
}

// RecordLockWait records the time a request spent waiting for a lock grant.
func (m *WorkspaceMetrics) RecordLockWait(workspaceID string, duration float64) {
	m.collector.ObserveHistogram(MetricLockWaitDuration, duration, NewLabels("workspace_id", workspaceID))
}

// RecordLockConflict records a lock request denied under FAIL_FAST.
func (m *WorkspaceMetrics) RecordLockConflict(workspaceID string) {
	m.collector.IncrementCounter(MetricLockConflicts, NewLabels("workspace_id", workspaceID))
}

// RecordDeadlock records a wait-for cycle detected by the lock manager.
func (m *WorkspaceMetrics) RecordDeadlock(workspaceID string) {
	m.collector.IncrementCounter(MetricDeadlocks, NewLabels("workspace_id", workspaceID))
}

// RecordMerge records a completed merge attempt with its outcome and duration.
func (m *WorkspaceMetrics) RecordMerge(workspaceID, outcome string, duration float64) {
	labels := NewLabels("workspace_id", workspaceID, "outcome", outcome)
	m.collector.IncrementCounter(MetricMergesTotal, labels)
	m.collector.ObserveHistogram(MetricMergeDuration, duration, labels)
}

// RecordMergeConflicts records the number of unresolved conflicts a merge
// attempt produced.
func (m *WorkspaceMetrics) RecordMergeConflicts(workspaceID string, count int) {
	m.collector.AddCounter(MetricMergeConflicts, float64(count), NewLabels("workspace_id", workspaceID))
}

// SetActiveGoroutines sets the process-wide goroutine count.
func (m *WorkspaceMetrics) SetActiveGoroutines(count float64) {
	m.collector.SetGauge(MetricActiveGoroutines, count, NoLabels())
}

// SetMemoryUsage sets the process-wide memory usage in bytes.
func (m *WorkspaceMetrics) SetMemoryUsage(bytes float64) {
	m.collector.SetGauge(MetricMemoryUsage, bytes, NoLabels())
}
