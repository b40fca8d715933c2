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
	// Embedder/collaborator API metrics
	MetricEmbedAPICalls     = "cortex_embed_api_calls_total"
	MetricEmbedAPIErrors    = "cortex_embed_api_errors_total"
	MetricEmbedAPILatency   = "cortex_embed_api_latency_seconds"
	MetricEmbedTokensTotal  = "cortex_embed_tokens_total"
	MetricEmbedCostEstimated = "cortex_embed_cost_estimated_usd"
)

// EmbeddingMetrics tracks calls made to external Embedder collaborators
// (and, when merge.ai_assist is enabled, the AI-assisted conflict resolver).
type EmbeddingMetrics struct {
	collector Collector
}

// NewEmbeddingMetrics creates a new embedding metrics collector.
func NewEmbeddingMetrics(collector Collector) *EmbeddingMetrics {
	return &EmbeddingMetrics{
		collector: collector,
	}
}

// RecordCall records a collaborator API call with latency.
func (m *EmbeddingMetrics) RecordCall(provider, model string, latency float64) {
	labels := NewLabels("provider", provider, "model", model)
	m.collector.IncrementCounter(MetricEmbedAPICalls, labels)
	m.collector.ObserveHistogram(MetricEmbedAPILatency, latency, labels)
}

// RecordError records a collaborator API error.
func (m *EmbeddingMetrics) RecordError(provider, model, errorType string) {
	labels := NewLabels(
		"provider", provider,
		"model", model,
		"type", errorType,
	)
	m.collector.IncrementCounter(MetricEmbedAPIErrors, labels)
}

// RecordTokens records token usage for an embedding call.
func (m *EmbeddingMetrics) RecordTokens(provider, model string, tokens int) {
	labels := NewLabels("provider", provider, "model", model)
	m.collector.AddCounter(MetricEmbedTokensTotal, float64(tokens), labels)
}

// RecordCost records estimated cost for a collaborator call.
func (m *EmbeddingMetrics) RecordCost(provider, model string, costUSD float64) {
	labels := NewLabels("provider", provider, "model", model)
	m.collector.AddCounter(MetricEmbedCostEstimated, costUSD, labels)
}

// RecordCallWithTokens records a complete embedding call with tokens and latency.
func (m *EmbeddingMetrics) RecordCallWithTokens(provider, model string, latency float64, tokens int) {
	m.RecordCall(provider, model, latency)
	m.RecordTokens(provider, model, tokens)
}
