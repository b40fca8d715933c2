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

package collaborator

import (
	"context"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cortex-dev/cortex/pkg/errors"
)

// openAIDimension is the vector length of text-embedding-3-small, the
// default embedding model below.
const openAIDimension = 1536

// OpenAIEmbedderConfig configures an OpenAIEmbedder.
type OpenAIEmbedderConfig struct {
	// APIKey is the OpenAI API key. If empty, OPENAI_API_KEY is used.
	APIKey string

	// Model is the embedding model name. Defaults to
	// "text-embedding-3-small".
	Model string

	// BaseURL overrides the API base URL, for OpenAI-compatible endpoints.
	BaseURL string
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an Embedder backed by OpenAI, mirroring
// sage-adk's adapters/llm.OpenAI constructor shape (explicit config with
// environment-variable fallback, client built via openai.DefaultConfig).
func NewOpenAIEmbedder(cfg *OpenAIEmbedderConfig) *OpenAIEmbedder {
	if cfg == nil {
		cfg = &OpenAIEmbedderConfig{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		dim:    openAIDimension,
	}
}

// Embed returns the OpenAI embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.ErrEmbeddingFailed.Wrap(err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.ErrEmbeddingFailed.WithMessage("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}

// Dimension reports the embedding vector length for the configured model.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

var _ Embedder = (*OpenAIEmbedder)(nil)
