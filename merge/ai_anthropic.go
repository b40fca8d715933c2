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

package merge

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicResolver proposes conflict resolutions by asking Claude to
// reconcile the two divergent sides of a Conflict against their common
// base. Its proposal is advisory only: Engine.Merge reparses whatever it
// returns and checks its qualified name and public visibility before
// trusting it in place of a raw Conflict.
type AnthropicResolver struct {
	client anthropic.Client
	model  anthropic.Model
}

// AnthropicResolverConfig configures an AnthropicResolver.
type AnthropicResolverConfig struct {
	// APIKey, if empty, falls back to the ANTHROPIC_API_KEY environment
	// variable.
	APIKey string
	// Model defaults to anthropic.ModelClaude3_5SonnetLatest.
	Model anthropic.Model
}

// NewAnthropicResolver creates a Resolver backed by the Anthropic API.
func NewAnthropicResolver(cfg AnthropicResolverConfig) *AnthropicResolver {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaude3_5SonnetLatest
	}
	return &AnthropicResolver{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Resolve asks the model to reconcile c.Mine and c.Theirs against c.Base,
// returning the merged unit body it proposes. ok is false whenever the
// model declines (wraps its answer in an explicit "CANNOT_RESOLVE"
// marker) rather than ever guessing at a resolution.
func (r *AnthropicResolver) Resolve(ctx context.Context, c Conflict) (string, bool, error) {
	prompt := fmt.Sprintf(
		"Three versions of the same code unit %q diverged from a common base.\n\n"+
			"BASE:\n%s\n\nMINE:\n%s\n\nTHEIRS:\n%s\n\n"+
			"Reply with only the merged source for this unit reconciling both "+
			"sides' intent, preserving MINE's and THEIRS's public signature if "+
			"either declared one. If the two sides cannot be reconciled "+
			"automatically, reply with exactly CANNOT_RESOLVE and nothing else.",
		c.Path, c.Base, c.Mine, c.Theirs,
	)

	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", false, err
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" || text == "CANNOT_RESOLVE" {
		return "", false, nil
	}
	return text, true, nil
}

var _ Resolver = (*AnthropicResolver)(nil)
