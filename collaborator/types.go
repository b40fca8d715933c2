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

// Package collaborator names the external contracts the core consumes but
// does not itself implement: source parsing, embedding, and bulk content
// ingestion. The core names each contract as a Go interface and swaps
// concrete implementations per language or provider; a missing parser for
// a language simply means no CodeUnits are extracted for that file.
package collaborator

import "context"

// ParsedUnit is one code unit recovered by a Parser, prior to being
// assigned a workspace-scoped identity by the graph package.
type ParsedUnit struct {
	QualifiedName string
	UnitType      string
	Name          string
	StartLine     int
	EndLine       int
	Signature     string
	Body          string
	Visibility    string
	Modifiers     []string
	Parameters    []string
	ReturnType    string
	Complexity    Complexity
}

// Complexity holds the structural metrics the parser computes for a unit.
type Complexity struct {
	Cyclomatic int
	Cognitive  int
	Nesting    int
	Lines      int
}

// ParseError describes one recoverable failure encountered while parsing;
// the parser still returns whatever units it could recover alongside a
// list of these.
type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) Error() string { return e.Message }

// Parser extracts CodeUnits from source bytes. Implementations are
// assumed reentrant and safe for concurrent use. Partial parses are
// acceptable: a Parser returns every unit it could recover alongside any
// ParseErrors encountered.
type Parser interface {
	// Parse returns the code units found in data, interpreted as language.
	// A language with no registered parser returns ErrUnsupportedLanguage.
	Parse(ctx context.Context, data []byte, language string) ([]ParsedUnit, []ParseError, error)

	// Languages lists the languages this Parser can handle.
	Languages() []string
}

// Embedder computes a fixed-dimension normalized embedding for text.
// Embedding failures are non-fatal to callers: a CodeUnit whose Embed call
// fails is stored with no embedding and flagged for later re-embedding.
type Embedder interface {
	// Embed returns a fixed-dimension vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the fixed vector length this Embedder produces.
	Dimension() int
}

// SourceKind discriminates how content reached the Ingestion collaborator.
type SourceKind string

const (
	SourceLocal             SourceKind = "local"
	SourceExternalReadOnly  SourceKind = "external_readonly"
	SourceImportedDocument  SourceKind = "imported_document"
)

// IngestOptions parameterizes one Ingestion.Ingest call.
type IngestOptions struct {
	ReadOnly          bool
	GenerateEmbeddings bool
	IncludePatterns   []string
	ExcludePatterns   []string
}

// IngestFile is one unit of content handed to the core by an Ingestion
// collaborator: a path plus its raw bytes (already decoded from whatever
// source format the ingester understands).
type IngestFile struct {
	Path string
	Data []byte
}

// Ingestion supplies processed files from an external source (a local
// directory, a read-only mirror, or an imported document) for the core to
// materialize as vnodes.
type Ingestion interface {
	// Collect returns the files to materialize for one ingest operation.
	Collect(ctx context.Context, kind SourceKind, source []byte, opts IngestOptions) ([]IngestFile, error)
}
