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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/cortex-dev/cortex/pkg/errors"
)

// TreeSitterParser implements Parser over github.com/smacker/go-tree-sitter
// grammars. Only Go is registered, and Parse walks every tree with the Go
// declaration walker; the language set is fixed at construction and cannot
// be extended from outside this package.
type TreeSitterParser struct {
	languages map[string]*sitter.Language
}

// NewTreeSitterParser creates a Parser with the Go grammar registered.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{
		languages: map[string]*sitter.Language{
			"go": golang.GetLanguage(),
		},
	}
}

// Languages lists the languages this Parser can handle.
func (p *TreeSitterParser) Languages() []string {
	out := make([]string, 0, len(p.languages))
	for lang := range p.languages {
		out = append(out, lang)
	}
	return out
}

// Parse extracts function, method, and type declarations from data using
// the grammar registered for language.
func (p *TreeSitterParser) Parse(ctx context.Context, data []byte, language string) ([]ParsedUnit, []ParseError, error) {
	lang, ok := p.languages[language]
	if !ok {
		return nil, nil, errors.ErrUnsupportedLanguage.WithDetail("language", language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, data)
	if err != nil {
		return nil, nil, errors.ErrParseFailed.Wrap(err)
	}
	defer tree.Close()

	var units []ParsedUnit
	var parseErrs []ParseError
	walkGo(tree.RootNode(), data, &units, &parseErrs)
	return units, parseErrs, nil
}

// walkGo collects Go function and method declarations. It does not
// recurse into nested closures: Cortex's CodeUnit granularity is
// top-level declarations, matching spec.md §3's unit_type enumeration.
func walkGo(root *sitter.Node, src []byte, units *[]ParsedUnit, parseErrs *[]ParseError) {
	count := int(root.ChildCount())
	for i := 0; i < count; i++ {
		node := root.Child(i)
		if node == nil {
			continue
		}

		switch node.Type() {
		case "function_declaration":
			if u, ok := goFunction(node, src, ""); ok {
				*units = append(*units, u)
			}
		case "method_declaration":
			receiver := goReceiverType(node, src)
			if u, ok := goFunction(node, src, receiver); ok {
				u.UnitType = "method"
				*units = append(*units, u)
			}
		case "type_declaration":
			*units = append(*units, goTypeDecl(node, src)...)
		case "ERROR":
			appendParseErr(parseErrs, node)
		}
	}
}

func appendParseErr(parseErrs *[]ParseError, node *sitter.Node) []ParseError {
	*parseErrs = append(*parseErrs, ParseError{
		Line:    int(node.StartPoint().Row) + 1,
		Message: "unparseable construct",
	})
	return *parseErrs
}

func goFunction(node *sitter.Node, src []byte, receiver string) (ParsedUnit, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ParsedUnit{}, false
	}
	name := nameNode.Content(src)

	qualifiedName := name
	if receiver != "" {
		qualifiedName = receiver + "." + name
	}

	visibility := "private"
	if len(name) > 0 && strings.ToUpper(name[:1]) == name[:1] {
		visibility = "public"
	}

	body := ""
	if b := node.ChildByFieldName("body"); b != nil {
		body = b.Content(src)
	}

	return ParsedUnit{
		QualifiedName: qualifiedName,
		UnitType:      "function",
		Name:          name,
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
		Signature:     goSignature(node, src),
		Body:          body,
		Visibility:    visibility,
		Complexity:    estimateComplexity(body),
	}, true
}

func goReceiverType(node *sitter.Node, src []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := recv.Content(src)
	text = strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(text), ")"), "(")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "*")
}

func goSignature(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return node.Content(src)
	}
	return strings.TrimSpace(string(src[node.StartByte():body.StartByte()]))
}

func goTypeDecl(node *sitter.Node, src []byte) []ParsedUnit {
	var out []ParsedUnit
	count := int(node.ChildCount())
	for i := 0; i < count; i++ {
		spec := node.Child(i)
		if spec == nil || spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nameNode.Content(src)

		unitType := "type_alias"
		if t := spec.ChildByFieldName("type"); t != nil {
			switch t.Type() {
			case "struct_type":
				unitType = "struct"
			case "interface_type":
				unitType = "trait"
			}
		}

		visibility := "private"
		if len(name) > 0 && strings.ToUpper(name[:1]) == name[:1] {
			visibility = "public"
		}

		out = append(out, ParsedUnit{
			QualifiedName: name,
			UnitType:      unitType,
			Name:          name,
			StartLine:     int(spec.StartPoint().Row) + 1,
			EndLine:       int(spec.EndPoint().Row) + 1,
			Signature:     spec.Content(src),
			Visibility:    visibility,
		})
	}
	return out
}

// estimateComplexity computes a coarse cyclomatic-complexity proxy by
// counting branch keywords, since a true cyclomatic count requires a
// control-flow graph the AST walk here does not build.
func estimateComplexity(body string) Complexity {
	branches := 1
	for _, kw := range []string{"if ", "for ", "case ", "&&", "||"} {
		branches += strings.Count(body, kw)
	}
	return Complexity{
		Cyclomatic: branches,
		Lines:      strings.Count(body, "\n") + 1,
	}
}

var _ Parser = (*TreeSitterParser)(nil)
