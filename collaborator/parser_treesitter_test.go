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

// SPDX-License-Identifier: LGPL-3.0-or-later

package collaborator

import (
	"context"
	"testing"
)

const sampleGoSource = `package sample

type Widget struct {
	Name string
}

func NewWidget(name string) *Widget {
	return &Widget{Name: name}
}

func (w *Widget) Describe() string {
	if w.Name == "" {
		return "unnamed"
	}
	return w.Name
}
`

func TestTreeSitterParser_Languages(t *testing.T) {
	p := NewTreeSitterParser()
	langs := p.Languages()
	if len(langs) != 1 || langs[0] != "go" {
		t.Fatalf("Languages() = %v, want [go]", langs)
	}
}

func TestTreeSitterParser_Parse_ExtractsDeclarations(t *testing.T) {
	p := NewTreeSitterParser()
	units, parseErrs, err := p.Parse(context.Background(), []byte(sampleGoSource), "go")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parseErrs) != 0 {
		t.Fatalf("Parse() parseErrs = %v, want none", parseErrs)
	}

	byName := map[string]ParsedUnit{}
	for _, u := range units {
		byName[u.QualifiedName] = u
	}

	widget, ok := byName["Widget"]
	if !ok {
		t.Fatal("Parse() did not extract Widget type")
	}
	if widget.UnitType != "struct" || widget.Visibility != "public" {
		t.Errorf("Widget unit = %+v, want struct/public", widget)
	}

	ctor, ok := byName["NewWidget"]
	if !ok {
		t.Fatal("Parse() did not extract NewWidget function")
	}
	if ctor.UnitType != "function" {
		t.Errorf("NewWidget unit_type = %s, want function", ctor.UnitType)
	}

	method, ok := byName["Widget.Describe"]
	if !ok {
		t.Fatal("Parse() did not extract Widget.Describe method")
	}
	if method.UnitType != "method" {
		t.Errorf("Describe unit_type = %s, want method", method.UnitType)
	}
	if method.Complexity.Cyclomatic < 2 {
		t.Errorf("Describe complexity = %+v, want cyclomatic >= 2 for its if branch", method.Complexity)
	}
}

func TestTreeSitterParser_Parse_UnsupportedLanguage(t *testing.T) {
	p := NewTreeSitterParser()
	if _, _, err := p.Parse(context.Background(), []byte("print('hi')"), "python"); err == nil {
		t.Fatal("Parse() with unsupported language should error")
	}
}

var _ Parser = NewTreeSitterParser()
