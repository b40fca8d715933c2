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
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/cortex-dev/cortex/collaborator"
	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/lock"
	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/session"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/vfs"
	"github.com/cortex-dev/cortex/workspace"
)

// stubParser recognizes "func Name(...) {" ... "}" blocks at column zero,
// a deliberately naive stand-in for collaborator.TreeSitterParser so these
// tests pin down Engine's merge logic independent of a real grammar.
type stubParser struct{}

func (stubParser) Languages() []string { return []string{"stub"} }

func (stubParser) Parse(_ context.Context, data []byte, language string) ([]collaborator.ParsedUnit, []collaborator.ParseError, error) {
	if language != "stub" {
		return nil, nil, errors.ErrUnsupportedLanguage.WithDetail("language", language)
	}
	lines := strings.Split(string(data), "\n")
	var units []collaborator.ParsedUnit
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "func ") {
			continue
		}
		name := line[len("func "):]
		if idx := strings.Index(name, "("); idx >= 0 {
			name = name[:idx]
		}
		start := i + 1 // 1-indexed
		end := start
		for j := i; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == "}" {
				end = j + 1
				break
			}
		}
		visibility := "private"
		if r := []rune(name); len(r) > 0 && unicode.IsUpper(r[0]) {
			visibility = "public"
		}
		body := strings.Join(lines[i:end], "\n")
		units = append(units, collaborator.ParsedUnit{
			QualifiedName: name,
			UnitType:      "function",
			Name:          name,
			StartLine:     start,
			EndLine:       end,
			Body:          body,
			Visibility:    visibility,
		})
		i = end - 1
	}
	return units, nil, nil
}

var _ collaborator.Parser = stubParser{}

const baseSource = `package sample

func A(x int) int {
	return x + 1
}

func B(y int) int {
	return y + 1
}
`

type harness struct {
	ws        *workspace.Manager
	sessions  *session.Engine
	engine    *Engine
	fs        *vfs.FS
	workspace *workspace.Workspace
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := store.NewMemoryStore()
	wsMgr := workspace.New(backend)
	sessMgr := session.New(backend, wsMgr, time.Hour)
	lockMgr := lock.New(backend, "_control")
	engine := New(backend, wsMgr, sessMgr, lockMgr, map[string]collaborator.Parser{"stub": stubParser{}}, nil)

	ws, err := wsMgr.Create(context.Background(), workspace.CreateSpec{Name: "demo", SourceType: workspace.SourceLocal})
	if err != nil {
		t.Fatalf("Create(workspace) error = %v", err)
	}

	fs := vfs.New(ws.ID, backend, content.NewStore(backend))
	if _, err := fs.WriteFile(context.Background(), ws.Namespace+":vfs", "a.go", []byte(baseSource), "stub", "seed"); err != nil {
		t.Fatalf("WriteFile(seed) error = %v", err)
	}

	return &harness{ws: wsMgr, sessions: sessMgr, engine: engine, fs: fs, workspace: ws}
}

func (h *harness) newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := h.sessions.Create(context.Background(), session.CreateSpec{
		AgentID:     "agent-1",
		WorkspaceID: h.workspace.ID,
		Scope:       session.Scope{ReadWritePaths: []string{"a.go"}},
	})
	if err != nil {
		t.Fatalf("Create(session) error = %v", err)
	}
	return sess
}

func (h *harness) writeAndRecord(t *testing.T, sess *session.Session, namespace, body string) {
	t.Helper()
	if _, err := h.fs.WriteFile(context.Background(), namespace, "a.go", []byte(body), "stub", "agent-1"); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := h.sessions.RecordChange(context.Background(), sess.ID, "a.go", session.Change{
		Op: session.ChangeUpdate, EntityRef: "a.go", At: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("RecordChange() error = %v", err)
	}
}

func TestEngine_Merge_NonOverlappingEdits(t *testing.T) {
	h := newHarness(t)
	sess := h.newSession(t)

	mine := strings.Replace(baseSource, "return x + 1", "return x + 100", 1)
	h.writeAndRecord(t, sess, sess.Namespace+":vfs", mine)

	theirs := strings.Replace(baseSource, "return y + 1", "return y + 200", 1)
	if _, err := h.fs.WriteFile(context.Background(), h.workspace.Namespace+":vfs", "a.go", []byte(theirs), "stub", "agent-2"); err != nil {
		t.Fatalf("WriteFile(theirs) error = %v", err)
	}

	report, err := h.engine.Merge(context.Background(), sess.ID, StrategyAuto)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(report.Conflicts) != 0 {
		t.Fatalf("Merge() conflicts = %v, want none", report.Conflicts)
	}

	merged, _, err := h.fs.ReadFile(context.Background(), h.workspace.Namespace+":vfs", "a.go")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(merged), "return x + 100") {
		t.Errorf("merged content missing mine's edit: %s", merged)
	}
	if !strings.Contains(string(merged), "return y + 200") {
		t.Errorf("merged content missing theirs' edit: %s", merged)
	}

	ws, err := h.ws.Get(context.Background(), h.workspace.ID)
	if err != nil {
		t.Fatalf("Get(workspace) error = %v", err)
	}
	if ws.CurrentVersion != 1 {
		t.Errorf("CurrentVersion = %d, want 1", ws.CurrentVersion)
	}

	got, err := h.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get(session) error = %v", err)
	}
	if got.Status != session.StatusCompleted {
		t.Errorf("session status = %v, want completed", got.Status)
	}
}

func TestEngine_Merge_ConvergentEdit(t *testing.T) {
	h := newHarness(t)
	sess := h.newSession(t)

	same := strings.Replace(baseSource, "return x + 1", "return x + 9", 1)
	h.writeAndRecord(t, sess, sess.Namespace+":vfs", same)
	if _, err := h.fs.WriteFile(context.Background(), h.workspace.Namespace+":vfs", "a.go", []byte(same), "stub", "agent-2"); err != nil {
		t.Fatalf("WriteFile(theirs) error = %v", err)
	}

	report, err := h.engine.Merge(context.Background(), sess.ID, StrategyAuto)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(report.Conflicts) != 0 {
		t.Fatalf("Merge() conflicts = %v, want none", report.Conflicts)
	}
}

func TestEngine_Merge_SemanticConflict_Auto(t *testing.T) {
	h := newHarness(t)
	sess := h.newSession(t)

	mine := strings.Replace(baseSource, "return x + 1", "return x + 2", 1)
	h.writeAndRecord(t, sess, sess.Namespace+":vfs", mine)

	theirs := strings.Replace(baseSource, "return x + 1", "return x * 2", 1)
	if _, err := h.fs.WriteFile(context.Background(), h.workspace.Namespace+":vfs", "a.go", []byte(theirs), "stub", "agent-2"); err != nil {
		t.Fatalf("WriteFile(theirs) error = %v", err)
	}

	report, err := h.engine.Merge(context.Background(), sess.ID, StrategyAuto)
	if !errors.IsCategory(err, errors.CategorySyncConflict) {
		t.Fatalf("Merge() error = %v, want sync conflict", err)
	}
	if len(report.Conflicts) != 1 {
		t.Fatalf("Merge() conflicts = %d, want 1", len(report.Conflicts))
	}
	if report.Conflicts[0].ConflictType != ConflictSemantic {
		t.Errorf("conflict type = %v, want semantic", report.Conflicts[0].ConflictType)
	}

	// Workspace content must be untouched on a failed auto merge.
	current, _, err := h.fs.ReadFile(context.Background(), h.workspace.Namespace+":vfs", "a.go")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(current) != theirs {
		t.Errorf("workspace content changed after failed merge")
	}

	got, err := h.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get(session) error = %v", err)
	}
	if got.Status != session.StatusMerging {
		t.Errorf("session status = %v, want merging", got.Status)
	}
}

func TestEngine_Merge_StrategyMine_ResolvesConflict(t *testing.T) {
	h := newHarness(t)
	sess := h.newSession(t)

	mine := strings.Replace(baseSource, "return x + 1", "return x + 2", 1)
	h.writeAndRecord(t, sess, sess.Namespace+":vfs", mine)

	theirs := strings.Replace(baseSource, "return x + 1", "return x * 2", 1)
	if _, err := h.fs.WriteFile(context.Background(), h.workspace.Namespace+":vfs", "a.go", []byte(theirs), "stub", "agent-2"); err != nil {
		t.Fatalf("WriteFile(theirs) error = %v", err)
	}

	report, err := h.engine.Merge(context.Background(), sess.ID, StrategyMine)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(report.Conflicts) != 0 {
		t.Fatalf("Merge() conflicts = %v, want none under mine strategy", report.Conflicts)
	}

	merged, _, err := h.fs.ReadFile(context.Background(), h.workspace.Namespace+":vfs", "a.go")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(merged), "return x + 2") {
		t.Errorf("merged content = %s, want mine's edit", merged)
	}
}
