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

package graph

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-dev/cortex/collaborator"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/version"
)

const tableUnit = "code_unit"

// edgeReferencedBy is the reverse index of EdgeDependsOn, maintained
// alongside every DEPENDS_ON edge so find_references and impact can
// traverse "who depends on this unit" without the backing store needing
// to support incoming-edge queries — store.Store's Traverse primitive
// only walks outward.
const edgeReferencedBy = "REFERENCED_BY"

// Graph extracts, indexes, and queries CodeUnits and their relationships
// for one workspace namespace.
type Graph struct {
	backend store.Store
	history *version.History
}

// New creates a Graph over the given backing store.
func New(backend store.Store) *Graph {
	return &Graph{backend: backend, history: version.New(backend, "code_unit_version")}
}

func rowToUnit(row store.Row) *CodeUnit {
	if row == nil {
		return nil
	}
	u := &CodeUnit{
		ID:            str(row["id"]),
		FileVNodeID:   str(row["file_vnode_id"]),
		UnitType:      str(row["unit_type"]),
		Name:          str(row["name"]),
		QualifiedName: str(row["qualified_name"]),
		StartLine:     int(toInt64(row["start_line"])),
		EndLine:       int(toInt64(row["end_line"])),
		Signature:     str(row["signature"]),
		Body:          str(row["body"]),
		Language:      str(row["language"]),
		Visibility:    str(row["visibility"]),
		Version:       toInt64(row["version"]),
		Status:        Status(str(row["status"])),
	}
	if c, ok := row["complexity"].(store.Row); ok {
		u.Complexity = collaborator.Complexity{
			Cyclomatic: int(toInt64(c["cyclomatic"])),
			Cognitive:  int(toInt64(c["cognitive"])),
			Nesting:    int(toInt64(c["nesting"])),
			Lines:      int(toInt64(c["lines"])),
		}
	}
	if emb, ok := row["embedding"].([]float32); ok {
		u.Embedding = emb
	}
	if t, ok := row["created_at"].(time.Time); ok {
		u.CreatedAt = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		u.UpdatedAt = t
	}
	return u
}

func unitToRow(u *CodeUnit) store.Row {
	return store.Row{
		"id":            u.ID,
		"file_vnode_id": u.FileVNodeID,
		"unit_type":     u.UnitType,
		"name":          u.Name,
		"qualified_name": u.QualifiedName,
		"start_line":    int64(u.StartLine),
		"end_line":      int64(u.EndLine),
		"signature":     u.Signature,
		"body":          u.Body,
		"language":      u.Language,
		"visibility":    u.Visibility,
		"complexity": store.Row{
			"cyclomatic": int64(u.Complexity.Cyclomatic),
			"cognitive":  int64(u.Complexity.Cognitive),
			"nesting":    int64(u.Complexity.Nesting),
			"lines":      int64(u.Complexity.Lines),
		},
		"embedding":  u.Embedding,
		"version":    u.Version,
		"status":     string(u.Status),
		"created_at": u.CreatedAt,
		"updated_at": u.UpdatedAt,
	}
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func (g *Graph) allUnits(ctx context.Context, namespace string) ([]*CodeUnit, error) {
	res, err := g.backend.Execute(ctx, namespace, store.Op{Kind: store.OpList, Table: tableUnit})
	if err != nil {
		return nil, err
	}
	out := make([]*CodeUnit, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, rowToUnit(row))
	}
	return out, nil
}

func (g *Graph) unitsForFile(ctx context.Context, namespace, fileVnodeID string) ([]*CodeUnit, error) {
	res, err := g.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpList, Table: tableUnit, Filter: store.Row{"file_vnode_id": fileVnodeID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*CodeUnit, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, rowToUnit(row))
	}
	return out, nil
}

// references scans a unit's signature and body for whole-word mentions of
// another active unit's name, the heuristic this implementation uses to
// derive DEPENDS_ON edges from parsed units: the Parser collaborator
// contract (spec.md §6) returns unit records, not an explicit dependency
// list, so extract infers references from source text instead.
func references(u *CodeUnit, candidates []*CodeUnit) []*CodeUnit {
	text := u.Signature + "\n" + u.Body
	var out []*CodeUnit
	for _, c := range candidates {
		if c.ID == u.ID || c.Name == "" {
			continue
		}
		if mentionsWord(text, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func mentionsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isIdentChar(text[start-1])
		afterOK := end == len(text) || !isIdentChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isIdentChar(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Extract invokes parser on data and atomically replaces the CodeUnit set
// belonging to fileVnodeID: units matched by qualified_name are updated in
// place, new qualified_names are inserted, and active units no longer
// present are tombstoned. DEFINES edges change in the same transaction as
// the units; DEPENDS_ON edges (and their REFERENCED_BY reverse index) for
// the file's units are recomputed afterwards in a second transaction, so
// the two steps do not commit atomically together.
func (g *Graph) Extract(ctx context.Context, namespace, fileVnodeID string, data []byte, language string, parser collaborator.Parser, actor string) ([]*CodeUnit, error) {
	parsed, _, err := parser.Parse(ctx, data, language)
	if err != nil {
		return nil, err
	}

	existing, err := g.unitsForFile(ctx, namespace, fileVnodeID)
	if err != nil {
		return nil, err
	}
	byQName := make(map[string]*CodeUnit, len(existing))
	for _, u := range existing {
		if u.Status == StatusActive {
			byQName[u.QualifiedName] = u
		}
	}

	now := time.Now()
	seen := make(map[string]bool, len(parsed))
	var result []*CodeUnit
	var ops []store.Op

	for _, p := range parsed {
		seen[p.QualifiedName] = true
		if prev, ok := byQName[p.QualifiedName]; ok {
			next := prev.clone()
			next.UnitType = p.UnitType
			next.Name = p.Name
			next.StartLine = p.StartLine
			next.EndLine = p.EndLine
			next.Signature = p.Signature
			next.Body = p.Body
			next.Language = language
			next.Visibility = p.Visibility
			next.Complexity = p.Complexity
			next.Version++
			next.UpdatedAt = now
			ops = append(ops, store.Op{Kind: store.OpPut, Table: tableUnit, Key: next.ID, Row: unitToRow(next)})
			ops = append(ops, g.history.AppendOp(historyEntry(next, version.OpUpdate, actor, now)))
			result = append(result, next)
			continue
		}

		next := &CodeUnit{
			ID:            uuid.NewString(),
			FileVNodeID:   fileVnodeID,
			UnitType:      p.UnitType,
			Name:          p.Name,
			QualifiedName: p.QualifiedName,
			StartLine:     p.StartLine,
			EndLine:       p.EndLine,
			Signature:     p.Signature,
			Body:          p.Body,
			Language:      language,
			Visibility:    p.Visibility,
			Complexity:    p.Complexity,
			Version:       1,
			Status:        StatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		ops = append(ops, store.Op{Kind: store.OpPut, Table: tableUnit, Key: next.ID, Row: unitToRow(next)})
		ops = append(ops, g.history.AppendOp(historyEntry(next, version.OpCreate, actor, now)))
		ops = append(ops, store.Op{Kind: store.OpRelate, Table: tableUnit, Key: fileVnodeID, EdgeKind: EdgeDefines, Target: next.ID})
		result = append(result, next)
	}

	var tombstoned []*CodeUnit
	for qname, prev := range byQName {
		if seen[qname] {
			continue
		}
		next := prev.clone()
		next.Status = StatusTombstone
		next.Version++
		next.UpdatedAt = now
		ops = append(ops, store.Op{Kind: store.OpPut, Table: tableUnit, Key: next.ID, Row: unitToRow(next)})
		ops = append(ops, g.history.AppendOp(historyEntry(next, version.OpDelete, actor, now)))
		ops = append(ops, store.Op{Kind: store.OpUnrelate, Table: tableUnit, Key: fileVnodeID, EdgeKind: EdgeDefines, Target: next.ID})
		tombstoned = append(tombstoned, next)
	}

	if _, err := g.backend.ExecuteTransaction(ctx, namespace, ops); err != nil {
		return nil, err
	}

	if err := g.reconcileDependencies(ctx, namespace, append(append([]*CodeUnit(nil), result...), tombstoned...)); err != nil {
		return nil, err
	}

	return result, nil
}

func historyEntry(u *CodeUnit, op version.Operation, actor string, now time.Time) version.Entry {
	return version.Entry{
		EntityID:  u.ID,
		Version:   u.Version,
		Operation: op,
		Snapshot:  unitToRow(u),
		ChangedBy: actor,
		ChangedAt: now,
	}
}

// reconcileDependencies recomputes outgoing DEPENDS_ON edges (and their
// REFERENCED_BY reverse index) for units, against the full set of active
// units in the workspace.
func (g *Graph) reconcileDependencies(ctx context.Context, namespace string, units []*CodeUnit) error {
	all, err := g.allUnits(ctx, namespace)
	if err != nil {
		return err
	}
	var active []*CodeUnit
	for _, u := range all {
		if u.Status == StatusActive {
			active = append(active, u)
		}
	}

	var ops []store.Op
	for _, u := range units {
		old, err := g.backend.Execute(ctx, namespace, store.Op{
			Kind: store.OpTraverse, Table: tableUnit, Key: u.ID, EdgeKind: EdgeDependsOn, Depth: 1,
		})
		if err == nil {
			for _, row := range old.Rows {
				target := str(row["id"])
				ops = append(ops,
					store.Op{Kind: store.OpUnrelate, Table: tableUnit, Key: u.ID, EdgeKind: EdgeDependsOn, Target: target},
					store.Op{Kind: store.OpUnrelate, Table: tableUnit, Key: target, EdgeKind: edgeReferencedBy, Target: u.ID},
				)
			}
		}

		if u.Status != StatusActive {
			continue
		}
		for _, dep := range references(u, active) {
			ops = append(ops,
				store.Op{Kind: store.OpRelate, Table: tableUnit, Key: u.ID, EdgeKind: EdgeDependsOn, Target: dep.ID},
				store.Op{Kind: store.OpRelate, Table: tableUnit, Key: dep.ID, EdgeKind: edgeReferencedBy, Target: u.ID},
			)
		}
	}

	if len(ops) == 0 {
		return nil
	}
	_, err = g.backend.ExecuteTransaction(ctx, namespace, ops)
	return err
}

// FindReferences returns every active unit that depends on unitID.
func (g *Graph) FindReferences(ctx context.Context, namespace, unitID string) ([]*CodeUnit, error) {
	res, err := g.backend.Execute(ctx, namespace, store.Op{
		Kind: store.OpTraverse, Table: tableUnit, Key: unitID, EdgeKind: edgeReferencedBy, Depth: 1,
	})
	if err != nil {
		return nil, err
	}
	out := make([]*CodeUnit, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, rowToUnit(row))
	}
	return out, nil
}

// Impact returns the units directly and transitively affected by changing
// changedUnitIDs, BFS'd over the transposed DEPENDS_ON graph (i.e. who
// references each changed unit) up to maxDepth hops.
func (g *Graph) Impact(ctx context.Context, namespace string, changedUnitIDs []string, maxDepth int) (*Impact, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}

	visited := make(map[string]bool)
	for _, id := range changedUnitIDs {
		visited[id] = true
	}

	impact := &Impact{}
	frontier := append([]string(nil), changedUnitIDs...)
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			res, err := g.backend.Execute(ctx, namespace, store.Op{
				Kind: store.OpTraverse, Table: tableUnit, Key: id, EdgeKind: edgeReferencedBy, Depth: 1,
			})
			if err != nil {
				continue
			}
			for _, row := range res.Rows {
				u := rowToUnit(row)
				if visited[u.ID] {
					continue
				}
				visited[u.ID] = true
				if depth == 1 {
					impact.Direct = append(impact.Direct, u)
				} else {
					impact.Transitive = append(impact.Transitive, u)
				}
				next = append(next, u.ID)
			}
		}
		frontier = next
	}
	return impact, nil
}

// SemanticSearch delegates to the backing store's MTREE index over
// code_unit.embedding, post-filtering matches by the scalar fields named
// in filters.
func (g *Graph) SemanticSearch(ctx context.Context, namespace string, queryEmbedding []float32, k int, filters map[string]string) ([]*CodeUnit, error) {
	matches, err := g.backend.VectorSearch(ctx, namespace, tableUnit, "embedding", queryEmbedding, k*4+k)
	if err != nil {
		return nil, err
	}

	out := make([]*CodeUnit, 0, k)
	for _, m := range matches {
		u := rowToUnit(m.Row)
		if u.Status != StatusActive {
			continue
		}
		if lang, ok := filters["language"]; ok && u.Language != lang {
			continue
		}
		if ut, ok := filters["unit_type"]; ok && u.UnitType != ut {
			continue
		}
		out = append(out, u)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// FindCycles runs Tarjan's strongly-connected-components algorithm over
// the active DEPENDS_ON subgraph, optionally narrowed to units belonging
// to scopeFileVnodeID (empty string scopes to the whole workspace), and
// returns every SCC of size > 1 plus any self-loops.
func (g *Graph) FindCycles(ctx context.Context, namespace, scopeFileVnodeID string) ([]Cycle, error) {
	all, err := g.allUnits(ctx, namespace)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*CodeUnit)
	for _, u := range all {
		if u.Status != StatusActive {
			continue
		}
		if scopeFileVnodeID != "" && u.FileVNodeID != scopeFileVnodeID {
			continue
		}
		nodes[u.ID] = u
	}

	adj := make(map[string][]string, len(nodes))
	for id := range nodes {
		res, err := g.backend.Execute(ctx, namespace, store.Op{
			Kind: store.OpTraverse, Table: tableUnit, Key: id, EdgeKind: EdgeDependsOn, Depth: 1,
		})
		if err != nil {
			continue
		}
		var targets []string
		for _, row := range res.Rows {
			tid := str(row["id"])
			if _, ok := nodes[tid]; ok {
				targets = append(targets, tid)
			}
		}
		adj[id] = targets
	}

	return tarjanSCC(adj), nil
}

// tarjanSCC runs Tarjan's algorithm and returns every strongly connected
// component of size > 1, plus single-node components with a self-loop.
func tarjanSCC(adj map[string][]string) []Cycle {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycles []Cycle

	ids := make([]string, 0, len(adj))
	for id := range adj {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, ok := indices[w]; !ok {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}

			selfLoop := false
			if len(scc) == 1 {
				for _, w := range adj[scc[0]] {
					if w == scc[0] {
						selfLoop = true
					}
				}
			}
			if len(scc) > 1 || selfLoop {
				sort.Strings(scc)
				cycles = append(cycles, Cycle{UnitIDs: scc})
			}
		}
	}

	for _, id := range ids {
		if _, ok := indices[id]; !ok {
			strongconnect(id)
		}
	}
	return cycles
}
