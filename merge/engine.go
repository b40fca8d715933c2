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

	"github.com/google/uuid"

	"github.com/cortex-dev/cortex/collaborator"
	"github.com/cortex-dev/cortex/content"
	"github.com/cortex-dev/cortex/graph"
	"github.com/cortex-dev/cortex/lock"
	"github.com/cortex-dev/cortex/pkg/errors"
	"github.com/cortex-dev/cortex/session"
	"github.com/cortex-dev/cortex/store"
	"github.com/cortex-dev/cortex/vfs"
	"github.com/cortex-dev/cortex/workspace"
)

// Engine reconciles a session's change set into its parent workspace.
type Engine struct {
	backend    store.Store
	workspaces *workspace.Manager
	sessions   *session.Engine
	locks      *lock.Manager
	graph      *graph.Graph
	content    *content.Store
	parsers    map[string]collaborator.Parser
	resolver   Resolver
}

// New creates an Engine. parsers keys the language-specific parsers used
// for semantic merge; a language absent from the map always falls back to
// line-based merge. resolver is optional; pass nil to disable AI-assisted
// conflict resolution.
func New(backend store.Store, workspaces *workspace.Manager, sessions *session.Engine, locks *lock.Manager, parsers map[string]collaborator.Parser, resolver Resolver) *Engine {
	if parsers == nil {
		parsers = make(map[string]collaborator.Parser)
	}
	return &Engine{
		backend:    backend,
		workspaces: workspaces,
		sessions:   sessions,
		locks:      locks,
		graph:      graph.New(backend),
		content:    content.NewStore(backend),
		parsers:    parsers,
		resolver:   resolver,
	}
}

// fileSide is one side's view of a changed path during a merge.
type fileSide struct {
	data    []byte
	vnode   *vfs.VNode
	deleted bool
}

// Merge reconciles sess's change set against its workspace's current
// state using strategy, per spec.md §4.7's three-way semantic merge.
//
// On success the workspace is updated, its current_version is bumped, and
// the session is marked completed. On an unresolved conflict under
// StrategyAuto, the workspace is left untouched, the session remains in
// StatusMerging, and the returned error wraps errors.ErrSyncConflict with
// the Report's conflicts attached for the caller to inspect or retry.
func (e *Engine) Merge(ctx context.Context, sessionID string, strategy Strategy) (*Report, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ws, err := e.workspaces.Get(ctx, sess.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if sess, err = e.sessions.MarkMerging(ctx, sessionID); err != nil {
		return nil, err
	}
	fs := vfs.New(ws.ID, e.backend, e.content)

	lk, err := e.locks.Acquire(ctx, lock.Request{
		EntityRef: ws.ID, RefType: lock.RefEntity, LockType: lock.TypeExclusive,
		OwnerSession: sessionID, Policy: lock.PolicyFailFast,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.locks.Release(ctx, lk.ID, sessionID) }()

	paths := changedPaths(sess.ChangeSet)
	report := &Report{SessionID: sessionID}

	type resolved struct {
		path     string
		delete   bool
		data     []byte
		language string
	}
	var toApply []resolved

	for _, path := range paths {
		mine := e.readSide(ctx, fs, sess.Namespace+":vfs", path)
		theirs := e.readSide(ctx, fs, ws.Namespace+":vfs", path)
		base := e.readBase(ctx, fs, sess.Namespace+":vfs", path)

		if mine.deleted && theirs.deleted {
			continue // deleted on both sides, nothing to reconcile
		}
		if !mine.deleted && !theirs.deleted && content.Hash(mine.data) == content.Hash(theirs.data) {
			continue // converged independently
		}

		language := sideLanguage(mine, theirs, base)
		parser, hasParser := e.parsers[language]

		switch {
		case mine.deleted && !theirs.deleted:
			if content.Hash(theirs.data) == content.Hash(base.data) {
				toApply = append(toApply, resolved{path: path, delete: true})
			} else {
				report.Conflicts = append(report.Conflicts, Conflict{
					ID: uuid.NewString(), SessionID: sessionID, Path: path,
					EntityType: "vnode", Base: string(base.data), Mine: "", Theirs: string(theirs.data),
					ConflictType: ConflictText,
				})
			}
			continue
		case theirs.deleted && !mine.deleted:
			if content.Hash(mine.data) == content.Hash(base.data) {
				toApply = append(toApply, resolved{path: path, delete: true})
			} else {
				report.Conflicts = append(report.Conflicts, Conflict{
					ID: uuid.NewString(), SessionID: sessionID, Path: path,
					EntityType: "vnode", Base: string(base.data), Mine: string(mine.data), Theirs: "",
					ConflictType: ConflictText,
				})
			}
			continue
		}

		if !hasParser {
			merged, conflict, ok := lineMerge(base.data, mine.data, theirs.data)
			if ok {
				toApply = append(toApply, resolved{path: path, data: merged, language: language})
			} else {
				report.Conflicts = append(report.Conflicts, conflict.withContext(sessionID, path))
			}
			continue
		}

		merged, conflicts, err := e.semanticMerge(ctx, sessionID, path, language, parser, base.data, mine.data, theirs.data, strategy)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			report.Conflicts = append(report.Conflicts, conflicts...)
			continue
		}
		toApply = append(toApply, resolved{path: path, data: merged, language: language})
	}

	if len(report.Conflicts) > 0 && strategy == StrategyAuto {
		return report, errors.ErrSyncConflict.WithDetail("conflict_count", len(report.Conflicts))
	}

	for _, r := range toApply {
		if r.delete {
			if err := fs.Delete(ctx, ws.Namespace+":vfs", r.path, false, "merge-engine"); err != nil && !errors.IsNotFound(err) {
				return nil, errors.ErrInternal.WithMessage("apply merged deletion").Wrap(err)
			}
			continue
		}
		v, err := fs.WriteFile(ctx, ws.Namespace+":vfs", r.path, r.data, r.language, "merge-engine")
		if err != nil {
			return nil, errors.ErrInternal.WithMessage("apply merged file").Wrap(err)
		}
		if parser, ok := e.parsers[r.language]; ok {
			if _, err := e.graph.Extract(ctx, ws.Namespace+":graph", v.ID, r.data, r.language, parser, "merge-engine"); err != nil {
				return nil, errors.ErrInternal.WithMessage("re-extract merged code units").Wrap(err)
			}
		}
		report.MergedPaths = append(report.MergedPaths, r.path)
	}

	if _, err := e.workspaces.BumpVersion(ctx, ws.ID); err != nil {
		return nil, err
	}
	if err := e.sessions.Complete(ctx, sessionID); err != nil {
		return nil, err
	}
	return report, nil
}

func (c Conflict) withContext(sessionID, path string) Conflict {
	c.SessionID = sessionID
	c.Path = path
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c
}

func changedPaths(changeSet []session.Change) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ch := range changeSet {
		if seen[ch.EntityRef] {
			continue
		}
		seen[ch.EntityRef] = true
		out = append(out, ch.EntityRef)
	}
	return out
}

func (e *Engine) readSide(ctx context.Context, fs *vfs.FS, namespace, path string) fileSide {
	data, v, err := fs.ReadFile(ctx, namespace, path)
	if err != nil {
		return fileSide{deleted: true}
	}
	return fileSide{data: data, vnode: v}
}

// readBase derives the pre-fork content for path from the session's own
// fork-time history: CopyNamespace(deep=true) duplicated the full version
// history alongside the vnode rows, so the oldest entry in the session's
// own namespace is exactly the state the session forked from.
func (e *Engine) readBase(ctx context.Context, fs *vfs.FS, sessionVFSNamespace, path string) fileSide {
	history, err := fs.GetHistory(ctx, sessionVFSNamespace, path, 0)
	if err != nil || len(history) == 0 {
		return fileSide{deleted: true}
	}
	base := history[len(history)-1] // GetHistory sorts newest-first
	if base.ContentHash == "" {
		return fileSide{deleted: true}
	}
	data, err := e.content.Get(ctx, sessionVFSNamespace, base.ContentHash)
	if err != nil {
		return fileSide{deleted: true}
	}
	return fileSide{data: data, vnode: base.Snapshot}
}

// semanticMerge applies spec.md §4.7's disposition table at the code-unit
// level, optionally consulting e.resolver for conflicts strategy leaves
// unresolved, and splices the winning units back into base's lines.
func (e *Engine) semanticMerge(ctx context.Context, sessionID, path, language string, parser collaborator.Parser, baseData, mineData, theirsData []byte, strategy Strategy) ([]byte, []Conflict, error) {
	baseUnits, _, err := parseOrEmpty(ctx, parser, baseData, language)
	if err != nil {
		return nil, nil, err
	}
	mineUnits, _, err := parseOrEmpty(ctx, parser, mineData, language)
	if err != nil {
		return nil, nil, err
	}
	theirsUnits, _, err := parseOrEmpty(ctx, parser, theirsData, language)
	if err != nil {
		return nil, nil, err
	}

	dispositions := diffUnits(baseUnits, mineUnits, theirsUnits)
	mineByName := unitsByName(mineUnits)
	theirsByName := unitsByName(theirsUnits)
	unresolved := applyStrategy(dispositions, strategy, mineByName, theirsByName)

	var conflicts []Conflict
	for _, d := range unresolved {
		mineUnit, theirsUnit := mineByName[d.qualifiedName], theirsByName[d.qualifiedName]
		c := Conflict{
			ID: "", SessionID: sessionID, Path: path, EntityType: "unit",
			ConflictType: ConflictSemantic,
		}
		if u, ok := mineByName[d.qualifiedName]; ok {
			c.Mine = u.Body
		}
		if u, ok := theirsByName[d.qualifiedName]; ok {
			c.Theirs = u.Body
		}
		for _, bu := range baseUnits {
			if bu.QualifiedName == d.qualifiedName {
				c.Base = bu.Body
			}
		}

		if e.resolver != nil {
			if merged, ok, err := e.resolver.Resolve(ctx, c); err == nil && ok {
				if e.validateResolution(ctx, parser, language, merged, d.qualifiedName, mineUnit, theirsUnit) {
					resolvedUnit := mineUnit
					if resolvedUnit == nil {
						resolvedUnit = theirsUnit
					}
					cp := *resolvedUnit
					cp.Body = merged
					for idx := range dispositions {
						if dispositions[idx].qualifiedName == d.qualifiedName {
							dispositions[idx].side = sideMine
							dispositions[idx].content = &cp
						}
					}
					continue
				}
			}
		}
		conflicts = append(conflicts, c.withContext(sessionID, path))
	}
	if len(conflicts) > 0 {
		return nil, conflicts, nil
	}

	return reconstruct(string(baseData), dispositions), nil, nil
}

// validateResolution rejects a Resolver's proposal unless it reparses
// cleanly as exactly one unit under the same qualified name, preserving
// public visibility whenever either original side was public — an AI
// proposal is never trusted to change a public signature silently.
func (e *Engine) validateResolution(ctx context.Context, parser collaborator.Parser, language, mergedBody, qualifiedName string, mine, theirs *collaborator.ParsedUnit) bool {
	units, parseErrs, err := parser.Parse(ctx, []byte(mergedBody), language)
	if err != nil || len(parseErrs) > 0 || len(units) != 1 || units[0].QualifiedName != qualifiedName {
		return false
	}
	wasPublic := (mine != nil && mine.Visibility == "public") || (theirs != nil && theirs.Visibility == "public")
	if wasPublic && units[0].Visibility != "public" {
		return false
	}
	return true
}

func parseOrEmpty(ctx context.Context, parser collaborator.Parser, data []byte, language string) ([]collaborator.ParsedUnit, []collaborator.ParseError, error) {
	if len(data) == 0 {
		return nil, nil, nil
	}
	return parser.Parse(ctx, data, language)
}

func unitsByName(units []collaborator.ParsedUnit) map[string]*collaborator.ParsedUnit {
	m := make(map[string]*collaborator.ParsedUnit, len(units))
	for i := range units {
		m[units[i].QualifiedName] = &units[i]
	}
	return m
}

func sideLanguage(sides ...fileSide) string {
	for _, s := range sides {
		if !s.deleted && s.vnode != nil && s.vnode.Language != "" {
			return s.vnode.Language
		}
	}
	return ""
}
