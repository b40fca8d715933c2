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
	"sort"
	"strings"

	"github.com/cortex-dev/cortex/collaborator"
)

// side names which input a disposition's content came from.
type side string

const (
	sideBase     side = "base"
	sideMine     side = "mine"
	sideTheirs   side = "theirs"
	sideDropped  side = "dropped"
	sideConflict side = "conflict"
)

// disposition is the resolved state of one qualified_name across the
// three-way comparison, per spec.md §4.7's disposition table. basePos
// anchors where in the base file this unit lives (nil for a unit added
// fresh by one side, with nothing in base to replace); content is the
// winning body text (nil when the unit is dropped).
type disposition struct {
	qualifiedName string
	side          side
	basePos       *collaborator.ParsedUnit
	content       *collaborator.ParsedUnit
}

// diffUnits applies spec.md §4.7's disposition table to the base/mine/
// theirs unit sets, keyed by qualified_name.
func diffUnits(base, mine, theirs []collaborator.ParsedUnit) []disposition {
	b, m, t := unitsByName(base), unitsByName(mine), unitsByName(theirs)

	names := make(map[string]bool)
	for n := range b {
		names[n] = true
	}
	for n := range m {
		names[n] = true
	}
	for n := range t {
		names[n] = true
	}

	var out []disposition
	for name := range names {
		bu, bok := b[name]
		mu, mok := m[name]
		tu, tok := t[name]

		d := disposition{qualifiedName: name}
		switch {
		case bok && mok && tok:
			d = dispositionThreeWay(name, bu, mu, tu)
		case !bok && mok && !tok:
			d.side, d.content = sideMine, mu
		case !bok && !mok && tok:
			d.side, d.content = sideTheirs, tu
		case !bok && mok && tok:
			// Both sides independently added the same name: treat
			// identical bodies as convergent, else a semantic conflict.
			if mu.Body == tu.Body {
				d.side, d.content = sideMine, mu
			} else {
				d.side = sideConflict
			}
		case bok && !mok && !tok:
			d.side, d.basePos = sideDropped, bu
		case bok && !mok && tok:
			d = dispositionOneSideDeleted(name, bu, tu)
		case bok && mok && !tok:
			d = dispositionOneSideDeleted(name, bu, mu)
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].qualifiedName < out[j].qualifiedName })
	return out
}

func dispositionThreeWay(name string, base, mine, theirs *collaborator.ParsedUnit) disposition {
	d := disposition{qualifiedName: name, basePos: base}
	switch {
	case mine.Body == base.Body && theirs.Body == base.Body:
		d.side, d.content = sideBase, base
	case mine.Body == theirs.Body:
		d.side, d.content = sideMine, mine
	case mine.Body == base.Body && theirs.Body != base.Body:
		d.side, d.content = sideTheirs, theirs
	case theirs.Body == base.Body && mine.Body != base.Body:
		d.side, d.content = sideMine, mine
	default:
		d.side = sideConflict
	}
	return d
}

// dispositionOneSideDeleted handles "present in base and one of
// mine/theirs only". If the surviving side left the body unchanged from
// base, the deletion wins; if it modified the body, that is a
// delete-vs-modify conflict. basePos is always set so the eventual
// disposition (whichever way a conflict resolves) knows where in base
// this unit lived.
func dispositionOneSideDeleted(name string, base, survivor *collaborator.ParsedUnit) disposition {
	d := disposition{qualifiedName: name, basePos: base}
	if survivor.Body == base.Body {
		d.side = sideDropped
	} else {
		d.side = sideConflict
	}
	return d
}

// applyStrategy resolves every sideConflict disposition per strategy,
// returning the still-unresolved ones (empty for every strategy but
// auto, which leaves genuine conflicts for the caller to report).
func applyStrategy(dispositions []disposition, strategy Strategy, mineByName, theirsByName map[string]*collaborator.ParsedUnit) []disposition {
	var unresolved []disposition
	for i, d := range dispositions {
		if d.side != sideConflict {
			continue
		}
		switch strategy {
		case StrategyMine, StrategyForce:
			if u, ok := mineByName[d.qualifiedName]; ok {
				dispositions[i].side, dispositions[i].content = sideMine, u
			} else {
				dispositions[i].side = sideDropped
			}
		case StrategyTheirs:
			if u, ok := theirsByName[d.qualifiedName]; ok {
				dispositions[i].side, dispositions[i].content = sideTheirs, u
			} else {
				dispositions[i].side = sideDropped
			}
		default: // StrategyAuto
			unresolved = append(unresolved, d)
		}
	}
	return unresolved
}

// lineMerge is the fallback used when a changed path's language has no
// registered parser: a whole-file three-way comparison with no unit-level
// granularity. ok is false when base, mine, and theirs all differ from
// each other, in which case conflict describes the whole-file disagreement.
func lineMerge(base, mine, theirs []byte) (merged []byte, conflict Conflict, ok bool) {
	switch {
	case string(mine) == string(theirs):
		return mine, Conflict{}, true
	case string(mine) == string(base):
		return theirs, Conflict{}, true
	case string(theirs) == string(base):
		return mine, Conflict{}, true
	default:
		return nil, Conflict{
			EntityType:   "vnode",
			Base:         string(base),
			Mine:         string(mine),
			Theirs:       string(theirs),
			ConflictType: ConflictText,
		}, false
	}
}

// reconstruct rebuilds file bytes from baseText by splicing each
// disposition's winning content over its basePos's [StartLine,EndLine]
// range in base (processed bottom-up so earlier replacements don't shift
// later line numbers), appending units with no basePos (pure additions)
// at the end of the file, and removing the range for dropped units.
func reconstruct(baseText string, dispositions []disposition) []byte {
	lines := strings.Split(baseText, "\n")

	type edit struct {
		start, end int // 1-indexed, inclusive, as produced by the parser
		body       string
	}
	var edits []edit
	var additions []string

	for _, d := range dispositions {
		switch {
		case d.side == sideBase:
			// nothing to do, base text already present
		case d.basePos == nil && d.content != nil:
			additions = append(additions, d.content.Body)
		case d.basePos != nil && d.content == nil:
			edits = append(edits, edit{start: d.basePos.StartLine, end: d.basePos.EndLine, body: ""})
		case d.basePos != nil && d.content != nil:
			edits = append(edits, edit{start: d.basePos.StartLine, end: d.basePos.EndLine, body: d.content.Body})
		}
	}

	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	for _, e := range edits {
		start, end := e.start-1, e.end
		if start < 0 || end > len(lines) || start >= end {
			continue
		}
		replacement := []string{}
		if e.body != "" {
			replacement = strings.Split(e.body, "\n")
		}
		merged := make([]string, 0, len(lines)-(end-start)+len(replacement))
		merged = append(merged, lines[:start]...)
		merged = append(merged, replacement...)
		merged = append(merged, lines[end:]...)
		lines = merged
	}

	out := strings.Join(lines, "\n")
	for _, add := range additions {
		out += "\n\n" + add
	}
	return []byte(out)
}
