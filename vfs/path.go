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

package vfs

import (
	"strings"

	"github.com/cortex-dev/cortex/pkg/errors"
)

// RootPath is the normalized form of the workspace root directory.
const RootPath = ""

// normalizePath resolves a caller-supplied path into the canonical,
// repo-relative, slash-separated form every vnode is keyed by: no leading
// slash (the root is the empty string), no trailing slash, "." elided,
// ".." resolved against preceding segments. A ".." that would escape the
// workspace root is rejected.
func normalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) == 0 {
				return "", errors.ErrInvalidInput.WithMessage("path escapes workspace root").WithDetail("path", p)
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}

	return strings.Join(out, "/"), nil
}

// parentOf returns the normalized parent directory path of a normalized
// path, or RootPath if path is already a root-level entry.
func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return RootPath
	}
	return path[:idx]
}

// baseName returns the final path segment.
func baseName(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// isDescendant reports whether child lies strictly within the subtree
// rooted at dir (dir itself is not its own descendant).
func isDescendant(dir, child string) bool {
	if dir == RootPath {
		return child != RootPath
	}
	return strings.HasPrefix(child, dir+"/")
}

// isDirectChild reports whether child's parent is exactly dir.
func isDirectChild(dir, child string) bool {
	return parentOf(child) == dir
}

// joinPath joins a normalized directory with a single segment name.
func joinPath(dir, name string) string {
	if dir == RootPath {
		return name
	}
	return dir + "/" + name
}
