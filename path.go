package vfs

import "strings"

// A Path must be unique in its context and has the role of a composite key. Its
// segments are always separated using a slash, even if they denote paths from windows.
// The root is the empty path. There is no distinction between absolute and relative
// paths, every path is rooted at the filesystem it is given to.
//
// Design decisions
//
// There are the following opinionated decisions:
//  * In the context of a filesystem, this is equal to the full qualified name of a
//    file entry.
//
//  * It is a string, because de facto all modern APIs are UTF-8 and web based. A pure
//    string with helper methods also keeps millions of in-memory paths cheap, in
//    contrast to a slice of segments which would double the allocation count.
//
//  * Empty segments are ignored while resolving, so /a//b and a/b denote the same
//    entry. Whether a trailing slash is tolerated is a per-filesystem policy, see the
//    EmptyDirName path facet.
type Path string

// StartsWith tests whether the path begins with the segments of prefix.
func (p Path) StartsWith(prefix Path) bool {
	a := p.Names()
	b := prefix.Names()
	if len(b) > len(a) {
		return false
	}
	for i, name := range b {
		if a[i] != name {
			return false
		}
	}
	return true
}

// EndsWith tests whether the path ends with suffix.
func (p Path) EndsWith(suffix Path) bool {
	return strings.HasSuffix(string(p), string(suffix))
}

// Names splits the path by / and returns all non-empty segments.
func (p Path) Names() []string {
	tmp := strings.Split(string(p), PathSeparator)
	cleaned := make([]string, len(tmp))
	idx := 0
	for _, str := range tmp {
		str = strings.TrimSpace(str)
		if len(str) > 0 {
			cleaned[idx] = str
			idx++
		}
	}
	return cleaned[0:idx]
}

// NameCount returns how many names are included in this path.
func (p Path) NameCount() int {
	return len(p.Names())
}

// NameAt returns the name at the given index.
func (p Path) NameAt(idx int) string {
	return p.Names()[idx]
}

// Name returns the last element in this path or the empty string if this path is the
// root.
func (p Path) Name() string {
	tmp := p.Names()
	if len(tmp) > 0 {
		return tmp[len(tmp)-1]
	}
	return ""
}

// Parent returns the parent path of this path.
func (p Path) Parent() Path {
	tmp := p.Names()
	if len(tmp) > 0 {
		return Path(strings.Join(tmp[:len(tmp)-1], PathSeparator))
	}
	return ""
}

// IsRoot tells if the path contains no segments at all.
func (p Path) IsRoot() bool {
	return len(p.Names()) == 0
}

// HasTrailingSeparator tells if the raw path ends with a separator without being the
// plain root.
func (p Path) HasTrailingSeparator() bool {
	return len(p) > 1 && strings.HasSuffix(string(p), PathSeparator)
}

// String normalizes the slashes in Path. The root is /.
func (p Path) String() string {
	return PathSeparator + strings.Join(p.Names(), PathSeparator)
}

// Normalized returns the segments joined by slashes without a leading separator. The
// root is the empty string. This is the form glob filters are matched against.
func (p Path) Normalized() string {
	return strings.Join(p.Names(), PathSeparator)
}

// Child returns a new Path with name appended as a child.
func (p Path) Child(name string) Path {
	names := p.Names()
	if len(names) == 0 {
		return Path(name)
	}
	return Path(strings.Join(names, PathSeparator) + PathSeparator + name)
}

// TrimPrefix returns the path without the leading segments of prefix. If the path does
// not start with prefix, the path is returned unchanged.
func (p Path) TrimPrefix(prefix Path) Path {
	if !p.StartsWith(prefix) {
		return p
	}
	names := p.Names()[prefix.NameCount():]
	return Path(strings.Join(names, PathSeparator))
}

// ConcatPaths merges all paths together.
func ConcatPaths(paths ...Path) Path {
	tmp := make([]string, 0, len(paths))
	for _, path := range paths {
		tmp = append(tmp, path.Names()...)
	}
	return Path(strings.Join(tmp, PathSeparator))
}
