package vfs

import "github.com/bmatcuk/doublestar/v4"

// MatchAll is the universal filter which accepts every path.
const MatchAll = "**"

// compileFilter validates a glob filter once and returns the matcher used for every
// subsequent event. Filters are matched against Path#Normalized, so patterns never
// carry a leading slash. The universal filter gets a fast path which skips the glob
// engine entirely.
func compileFilter(filter string) (func(string) bool, error) {
	if filter == "" {
		return nil, &InvalidPathError{Path: Path(filter), Message: "empty filter"}
	}
	if filter == MatchAll {
		return func(string) bool { return true }, nil
	}
	// Probe once so that a broken pattern surfaces at subscription time and not on
	// the delivery path.
	if _, err := doublestar.Match(filter, "probe"); err != nil {
		return nil, &InvalidPathError{Path: Path(filter), Message: "invalid filter pattern"}
	}
	return func(path string) bool {
		matched, err := doublestar.Match(filter, path)
		return err == nil && matched
	}, nil
}
