// Package pathid implements the hierarchical, slash-separated PathId
// identifiers shared by groups and run-specs.
package pathid

import (
	"strings"

	"github.com/kindling-sh/marathon/internal/marathonerr"
)

// safeSentinel replaces "/" when a PathId must embed in an opaque string
// (instance ids, persistence keys). Chosen to match a DNS-1035-safe
// naming convention rather than anything URL-escape-derived.
const safeSentinel = "."

// PathId is a hierarchical identifier. The zero value is an empty relative
// path; Root() returns the absolute root path "/".
type PathId struct {
	// segments holds the path components with no leading/trailing slashes.
	// Absolute paths always resolve against the root; relative paths are
	// resolved by Resolve before any comparison or persistence.
	segments []string
	absolute bool
}

// Root is the "/" path.
func Root() PathId { return PathId{absolute: true} }

// Parse splits raw into a PathId. Leading "/" marks it absolute. Segments
// containing "." or "/" (after splitting) are rejected: those characters
// are reserved.
func Parse(raw string) (PathId, error) {
	if raw == "" {
		return PathId{}, marathonerr.Wrap(marathonerr.ValidationFailure, "empty path", nil)
	}
	absolute := strings.HasPrefix(raw, "/")
	trimmed := strings.Trim(raw, "/")
	var segments []string
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}
	for _, s := range segments {
		if s == "" {
			return PathId{}, marathonerr.Wrap(marathonerr.ValidationFailure, "empty path segment in "+raw, nil)
		}
		if strings.Contains(s, ".") {
			return PathId{}, marathonerr.Wrap(marathonerr.ValidationFailure, "segment contains reserved '.': "+s, nil)
		}
	}
	return PathId{segments: segments, absolute: absolute}, nil
}

// MustParse panics on invalid input; reserved for constants and tests.
func MustParse(raw string) PathId {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// IsAbsolute reports whether the id was parsed with a leading slash.
func (p PathId) IsAbsolute() bool { return p.absolute }

// IsRoot reports whether this is the absolute root path.
func (p PathId) IsRoot() bool { return p.absolute && len(p.segments) == 0 }

// Segments returns a copy of the path components.
func (p PathId) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Parent returns the containing path, or Root() if p has no parent.
func (p PathId) Parent() PathId {
	if len(p.segments) == 0 {
		return PathId{absolute: p.absolute}
	}
	return PathId{segments: append([]string{}, p.segments[:len(p.segments)-1]...), absolute: p.absolute}
}

// Name returns the final path segment, or "" for root.
func (p PathId) Name() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Child returns the path of a direct child named name, keeping p's
// absoluteness.
func (p PathId) Child(name string) PathId {
	return PathId{segments: append(append([]string{}, p.segments...), name), absolute: p.absolute}
}

// IsChildOf reports whether p is a direct or transitive child path of other.
func (p PathId) IsChildOf(other PathId) bool {
	if len(p.segments) <= len(other.segments) {
		return false
	}
	for i, s := range other.segments {
		if p.segments[i] != s {
			return false
		}
	}
	return true
}

// Resolve interprets p relative to base when p is not absolute: a
// relative id inside a group update at `/parent` resolves to
// `/parent/<p>`, not to root.
func (p PathId) Resolve(base PathId) PathId {
	if p.absolute {
		return p
	}
	return PathId{segments: append(append([]string{}, base.segments...), p.segments...), absolute: true}
}

// Safe renders p in the form usable inside an opaque string such as an
// instance id: "/" segments joined by safeSentinel, with no leading slash.
func (p PathId) Safe() string {
	return strings.Join(p.segments, safeSentinel)
}

// String renders the canonical absolute/relative slash form.
func (p PathId) String() string {
	joined := strings.Join(p.segments, "/")
	if p.absolute {
		return "/" + joined
	}
	return joined
}

// Equal compares two ids segment-wise; absoluteness must also match.
func (p PathId) Equal(other PathId) bool {
	if p.absolute != other.absolute || len(p.segments) != len(other.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Less orders ids lexicographically on their canonical string form, used
// for the planner's deterministic tie-break.
func (p PathId) Less(other PathId) bool {
	return p.String() < other.String()
}
