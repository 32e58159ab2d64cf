package hardware

import (
	"strconv"
	"strings"
)

// Identifier is a hierarchical key such as /intelcpu/0/voltageoffset/2. It
// is stable across restarts for the same device and index.
type Identifier struct {
	parts []string
}

// NewIdentifier builds an identifier from raw segments. Segments are
// lowercased and may not contain a slash.
func NewIdentifier(parts ...string) Identifier {
	return Identifier{}.Child(parts...)
}

// ParseIdentifier is the inverse of String.
func ParseIdentifier(s string) Identifier {
	return NewIdentifier(strings.Split(strings.Trim(s, "/"), "/")...)
}

// Child returns a new identifier extending id with parts.
func (id Identifier) Child(parts ...string) Identifier {
	out := make([]string, 0, len(id.parts)+len(parts))
	out = append(out, id.parts...)
	for _, p := range parts {
		p = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), "/", "-"))
		if p == "" {
			continue
		}
		out = append(out, p)
	}

	return Identifier{parts: out}
}

// ChildIndex appends a name and a numeric index.
func (id Identifier) ChildIndex(name string, index int) Identifier {
	return id.Child(name, strconv.Itoa(index))
}

// Segments returns a copy of the path segments.
func (id Identifier) Segments() []string {
	out := make([]string, len(id.parts))
	copy(out, id.parts)

	return out
}

func (id Identifier) IsZero() bool {
	return len(id.parts) == 0
}

func (id Identifier) String() string {
	return "/" + strings.Join(id.parts, "/")
}

// HasPrefix reports whether other is an ancestor of (or equal to) id.
func (id Identifier) HasPrefix(other Identifier) bool {
	if len(other.parts) > len(id.parts) {
		return false
	}
	for i, p := range other.parts {
		if id.parts[i] != p {
			return false
		}
	}

	return true
}
