// Package note defines the store-agnostic note model shared by both sync
// sides, plus the identity stamps and content normalization that make notes
// from different stores comparable.
package note

import (
	"strings"
	"time"
)

// Source identifies which store a note (or a sync stamp) originated from.
type Source string

const (
	SourceJoplin  Source = "joplin"
	SourceVault   Source = "vault"
	SourceUnknown Source = "unknown"
)

// ParseSource maps a persisted source string back to a Source, defaulting to
// SourceUnknown for anything unrecognized.
func ParseSource(s string) Source {
	switch Source(strings.TrimSpace(s)) {
	case SourceJoplin:
		return SourceJoplin
	case SourceVault:
		return SourceVault
	}
	return SourceUnknown
}

// Note is the central entity of the domain. It is agnostic to storage format:
// the Joplin store and the vault store both produce Notes with the same shape.
type Note struct {
	// ID is the stable cross-store identity (a notebridge id). Empty until
	// the note has been through its first sync.
	ID string

	Title string
	Body  string // raw body, including any embedded sync stamp

	// Container is the full logical folder name: a nested notebook path for
	// Joplin ("Work/Projects") or a vault-relative directory for files.
	Container string

	Tags []string

	// UpdatedAt is the store-local modification time, second resolution or
	// better. Stores clamp future timestamps before handing notes over.
	UpdatedAt time.Time

	Source  Source
	Version int // monotonic sync version, 1 when the store reports none

	// Ref is the store-local handle: the Joplin note id, or the
	// vault-relative file path. Opaque to the planner.
	Ref string
}

// Valid reports whether the note is a sync candidate. A note with an empty
// title or an empty normalized body signals a deleted-but-still-listed or
// corrupt note and is excluded from all downstream processing.
func (n *Note) Valid() bool {
	if strings.TrimSpace(n.Title) == "" {
		return false
	}
	return Normalize(n.Body) != ""
}

// Key returns a per-run unique key for the note, usable even before an
// identity is assigned.
func (n *Note) Key() string {
	return string(n.Source) + ":" + n.Ref
}
