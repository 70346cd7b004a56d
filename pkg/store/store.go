// Package store defines the capability interface the reconciliation engine
// uses to talk to a note store, and hosts the two implementations: the
// Joplin HTTP client and the filesystem vault.
package store

import (
	"context"

	"github.com/aretw0/notebridge/pkg/note"
)

// Store is one side of the sync. Implementations embed and extract identity
// stamps in their own encoding, expose updated_at with at least second
// resolution, and clamp timestamps that claim to be in the future.
type Store interface {
	// ListNotes returns every note in the store, identity stamps already
	// extracted into Note.ID.
	ListNotes(ctx context.Context) ([]note.Note, error)

	// GetNote fetches one note by its store-local Ref.
	GetNote(ctx context.Context, ref string) (note.Note, error)

	// CreateNote writes a new note and fills in its store-local Ref and
	// the UpdatedAt the store assigned to the write. The body must already
	// carry the embedded identity stamp.
	CreateNote(ctx context.Context, n *note.Note) error

	// UpdateNote overwrites the note addressed by Ref and fills in the
	// UpdatedAt the store assigned to the write.
	UpdateNote(ctx context.Context, n *note.Note) error

	// DeleteNote soft-deletes the note addressed by Ref (trash, never
	// destroy).
	DeleteNote(ctx context.Context, n *note.Note) error
}
