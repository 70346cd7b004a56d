// Package vault reads and writes notes as Markdown files in a plain-file
// vault (an Obsidian-style directory tree). Identity stamps live in YAML
// frontmatter.
package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/notebridge/pkg/note"
)

// DefaultIgnore is applied on top of user-configured ignore patterns.
var DefaultIgnore = []string{".obsidian/**", ".git/**", ".trash/**", ".notebridge/**"}

// Vault is a directory of Markdown notes.
type Vault struct {
	Path     string
	Ignore   []string // doublestar patterns, relative to Path
	TrashDir string   // soft-delete target, relative to Path
	Logger   *slog.Logger

	// Now is the run clock used to clamp future mtimes; defaults to
	// time.Now.
	Now func() time.Time

	codec note.FrontmatterCodec
}

// New creates a Vault rooted at path. The path must already exist.
func New(path string, logger *slog.Logger) (*Vault, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("vault path does not exist: %s", path)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path is not a directory: %s", path)
	}
	return &Vault{
		Path:     path,
		TrashDir: ".trash",
		Logger:   logger,
		Now:      time.Now,
	}, nil
}

func (v *Vault) ignored(relPath string) bool {
	for _, pattern := range append(append([]string{}, DefaultIgnore...), v.Ignore...) {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// ListNotes scans the vault recursively for Markdown files. A file that
// vanishes or fails to read mid-scan is skipped with a warning; the scan
// continues.
func (v *Vault) ListNotes(ctx context.Context) ([]note.Note, error) {
	now := v.Now()
	var notes []note.Note

	err := filepath.WalkDir(v.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if v.Logger != nil {
				v.Logger.Warn("skipping unreadable path", "path", path, "error", err)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(v.Path, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && v.ignored(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(d.Name()) != ".md" || v.ignored(rel) {
			return nil
		}

		n, readErr := v.readNote(path, rel, now)
		if readErr != nil {
			if v.Logger != nil {
				v.Logger.Warn("skipping unreadable note", "path", rel, "error", readErr)
			}
			return nil
		}
		notes = append(notes, n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault: %w", err)
	}
	return notes, nil
}

// GetNote reads one note by its path relative to the vault root.
func (v *Vault) GetNote(ctx context.Context, ref string) (note.Note, error) {
	if err := ctx.Err(); err != nil {
		return note.Note{}, err
	}
	full := filepath.Join(v.Path, filepath.FromSlash(ref))
	return v.readNote(full, ref, v.Now())
}

func (v *Vault) readNote(fullPath, rel string, now time.Time) (note.Note, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return note.Note{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return note.Note{}, err
	}

	updated := info.ModTime()
	if updated.After(now) {
		if v.Logger != nil {
			v.Logger.Warn("clamping future vault timestamp", "path", rel, "mtime", updated)
		}
		updated = now
	}

	container := filepath.ToSlash(filepath.Dir(rel))
	if container == "." {
		container = ""
	}

	n := note.Note{
		Title:     strings.TrimSuffix(filepath.Base(rel), ".md"),
		Body:      string(data),
		Container: container,
		UpdatedAt: updated,
		Source:    note.SourceVault,
		Version:   1,
		Ref:       rel,
	}
	if sync, ok := v.codec.Extract(n.Body); ok {
		n.ID = sync.ID
		n.Version = sync.Version
	}
	if meta, _, ok := note.SplitFrontmatter(n.Body); ok {
		n.Tags = tagList(meta["tags"])
	}
	return n, nil
}

// CreateNote writes a new file derived from the note's container and title,
// never overwriting an existing file: name collisions get a numeric suffix.
func (v *Vault) CreateNote(ctx context.Context, n *note.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := v.Path
	relDir := ""
	if n.Container != "" {
		parts := strings.Split(n.Container, "/")
		for i, p := range parts {
			parts[i] = SanitizeFilename(p)
		}
		relDir = strings.Join(parts, "/")
		dir = filepath.Join(v.Path, filepath.FromSlash(relDir))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %q: %w", relDir, err)
	}

	name := uniqueName(dir, SanitizeFilename(n.Title), ".md")
	full := filepath.Join(dir, name)
	if err := atomicWrite(full, []byte(n.Body)); err != nil {
		return fmt.Errorf("failed to write note %q: %w", n.Title, err)
	}

	rel := name
	if relDir != "" {
		rel = relDir + "/" + name
	}
	n.Ref = rel
	// The filesystem owns the modification time; report the one it chose
	// so callers never have to guess what the next listing will say.
	if fi, err := os.Stat(full); err == nil {
		n.UpdatedAt = fi.ModTime()
	}
	if v.Logger != nil {
		v.Logger.Debug("created vault note", "path", rel)
	}
	return nil
}

// UpdateNote overwrites the file addressed by Ref.
func (v *Vault) UpdateNote(ctx context.Context, n *note.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Ref == "" {
		return fmt.Errorf("note %q has no vault path", n.Title)
	}
	full := filepath.Join(v.Path, filepath.FromSlash(n.Ref))
	if err := atomicWrite(full, []byte(n.Body)); err != nil {
		return fmt.Errorf("failed to update note %q: %w", n.Title, err)
	}
	if fi, err := os.Stat(full); err == nil {
		n.UpdatedAt = fi.ModTime()
	}
	return nil
}

// DeleteNote moves the file into the trash directory instead of removing
// it, using a unique name so repeated deletions never clobber each other.
func (v *Vault) DeleteNote(ctx context.Context, n *note.Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := filepath.Join(v.Path, filepath.FromSlash(n.Ref))
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return fmt.Errorf("note %q not found at %s", n.Title, n.Ref)
	}

	trash := filepath.Join(v.Path, v.TrashDir)
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return fmt.Errorf("failed to create trash dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(n.Ref), ".md")
	name := uniqueName(trash, base, ".md")
	if err := os.Rename(full, filepath.Join(trash, name)); err != nil {
		return fmt.Errorf("failed to trash note %q: %w", n.Title, err)
	}
	if v.Logger != nil {
		v.Logger.Debug("trashed vault note", "path", n.Ref, "trash", name)
	}
	return nil
}

// ArchiveCopy writes a body into the trash directory without touching the
// live file, used to keep the losing version of a conflict.
func (v *Vault) ArchiveCopy(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trash := filepath.Join(v.Path, v.TrashDir)
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return fmt.Errorf("failed to create trash dir: %w", err)
	}
	name := uniqueName(trash, SanitizeFilename(title)+" (conflict)", ".md")
	if err := atomicWrite(filepath.Join(trash, name), []byte(body)); err != nil {
		return fmt.Errorf("failed to archive conflict copy of %q: %w", title, err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// uniqueName returns base+ext, or base (n)+ext for the first free n when
// the plain name is taken.
func uniqueName(dir, base, ext string) string {
	name := base + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s (%d)%s", base, i, ext)
	}
}

func tagList(raw any) []string {
	var tags []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
	case []string:
		tags = append(tags, v...)
	}
	return tags
}
