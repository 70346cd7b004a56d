package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/notebridge/pkg/dedup"
	"github.com/aretw0/notebridge/pkg/note"
	"github.com/aretw0/notebridge/pkg/reconcile"
	"github.com/aretw0/notebridge/pkg/rules"
	"github.com/aretw0/notebridge/pkg/store"
	"github.com/aretw0/notebridge/pkg/store/joplin"
	"github.com/aretw0/notebridge/pkg/store/vault"
)

// lockTimeout bounds how long a run waits for another notebridge process
// to release the vault lock.
const lockTimeout = 10 * time.Second

// Archiver keeps a copy of a conflict loser somewhere recoverable.
type Archiver interface {
	ArchiveCopy(ctx context.Context, title, body string) error
}

// Engine holds everything a sync or duplicate run needs.
type Engine struct {
	Joplin   store.Store
	Vault    store.Store
	Archiver Archiver

	State    *reconcile.State
	Rules    *rules.Set
	Policy   reconcile.ConflictPolicy
	Analyzer *note.Analyzer
	Logger   *slog.Logger

	// Now is the run clock; one reading per run keeps stamps consistent.
	Now func() time.Time
}

// NewEngine builds an engine from configuration: it takes the vault lock,
// loads the sync state and compiles the rule set. The returned release
// function must be called when the run is over; it also persists the state.
func NewEngine(cfg Config, logger *slog.Logger) (*Engine, func(), error) {
	v, err := vault.New(cfg.Vault.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	v.Ignore = append(v.Ignore, cfg.Vault.Ignore...)
	if cfg.Vault.TrashDir != "" {
		v.TrashDir = cfg.Vault.TrashDir
		v.Ignore = append(v.Ignore, cfg.Vault.TrashDir+"/**")
	}

	ruleSet, err := rules.Compile(cfg.SyncRules)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := reconcile.AcquireLock(cfg.LockPath(), lockTimeout)
	if err != nil {
		return nil, nil, err
	}

	st, err := reconcile.LoadState(cfg.StatePath())
	if err != nil {
		unlock()
		return nil, nil, err
	}

	e := &Engine{
		Joplin:   joplin.New(cfg.Joplin.APIBase, cfg.Joplin.Token, logger),
		Vault:    v,
		Archiver: v,
		State:    st,
		Rules:    ruleSet,
		Policy:   reconcile.ConflictPolicy(cfg.Conflicts.Policy),
		Analyzer: note.NewAnalyzer(),
		Logger:   logger,
		Now:      time.Now,
	}
	// Commands call release both deferred and explicitly before exiting on
	// failure, so it must be safe to invoke more than once.
	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := st.Save(); err != nil && logger != nil {
				logger.Error("failed to save sync state", "error", err)
			}
			unlock()
		})
	}
	return e, release, nil
}

// BuildPlan lists both stores and derives the sync plan. Nothing is
// mutated; the plan is safe to print and throw away.
func (e *Engine) BuildPlan(ctx context.Context) (*reconcile.Plan, error) {
	joplinNotes, err := e.Joplin.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list joplin notes: %w", err)
	}
	vaultNotes, err := e.Vault.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault notes: %w", err)
	}

	if e.Logger != nil {
		e.Logger.Info("listed stores", "joplin", len(joplinNotes), "vault", len(vaultNotes), "state_entries", e.State.Len())
	}

	planner := &reconcile.Planner{
		Rules:    e.Rules,
		Policy:   e.Policy,
		Analyzer: e.Analyzer,
		Logger:   e.Logger,
	}
	return planner.Plan(joplinNotes, vaultNotes, e.State), nil
}

// ScanDuplicates lists one store and runs the layered duplicate detector
// over it.
func (e *Engine) ScanDuplicates(ctx context.Context, src note.Source, opts dedup.Options) ([]dedup.Group, error) {
	var s store.Store
	switch src {
	case note.SourceJoplin:
		s = e.Joplin
	case note.SourceVault:
		s = e.Vault
	default:
		return nil, fmt.Errorf("unknown store %q", src)
	}

	notes, err := s.ListNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s notes: %w", src, err)
	}
	ptrs := make([]*note.Note, len(notes))
	for i := range notes {
		ptrs[i] = &notes[i]
	}

	det := &dedup.Detector{Analyzer: e.Analyzer, Logger: e.Logger}
	return det.Find(ctx, ptrs, opts)
}

// Keep selects which member of an exact duplicate group survives
// auto-resolution.
type Keep string

const (
	KeepNewest Keep = "newest"
	KeepOldest Keep = "oldest"
)

// ResolveDuplicates deletes the redundant members of exact duplicate
// groups. Similarity-based groups are never auto-resolved: near-duplicates
// need a human eye. It returns how many notes were removed.
func (e *Engine) ResolveDuplicates(ctx context.Context, src note.Source, groups []dedup.Group, keep Keep) (int, error) {
	var s store.Store
	switch src {
	case note.SourceJoplin:
		s = e.Joplin
	case note.SourceVault:
		s = e.Vault
	default:
		return 0, fmt.Errorf("unknown store %q", src)
	}

	removed := 0
	for _, g := range groups {
		if !g.Exact() {
			continue
		}
		survivor := 0
		for i, n := range g.Notes {
			switch keep {
			case KeepOldest:
				if n.UpdatedAt.Before(g.Notes[survivor].UpdatedAt) {
					survivor = i
				}
			default:
				if n.UpdatedAt.After(g.Notes[survivor].UpdatedAt) {
					survivor = i
				}
			}
		}
		for i, n := range g.Notes {
			if i == survivor {
				continue
			}
			if err := s.DeleteNote(ctx, n); err != nil {
				return removed, fmt.Errorf("failed to remove duplicate %q: %w", n.Title, err)
			}
			removed++
			if e.Logger != nil {
				e.Logger.Info("removed exact duplicate", "title", n.Title, "kept", g.Notes[survivor].Title, "layer", g.Layer)
			}
		}
	}
	return removed, nil
}
