package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/notebridge/pkg/note"
	"github.com/aretw0/notebridge/pkg/reconcile"
	"github.com/aretw0/notebridge/pkg/rules"
	"github.com/aretw0/notebridge/pkg/store"
)

// Decision is what a confirmation hook answers for one pending action.
type Decision int

const (
	DecisionApply Decision = iota
	DecisionSkip
	DecisionApplyAll
	DecisionSkipAll
	DecisionQuit
)

// ConfirmFunc is asked before each mutating action when interactive mode
// is on.
type ConfirmFunc func(a reconcile.Action) (Decision, error)

// Result is the outcome of one plan action.
type Result struct {
	Action reconcile.Action
	Err    error

	// Skipped is true when the action was not attempted: rule skips,
	// unconfirmed deletions and interactive refusals.
	Skipped bool
}

// Summary totals an execution run.
type Summary struct {
	Applied int
	Skipped int
	Failed  int
	Results []Result
}

// Executor applies a plan against the two stores. A failing action is
// recorded and the run continues; one unreachable note must not stall the
// rest of the sync.
type Executor struct {
	Engine *Engine

	// ApplyDeletes enables execution of deletion candidates. Off by
	// default: a missing note is only ever deleted on explicit request.
	ApplyDeletes bool

	// Confirm, when set, is consulted before every mutating action.
	Confirm ConfirmFunc
}

// Execute runs the plan in order and returns a summary. The context is
// checked between actions so a cancelled run stops at an action boundary.
func (x *Executor) Execute(ctx context.Context, plan *reconcile.Plan) (*Summary, error) {
	now := x.Engine.Now()
	sum := &Summary{}
	confirm := x.Confirm
	skipAll := false

	for _, a := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if skipAll && a.Kind != reconcile.ActionSkip {
			sum.Skipped++
			r := a
			r.Reason = "skipped by user"
			sum.Results = append(sum.Results, Result{Action: r, Skipped: true})
			continue
		}

		if a.Kind == reconcile.ActionSkip {
			sum.Skipped++
			sum.Results = append(sum.Results, Result{Action: a, Skipped: true})
			continue
		}
		if a.Kind == reconcile.ActionDelete && !x.ApplyDeletes {
			sum.Skipped++
			r := a
			r.Reason = "deletion candidate, run with --apply-deletes to remove"
			sum.Results = append(sum.Results, Result{Action: r, Skipped: true})
			continue
		}

		if confirm != nil {
			decision, err := confirm(a)
			if err != nil {
				return sum, err
			}
			switch decision {
			case DecisionSkip:
				sum.Skipped++
				r := a
				r.Reason = "skipped by user"
				sum.Results = append(sum.Results, Result{Action: r, Skipped: true})
				continue
			case DecisionApplyAll:
				confirm = nil
			case DecisionSkipAll:
				skipAll = true
				sum.Skipped++
				r := a
				r.Reason = "skipped by user"
				sum.Results = append(sum.Results, Result{Action: r, Skipped: true})
				continue
			case DecisionQuit:
				return sum, nil
			}
		}

		err := x.apply(ctx, a, now)
		if err != nil {
			sum.Failed++
			if x.Engine.Logger != nil {
				x.Engine.Logger.Error("action failed", "kind", a.Kind, "title", a.Title, "error", err)
			}
		} else {
			sum.Applied++
		}
		sum.Results = append(sum.Results, Result{Action: a, Err: err})
	}
	return sum, nil
}

func (x *Executor) apply(ctx context.Context, a reconcile.Action, now time.Time) error {
	switch a.Kind {
	case reconcile.ActionLink:
		return x.applyLink(ctx, a, now)
	case reconcile.ActionCreate:
		return x.applyTransfer(ctx, a, now, true)
	case reconcile.ActionUpdate:
		return x.applyTransfer(ctx, a, now, false)
	case reconcile.ActionDelete:
		return x.applyDelete(ctx, a)
	default:
		return fmt.Errorf("unsupported action kind %q", a.Kind)
	}
}

// applyTransfer moves the source note's content to the other store. Both
// copies end up carrying the same identity stamp in their store-native
// encoding, and the state records the transfer for both sides.
func (x *Executor) applyTransfer(ctx context.Context, a reconcile.Action, now time.Time, create bool) error {
	src := a.Source
	srcCodec := note.CodecFor(src.Source)
	tgtSource := targetOf(a.Direction)
	tgtCodec := note.CodecFor(tgtSource)

	// A note that bounced between stores can carry stamps in both
	// encodings; repair collapses them to the newest before extraction.
	repaired := note.Repair(src.Body, srcCodec)
	info, ok := srcCodec.Extract(repaired)
	if !ok && a.Target != nil {
		info, ok = tgtCodec.Extract(a.Target.Body)
	}
	if !ok {
		info = note.NewSyncInfo(src.Source, now)
	}
	info.Source = src.Source
	info.SyncTime = now
	if !create {
		info.Version++
	}

	if a.Loser != nil && x.Engine.Archiver != nil {
		if err := x.Engine.Archiver.ArchiveCopy(ctx, a.Loser.Title, a.Loser.Body); err != nil {
			return fmt.Errorf("failed to archive conflict loser: %w", err)
		}
	}

	clean := note.StripSyncMetadata(repaired)

	// The state must record the timestamps the stores assigned on write,
	// not the run clock: the next listing is compared against these, and
	// any mismatch would re-plan every synced note forever.
	srcSynced := src.UpdatedAt

	// Stamp the source copy first so the identity survives even if the
	// target write fails and the run is retried.
	srcStamped := srcCodec.Embed(clean, info)
	if srcStamped != src.Body {
		back := *src
		back.Body = srcStamped
		back.UpdatedAt = time.Time{}
		if err := x.storeFor(src.Source).UpdateNote(ctx, &back); err != nil {
			return fmt.Errorf("failed to stamp %s copy of %q: %w", src.Source, src.Title, err)
		}
		srcSynced = writeTime(&back, now)
	}

	var tgtSynced time.Time
	tgtBody := tgtCodec.Embed(clean, info)
	if create {
		tn := note.Note{
			ID:        info.ID,
			Title:     src.Title,
			Container: src.Container,
			Body:      tgtBody,
			Source:    tgtSource,
			Version:   info.Version,
		}
		if err := x.storeFor(tgtSource).CreateNote(ctx, &tn); err != nil {
			return fmt.Errorf("failed to create %q in %s: %w", src.Title, tgtSource, err)
		}
		tgtSynced = writeTime(&tn, now)
	} else {
		updated := *a.Target
		updated.Title = src.Title
		updated.Body = tgtBody
		updated.UpdatedAt = time.Time{}
		if err := x.storeFor(tgtSource).UpdateNote(ctx, &updated); err != nil {
			return fmt.Errorf("failed to update %q in %s: %w", src.Title, tgtSource, err)
		}
		tgtSynced = writeTime(&updated, now)
	}

	st := x.Engine.State
	st.Record(info.ID, sideOf(src.Source), srcSynced, info.Source, info.Version)
	st.Record(info.ID, sideOf(tgtSource), tgtSynced, info.Source, info.Version)
	st.Describe(info.ID, src.Title, src.Container)
	return nil
}

// applyLink stamps both copies of a matched unstamped pair with one fresh
// identity. The side edited last counts as the origin; neither body moves.
func (x *Executor) applyLink(ctx context.Context, a reconcile.Action, now time.Time) error {
	origin := a.Source
	if a.Target.UpdatedAt.After(origin.UpdatedAt) {
		origin = a.Target
	}
	info := note.NewSyncInfo(origin.Source, now)

	st := x.Engine.State
	for _, n := range []*note.Note{a.Source, a.Target} {
		codec := note.CodecFor(n.Source)
		stamped := codec.Embed(note.StripSyncMetadata(n.Body), info)
		synced := n.UpdatedAt
		if stamped != n.Body {
			cp := *n
			cp.Body = stamped
			cp.UpdatedAt = time.Time{}
			if err := x.storeFor(n.Source).UpdateNote(ctx, &cp); err != nil {
				return fmt.Errorf("failed to stamp %s copy of %q: %w", n.Source, n.Title, err)
			}
			synced = writeTime(&cp, now)
		}
		st.Record(info.ID, sideOf(n.Source), synced, info.Source, info.Version)
	}
	st.Describe(info.ID, a.Source.Title, a.Source.Container)
	return nil
}

// applyDelete removes the surviving copy of a confirmed deletion. Stores
// soft-delete (trash), so this is recoverable outside notebridge.
func (x *Executor) applyDelete(ctx context.Context, a reconcile.Action) error {
	side := note.SourceJoplin
	if a.Remaining == reconcile.SideVault {
		side = note.SourceVault
	}
	if err := x.storeFor(side).DeleteNote(ctx, a.Source); err != nil {
		return fmt.Errorf("failed to delete %q from %s: %w", a.Title, side, err)
	}
	x.Engine.State.Forget(a.ID)
	return nil
}

// writeTime is the store-assigned timestamp of a just-written note. Stores
// fill UpdatedAt on CreateNote and UpdateNote; the run clock is only a
// fallback for a store that did not.
func writeTime(n *note.Note, now time.Time) time.Time {
	if n.UpdatedAt.IsZero() {
		return now
	}
	return n.UpdatedAt
}

func sideOf(src note.Source) reconcile.Side {
	if src == note.SourceVault {
		return reconcile.SideVault
	}
	return reconcile.SideJoplin
}

func (x *Executor) storeFor(src note.Source) store.Store {
	if src == note.SourceJoplin {
		return x.Engine.Joplin
	}
	return x.Engine.Vault
}

// targetOf maps a content flow to the store receiving the write.
func targetOf(d rules.Direction) note.Source {
	if d == rules.DirectionJoplinToVault {
		return note.SourceVault
	}
	return note.SourceJoplin
}

// RestrictDirection rewrites mutating actions flowing the other way into
// recorded skips, so a one-way run still reports what it held back.
// Deletion candidates carry no direction and pass through untouched.
func RestrictDirection(plan *reconcile.Plan, only rules.Direction) {
	if only == "" || only == rules.DirectionBidirectional {
		return
	}
	for i := range plan.Actions {
		a := &plan.Actions[i]
		if a.Kind != reconcile.ActionCreate && a.Kind != reconcile.ActionUpdate {
			continue
		}
		if a.Direction == only {
			continue
		}
		a.Kind = reconcile.ActionSkip
		a.Reason = fmt.Sprintf("outside requested direction %s", only)
	}
}
