package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/notebridge/pkg/note"
	"github.com/aretw0/notebridge/pkg/rules"
)

// Kind classifies a plan action.
type Kind string

const (
	// ActionLink pairs two identity-less copies of the same content under
	// one freshly minted identity. No content moves.
	ActionLink Kind = "link"

	ActionCreate Kind = "create"
	ActionUpdate Kind = "update"
	ActionDelete Kind = "delete"
	ActionSkip   Kind = "skip"
)

// ConflictPolicy controls what happens when both sides of a matched pair
// were modified since the last sync.
type ConflictPolicy string

const (
	// PolicyPreferNewest overwrites the older side (last-writer-wins). The
	// losing edit is discarded.
	PolicyPreferNewest ConflictPolicy = "prefer-newest"

	// PolicyArchiveLoser still lets the newer side win but keeps a copy of
	// the losing version in the vault trash instead of discarding it.
	PolicyArchiveLoser ConflictPolicy = "archive-loser"
)

// Action is one step of a sync plan.
type Action struct {
	Kind      Kind
	ID        string // notebridge id, may be empty for first-time creates
	Title     string
	Container string

	// Direction is the flow of content for creates and updates.
	Direction rules.Direction

	// Reason is the human-readable justification recorded for every
	// decision, including skips; the plan is the audit trail.
	Reason string

	// Source is the note whose content will be written; Target is the
	// counterpart being overwritten (nil for creates). Loser carries the
	// losing conflict version when the archive policy is active.
	Source *note.Note
	Target *note.Note
	Loser  *note.Note

	// Deletion candidates: Remaining is the side where the note still
	// exists and Entry the last-known state justifying the candidacy.
	Remaining Side
	Entry     *StateEntry
}

// Plan is an ordered list of actions. Planning is purely derivational: the
// same inputs always produce the same plan, and nothing external is mutated.
type Plan struct {
	Actions []Action
}

// Count returns how many actions of the given kind the plan holds.
func (p *Plan) Count(k Kind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == k {
			n++
		}
	}
	return n
}

// ByKind returns the plan's actions of one kind, preserving order.
func (p *Plan) ByKind(k Kind) []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind == k {
			out = append(out, a)
		}
	}
	return out
}

// Planner derives a sync plan from the two listings, the rule set and the
// sync state.
type Planner struct {
	Rules    *rules.Set
	Policy   ConflictPolicy
	Analyzer *note.Analyzer
	Logger   *slog.Logger
}

// Plan matches the two note sets by identity and resolves an action for
// every note. Notes failing validity (empty title or empty normalized body)
// are excluded up front: they signal deleted-but-listed or corrupt notes.
func (p *Planner) Plan(joplinNotes, vaultNotes []note.Note, st *State) *Plan {
	an := p.Analyzer
	if an == nil {
		an = note.NewAnalyzer()
	}

	byIDJoplin := make(map[string]*note.Note)
	byIDVault := make(map[string]*note.Note)
	var newJoplin, newVault []*note.Note

	index := func(notes []note.Note, byID map[string]*note.Note, unassigned *[]*note.Note) {
		for i := range notes {
			n := &notes[i]
			if !an.Valid(n) {
				if p.Logger != nil {
					p.Logger.Debug("excluding invalid note", "title", n.Title, "source", n.Source, "ref", n.Ref)
				}
				continue
			}
			if n.ID == "" {
				*unassigned = append(*unassigned, n)
				continue
			}
			if _, dup := byID[n.ID]; dup {
				// Two records on one side claiming the same identity is
				// the duplicate engine's business, not the planner's.
				if p.Logger != nil {
					p.Logger.Warn("identity collision within one store", "id", n.ID, "title", n.Title)
				}
				continue
			}
			byID[n.ID] = n
		}
	}
	index(joplinNotes, byIDJoplin, &newJoplin)
	index(vaultNotes, byIDVault, &newVault)

	plan := &Plan{}

	// Before treating identity-less notes as creates, match them across
	// the stores by content fingerprint. The same note living unstamped on
	// both sides (a first run over overlapping stores) must become one
	// linked pair, not two crossing creates.
	var linked []Action
	newJoplin, newVault, linked = p.matchUnstamped(newJoplin, newVault, an)
	plan.Actions = append(plan.Actions, linked...)

	// Notes without identity have never been synced anywhere: creates,
	// subject to the rule engine's permitted creation direction.
	for _, n := range newJoplin {
		plan.Actions = append(plan.Actions, p.planCreate(n, rules.DirectionJoplinToVault))
	}
	for _, n := range newVault {
		plan.Actions = append(plan.Actions, p.planCreate(n, rules.DirectionVaultToJoplin))
	}

	// Matched pairs.
	for id, jn := range byIDJoplin {
		vn, ok := byIDVault[id]
		if !ok {
			continue
		}
		if a, emit := p.planPair(id, jn, vn, st); emit {
			plan.Actions = append(plan.Actions, a)
		}
	}

	// Identities present on one side only: new note or deletion candidate,
	// depending on whether the state has seen the identity before.
	for id, jn := range byIDJoplin {
		if _, ok := byIDVault[id]; ok {
			continue
		}
		plan.Actions = append(plan.Actions, p.planSingleSided(id, jn, SideJoplin, st))
	}
	for id, vn := range byIDVault {
		if _, ok := byIDJoplin[id]; ok {
			continue
		}
		plan.Actions = append(plan.Actions, p.planSingleSided(id, vn, SideVault, st))
	}

	sortActions(plan.Actions)
	return plan
}

// matchUnstamped pairs identity-less notes across the stores by content
// fingerprint and returns the leftovers of each side plus a link action per
// pair. Matching consumes each note at most once, in listing order.
func (p *Planner) matchUnstamped(newJoplin, newVault []*note.Note, an *note.Analyzer) ([]*note.Note, []*note.Note, []Action) {
	byFP := make(map[string][]*note.Note)
	for _, vn := range newVault {
		fp := an.Fingerprint(vn)
		byFP[fp] = append(byFP[fp], vn)
	}

	var actions []Action
	var restJoplin []*note.Note
	taken := make(map[*note.Note]bool)

	for _, jn := range newJoplin {
		var vn *note.Note
		for _, c := range byFP[an.Fingerprint(jn)] {
			if !taken[c] {
				vn = c
				break
			}
		}
		if vn == nil {
			restJoplin = append(restJoplin, jn)
			continue
		}
		taken[vn] = true

		a := Action{
			Kind:      ActionLink,
			Title:     jn.Title,
			Container: jn.Container,
			Reason:    "same content on both sides, linking under one identity",
			Source:    jn,
			Target:    vn,
		}
		if p.Rules.Resolve(jn.Container) == rules.DirectionSkip || p.Rules.Resolve(vn.Container) == rules.DirectionSkip {
			a.Kind = ActionSkip
			a.Reason = fmt.Sprintf("container %q skipped by rule", jn.Container)
		}
		actions = append(actions, a)
		if p.Logger != nil {
			p.Logger.Debug("matched unstamped pair by content", "title", jn.Title, "vault", vn.Ref, "joplin", jn.Ref)
		}
	}

	var restVault []*note.Note
	for _, vn := range newVault {
		if !taken[vn] {
			restVault = append(restVault, vn)
		}
	}
	return restJoplin, restVault, actions
}

func (p *Planner) planCreate(n *note.Note, flow rules.Direction) Action {
	dir := p.Rules.Resolve(n.Container)
	a := Action{
		ID:        n.ID,
		Title:     n.Title,
		Container: n.Container,
		Direction: flow,
		Source:    n,
	}

	switch {
	case dir == rules.DirectionSkip:
		a.Kind = ActionSkip
		a.Reason = fmt.Sprintf("container %q skipped by rule", n.Container)
	case flow == rules.DirectionJoplinToVault && !dir.AllowsJoplinToVault(),
		flow == rules.DirectionVaultToJoplin && !dir.AllowsVaultToJoplin():
		a.Kind = ActionSkip
		a.Reason = fmt.Sprintf("rule violation: container %q does not allow %s", n.Container, flow)
	default:
		a.Kind = ActionCreate
		a.Reason = fmt.Sprintf("new %s note, not yet synced", n.Source)
	}
	return a
}

func (p *Planner) planPair(id string, jn, vn *note.Note, st *State) (Action, bool) {
	dirJ := p.Rules.Resolve(jn.Container)
	dirV := p.Rules.Resolve(vn.Container)
	if dirJ == rules.DirectionSkip || dirV == rules.DirectionSkip {
		return Action{
			Kind:      ActionSkip,
			ID:        id,
			Title:     jn.Title,
			Container: jn.Container,
			Reason:    "container skipped by rule",
			Source:    jn,
			Target:    vn,
		}, true
	}

	entry, known := st.Get(id)
	var lastJ, lastV time.Time
	if known {
		lastJ, lastV = entry.LastSyncedJoplin, entry.LastSyncedVault
	}
	// A side is modified iff its current timestamp differs from the last
	// one we synced. With no state entry both sides count as modified and
	// the pair resolves as a conflict; that is the safe default for a
	// first run over pre-stamped stores.
	modJ := !jn.UpdatedAt.Equal(lastJ)
	modV := !vn.UpdatedAt.Equal(lastV)

	switch {
	case !modJ && !modV:
		// In sync. Emitting nothing here is what stops the two stores
		// from echoing each other's content forever.
		return Action{}, false

	case modJ && modV:
		winner, loser := jn, vn
		flow := rules.DirectionJoplinToVault
		if vn.UpdatedAt.After(jn.UpdatedAt) {
			winner, loser = vn, jn
			flow = rules.DirectionVaultToJoplin
		}
		if !flowAllowed(flow, dirJ, dirV) {
			return Action{
				Kind:      ActionSkip,
				ID:        id,
				Title:     winner.Title,
				Container: winner.Container,
				Direction: flow,
				Reason:    fmt.Sprintf("rule violation: conflict winner blocked, container %q does not allow %s", winner.Container, flow),
				Source:    winner,
				Target:    loser,
			}, true
		}
		a := Action{
			Kind:      ActionUpdate,
			ID:        id,
			Title:     winner.Title,
			Container: winner.Container,
			Direction: flow,
			Reason:    fmt.Sprintf("conflict: both sides modified, newer %s copy wins (%s vs %s)", winner.Source, winner.UpdatedAt.Format(time.RFC3339), loser.UpdatedAt.Format(time.RFC3339)),
			Source:    winner,
			Target:    loser,
		}
		if p.Policy == PolicyArchiveLoser {
			a.Loser = loser
		}
		return a, true

	case modJ:
		if !flowAllowed(rules.DirectionJoplinToVault, dirJ, dirV) {
			return Action{
				Kind:      ActionSkip,
				ID:        id,
				Title:     jn.Title,
				Container: jn.Container,
				Direction: rules.DirectionJoplinToVault,
				Reason:    fmt.Sprintf("rule violation: container %q does not allow joplin-to-vault", jn.Container),
				Source:    jn,
				Target:    vn,
			}, true
		}
		return Action{
			Kind:      ActionUpdate,
			ID:        id,
			Title:     jn.Title,
			Container: jn.Container,
			Direction: rules.DirectionJoplinToVault,
			Reason:    "joplin side modified since last sync",
			Source:    jn,
			Target:    vn,
		}, true

	default: // modV
		if !flowAllowed(rules.DirectionVaultToJoplin, dirJ, dirV) {
			return Action{
				Kind:      ActionSkip,
				ID:        id,
				Title:     vn.Title,
				Container: vn.Container,
				Direction: rules.DirectionVaultToJoplin,
				Reason:    fmt.Sprintf("rule violation: container %q does not allow vault-to-joplin", vn.Container),
				Source:    vn,
				Target:    jn,
			}, true
		}
		return Action{
			Kind:      ActionUpdate,
			ID:        id,
			Title:     vn.Title,
			Container: vn.Container,
			Direction: rules.DirectionVaultToJoplin,
			Reason:    "vault side modified since last sync",
			Source:    vn,
			Target:    jn,
		}, true
	}
}

func (p *Planner) planSingleSided(id string, n *note.Note, present Side, st *State) Action {
	entry, known := st.Get(id)
	if !known {
		// Identity stamp but no state entry: the cache never saw this note
		// (fresh cache, or hand-restored note). Safer to treat as new.
		flow := rules.DirectionJoplinToVault
		if present == SideVault {
			flow = rules.DirectionVaultToJoplin
		}
		return p.planCreate(n, flow)
	}

	return Action{
		Kind:      ActionDelete,
		ID:        id,
		Title:     n.Title,
		Container: n.Container,
		Reason: fmt.Sprintf(
			"previously synced (joplin %s, vault %s, last source %s) but now missing on the %s side; confirm before deleting",
			formatStamp(entry.LastSyncedJoplin), formatStamp(entry.LastSyncedVault), entry.LastSource, present.Opposite()),
		Source:    n,
		Remaining: present,
		Entry:     entry,
	}
}

// flowAllowed gates a propagation on the source side's container rule; the
// target side can still veto via its own directional rule.
func flowAllowed(flow rules.Direction, dirJ, dirV rules.Direction) bool {
	if flow == rules.DirectionJoplinToVault {
		return dirJ.AllowsJoplinToVault() && dirV.AllowsJoplinToVault()
	}
	return dirJ.AllowsVaultToJoplin() && dirV.AllowsVaultToJoplin()
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

var kindOrder = map[Kind]int{
	ActionLink:   0,
	ActionCreate: 1,
	ActionUpdate: 2,
	ActionDelete: 3,
	ActionSkip:   4,
}

func sortActions(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if kindOrder[a.Kind] != kindOrder[b.Kind] {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}
