package bridge

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/aretw0/notebridge/pkg/dedup"
	"github.com/aretw0/notebridge/pkg/reconcile"
)

var (
	createColor = color.New(color.FgGreen)
	updateColor = color.New(color.FgYellow)
	deleteColor = color.New(color.FgRed)
	skipColor   = color.New(color.Faint)
	headColor   = color.New(color.Bold)
)

func kindColor(k reconcile.Kind) *color.Color {
	switch k {
	case reconcile.ActionCreate, reconcile.ActionLink:
		return createColor
	case reconcile.ActionUpdate:
		return updateColor
	case reconcile.ActionDelete:
		return deleteColor
	default:
		return skipColor
	}
}

// PrintPlan renders a plan for review, one line per action with its
// recorded reason.
func PrintPlan(w io.Writer, plan *reconcile.Plan) {
	if len(plan.Actions) == 0 {
		fmt.Fprintln(w, "Nothing to do: both stores are in sync.")
		return
	}

	headColor.Fprintf(w, "Plan: %d link, %d create, %d update, %d delete candidates, %d skipped\n",
		plan.Count(reconcile.ActionLink),
		plan.Count(reconcile.ActionCreate),
		plan.Count(reconcile.ActionUpdate),
		plan.Count(reconcile.ActionDelete),
		plan.Count(reconcile.ActionSkip))

	for _, a := range plan.Actions {
		c := kindColor(a.Kind)
		where := a.Container
		if where == "" {
			where = "/"
		}
		if a.Direction != "" && a.Kind != reconcile.ActionSkip && a.Kind != reconcile.ActionDelete {
			c.Fprintf(w, "  %-6s %q in %s (%s)\n", a.Kind, a.Title, where, a.Direction)
		} else {
			c.Fprintf(w, "  %-6s %q in %s\n", a.Kind, a.Title, where)
		}
		skipColor.Fprintf(w, "         %s\n", a.Reason)
	}
}

// PrintSummary renders the outcome of an executed plan.
func PrintSummary(w io.Writer, sum *Summary) {
	if sum.Applied == 0 && sum.Skipped == 0 && sum.Failed == 0 {
		fmt.Fprintln(w, "Nothing to do: both stores are in sync.")
		return
	}
	headColor.Fprintf(w, "Done: %d applied, %d skipped, %d failed\n", sum.Applied, sum.Skipped, sum.Failed)
	if attempted := sum.Applied + sum.Failed; attempted > 0 {
		fmt.Fprintf(w, "Success rate: %.0f%%\n", float64(sum.Applied)/float64(attempted)*100)
	}
	for _, r := range sum.Results {
		if r.Err != nil {
			deleteColor.Fprintf(w, "  failed %s %q: %v\n", r.Action.Kind, r.Action.Title, r.Err)
		}
	}
}

// PrintGroups renders duplicate groups, exact layers first.
func PrintGroups(w io.Writer, groups []dedup.Group) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No duplicates found.")
		return
	}

	headColor.Fprintf(w, "Found %d duplicate group(s)\n", len(groups))
	for i, g := range groups {
		c := updateColor
		if g.Exact() {
			c = deleteColor
		}
		c.Fprintf(w, "  group %d: %s (confidence %.2f)\n", i+1, g.Layer, g.Confidence)
		for _, n := range g.Notes {
			where := n.Container
			if where == "" {
				where = "/"
			}
			fmt.Fprintf(w, "    %q in %s, updated %s\n", n.Title, where, n.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
}
