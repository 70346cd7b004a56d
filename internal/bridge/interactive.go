package bridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/aretw0/notebridge/pkg/reconcile"
)

// InteractiveConfirm returns a ConfirmFunc backed by a readline prompt and
// a closer to release the terminal. Answers: y apply, n skip, a apply the
// rest without asking, s skip everything remaining, q stop the run.
func InteractiveConfirm() (ConfirmFunc, func(), error) {
	rl, err := readline.New("apply? [y/n/a/s/q] ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open terminal: %w", err)
	}

	confirm := func(a reconcile.Action) (Decision, error) {
		fmt.Printf("%s %q (%s): %s\n", a.Kind, a.Title, a.Direction, a.Reason)
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt || err == io.EOF {
				return DecisionQuit, nil
			}
			if err != nil {
				return DecisionQuit, err
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return DecisionApply, nil
			case "n", "no":
				return DecisionSkip, nil
			case "a", "all":
				return DecisionApplyAll, nil
			case "s", "skip":
				return DecisionSkipAll, nil
			case "q", "quit":
				return DecisionQuit, nil
			}
		}
	}
	return confirm, func() { rl.Close() }, nil
}
