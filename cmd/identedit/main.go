// Command identedit is a command-driven structural code-editing engine for
// autonomous agents (spec.md §1, §6): read/edit/apply/patch/merge/grammar
// subcommands exchanging JSON over stdin/stdout, grounded on the teacher's
// cmd/morfx/main.go flag-and-dispatch shape but restructured around cobra's
// subcommand tree instead of one flat flag set, since each command here has
// a genuinely distinct input/output contract rather than one operation
// varied by flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/identerr"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(reportAndExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "identedit",
		Short:         "Command-driven structural code editing for autonomous agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newReadCmd(),
		newEditCmd(),
		newApplyCmd(),
		newPatchCmd(),
		newMergeCmd(),
		newGrammarCmd(),
	)
	return root
}

// reportAndExitCode prints err as the single stderr JSON object §4.H
// requires and returns the exit code its kind maps to (§6). Successful
// output is never written here — each command writes its own stdout payload
// before returning nil.
func reportAndExitCode(err error) int {
	ie, ok := identerr.As(err)
	if !ok {
		ie = identerr.New(identerr.Unknown, err.Error())
	}
	fmt.Fprintln(os.Stderr, ie.JSON())
	return ie.ExitCode()
}
