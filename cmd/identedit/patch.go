package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/engine"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
	"github.com/termfx/identedit/internal/txn"
)

func newPatchCmd() *cobra.Command {
	var (
		opJSON      string
		injectAfter int
		showDiff    bool
	)

	cmd := &cobra.Command{
		Use:   "patch <file>",
		Short: "Fused read+edit+apply for a single operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var op model.Operation
			if err := json.Unmarshal([]byte(opJSON), &op); err != nil {
				return identerr.New(identerr.InvalidRequest, "cannot parse --op: "+err.Error())
			}

			experimental := os.Getenv("IDENTEDIT_EXPERIMENTAL") == "1"
			if err := txn.ValidateInjectFailureFlag(injectAfter, experimental); err != nil {
				return err
			}

			var before []byte
			if showDiff {
				before, _ = os.ReadFile(args[0])
			}

			result, err := engine.New().Patch(args[0], op, txn.Options{
				Experimental:             experimental,
				InjectFailureAfterWrites: injectAfter,
			})
			if err != nil {
				return err
			}

			if showDiff {
				if after, readErr := os.ReadFile(args[0]); readErr == nil {
					if err := printUnifiedDiff(args[0], before, after); err != nil {
						return err
					}
				}
			}
			return writeJSON(result)
		},
	}

	cmd.Flags().StringVar(&opJSON, "op", "", "JSON-encoded Operation to apply (required).")
	cmd.Flags().IntVar(&injectAfter, "inject-failure-after-writes", txn.NoInjectedFailure,
		"Abort the commit phase after N renames, to exercise rollback (requires IDENTEDIT_EXPERIMENTAL=1).")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print a unified diff of the patched file to stderr.")
	cmd.MarkFlagRequired("op")
	return cmd
}
