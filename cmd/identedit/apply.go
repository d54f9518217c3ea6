package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/engine"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
	"github.com/termfx/identedit/internal/txn"
)

func newApplyCmd() *cobra.Command {
	var (
		jsonEnvelope bool
		injectAfter  int
		showDiff     bool
	)

	cmd := &cobra.Command{
		Use:   "apply [changeset-file]",
		Short: "Commit a changeset (Revalidate/Materialize/Stage/Commit)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := readChangeset(args, jsonEnvelope)
			if err != nil {
				return err
			}

			experimental := os.Getenv("IDENTEDIT_EXPERIMENTAL") == "1"
			if err := txn.ValidateInjectFailureFlag(injectAfter, experimental); err != nil {
				return err
			}

			before := map[string][]byte{}
			if showDiff {
				for _, fc := range cs.Files {
					content, _ := os.ReadFile(fc.File)
					before[fc.File] = content
				}
			}

			result, err := engine.New().Apply(cs, txn.Options{
				Experimental:             experimental,
				InjectFailureAfterWrites: injectAfter,
			})
			if err != nil {
				return err
			}

			if showDiff {
				for path, prior := range before {
					after, readErr := os.ReadFile(path)
					if readErr != nil {
						continue
					}
					if err := printUnifiedDiff(path, prior, after); err != nil {
						return err
					}
				}
			}
			return writeJSON(result)
		},
	}

	cmd.Flags().BoolVar(&jsonEnvelope, "json", false, `Read a {"command":"apply","changeset":...} envelope instead of a raw changeset.`)
	cmd.Flags().IntVar(&injectAfter, "inject-failure-after-writes", txn.NoInjectedFailure,
		"Abort the commit phase after N renames, to exercise rollback (requires IDENTEDIT_EXPERIMENTAL=1).")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "Print a unified diff of each committed file to stderr.")
	return cmd
}

// readChangeset reads a MultiFileChangeset either from the file path arg, if
// given, or from stdin otherwise (§6: "stdin raw ... or file path arg").
func readChangeset(args []string, jsonEnvelope bool) (*model.MultiFileChangeset, error) {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, identerr.New(identerr.InvalidRequest, "cannot open changeset file: "+err.Error())
		}
		defer f.Close()
		r = f
	}

	if jsonEnvelope {
		var envelope model.ApplyRequestEnvelope
		if err := json.NewDecoder(r).Decode(&envelope); err != nil {
			return nil, identerr.New(identerr.InvalidRequest, "cannot parse apply envelope: "+err.Error())
		}
		return &envelope.Changeset, nil
	}

	var cs model.MultiFileChangeset
	if err := json.NewDecoder(r).Decode(&cs); err != nil {
		return nil, identerr.New(identerr.InvalidRequest, "cannot parse changeset: "+err.Error())
	}
	return &cs, nil
}
