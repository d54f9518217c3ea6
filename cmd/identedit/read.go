package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/engine"
	"github.com/termfx/identedit/internal/model"
)

func newReadCmd() *cobra.Command {
	var (
		mode        string
		kinds       []string
		excludeKind []string
		name        string
		verbose     bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "read <file>...",
		Short: "Enumerate structural handles or line anchors for one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := model.ReadFilters{
				Kind:        kinds,
				ExcludeKind: excludeKind,
				Name:        name,
				Mode:        mode,
				Verbose:     verbose,
			}
			handles, err := engine.New().Read(args, filters)
			if err != nil {
				return err
			}
			if mode == "line" && !jsonOutput {
				printLineAnchorsText(handles)
				return nil
			}
			return writeJSON(handles)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "structural", `Enumeration mode: "structural" or "line".`)
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Restrict to these node kinds (repeatable).")
	cmd.Flags().StringSliceVar(&excludeKind, "exclude-kind", nil, "Exclude these node kinds (repeatable).")
	cmd.Flags().StringVar(&name, "name", "", "Restrict to nodes whose name matches this glob.")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Accepted; it does not change the output.")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Force JSON output even in line mode.")
	return cmd
}

// printLineAnchorsText renders line mode's default human-readable form
// (§6: "text for --mode line unless --json").
func printLineAnchorsText(h model.Handles) {
	for _, la := range h.LineAnchors {
		fmt.Printf("%s:%d\t%s\t%s\n", la.File, la.Line, la.Hash, la.Text)
	}
	for _, d := range h.Diagnostics {
		fmt.Printf("# %s: %s (%s)\n", d.File, d.Message, d.Kind)
	}
}
