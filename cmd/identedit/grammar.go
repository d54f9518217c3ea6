package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/termfx/identedit/internal/grammar"
)

// newGrammarCmd exposes read-only information about the built-in grammar
// registry. Loading or installing grammars dynamically is explicitly out of
// scope (spec.md §1, §4.B, "GrammarProvider as external capability
// boundary") — this binary ships a fixed set of tree-sitter bindings
// compiled in, so "admin" here means inspecting what's available, not
// managing it.
func newGrammarCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grammar",
		Short: "Inspect the built-in GrammarProvider registry",
	}
	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List languages with a built-in grammar provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := grammar.NewStaticRegistry()
			for _, lang := range reg.Languages() {
				fmt.Println(lang)
			}
			return nil
		},
	})
	return root
}
