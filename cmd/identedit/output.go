package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
)

// writeJSON prints v to stdout as indented JSON, the shape every command's
// successful output takes except read's default line-mode text rendering.
func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printUnifiedDiff writes a unified diff of before/after to stderr for
// apply/patch's --diff flag, parity with the teacher's util.UnifiedDiff
// preview (kept for inspecting a commit after the fact, since these
// commands write straight to disk rather than offering a dry-run mode).
func printUnifiedDiff(path string, before, after []byte) error {
	if string(before) == string(after) {
		return nil
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stderr, text)
	return nil
}
