// Package changeset implements the Changeset Composer (§4.F): sorting and
// validating a file's edit list, and merging several changesets (the `merge`
// command) gated on matching expected_file_hash per file.
//
// There is no single teacher analogue for span-overlap validation (morfx
// applies one transform at a time); the sort-then-adjacent-scan approach is
// grounded on the general ordered-interval-validation shape used by
// core/filewalker.go's sorted traversal, generalized to Identedit's edit
// lists.
package changeset

import (
	"sort"

	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

// SortAndValidateEdits stable-sorts edits by (Start, End) — ascending start,
// then ascending end so a zero-width edit sorts before a wider span starting
// at the same point — and rejects any pair that overlaps. Stability
// preserves the caller's operation order as the tie-break for edits that
// share an identical zero-width point (e.g. insert_before and insert_after
// resolving to the same boundary): list the operation that should apply
// first, first.
func SortAndValidateEdits(edits []model.SpanEdit) ([]model.SpanEdit, error) {
	sorted := append([]model.SpanEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start != sorted[j].Span.Start {
			return sorted[i].Span.Start < sorted[j].Span.Start
		}
		return sorted[i].Span.End < sorted[j].Span.End
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Span.Overlaps(sorted[i].Span) {
			return nil, identerr.New(identerr.InvalidRequest, "overlapping edits in the same file")
		}
	}
	return sorted, nil
}

// ValidateFileChangeset enforces invariant 3 (§4.F): a file carries span
// edits or a whole-file rewrite, never both, and its edits (if any) must be
// mutually non-overlapping once sorted.
func ValidateFileChangeset(fc model.FileChangeset) (model.FileChangeset, error) {
	if fc.RewriteContent != nil && len(fc.Edits) > 0 {
		return fc, identerr.New(identerr.InvalidRequest, "file has both a whole-file rewrite and span edits: "+fc.File)
	}
	if fc.RewriteContent != nil {
		return fc, nil
	}
	sorted, err := SortAndValidateEdits(fc.Edits)
	if err != nil {
		if ie, ok := identerr.As(err); ok {
			return fc, ie.WithFile(fc.File)
		}
		return fc, err
	}
	fc.Edits = sorted
	return fc, nil
}

// Build assembles one file's FileChangeset from its edits, validating it in
// the process.
func Build(file, expectedFileHash string, edits []model.SpanEdit) (model.FileChangeset, error) {
	fc := model.FileChangeset{File: file, ExpectedFileHash: expectedFileHash, Edits: edits}
	return ValidateFileChangeset(fc)
}

// Merge composes several changesets (the `merge` command, §6) into one,
// gated on every changeset agreeing on a file's expected_file_hash. Files
// that appear in only one input changeset pass through; files that appear in
// more than one have their edits concatenated (in changeset-list order) and
// re-validated together, so cross-changeset overlaps are still caught.
func Merge(changesets []*model.MultiFileChangeset) (*model.MultiFileChangeset, error) {
	type accum struct {
		expectedFileHash string
		edits            []model.SpanEdit
		rewriteContent   *string
		rewriteSource    bool
	}
	order := make([]string, 0)
	byFile := make(map[string]*accum)

	for _, cs := range changesets {
		if cs == nil {
			continue
		}
		for _, fc := range cs.Files {
			a, ok := byFile[fc.File]
			if !ok {
				a = &accum{expectedFileHash: fc.ExpectedFileHash}
				byFile[fc.File] = a
				order = append(order, fc.File)
			} else if a.expectedFileHash != fc.ExpectedFileHash {
				return nil, identerr.New(identerr.PreconditionFailed, "merge: conflicting expected_file_hash for "+fc.File).WithFile(fc.File)
			}
			if fc.RewriteContent != nil {
				if a.rewriteSource {
					return nil, identerr.New(identerr.InvalidRequest, "merge: multiple whole-file rewrites for "+fc.File).WithFile(fc.File)
				}
				a.rewriteContent = fc.RewriteContent
				a.rewriteSource = true
			}
			a.edits = append(a.edits, fc.Edits...)
		}
	}

	out := model.NewChangeset()
	for _, file := range order {
		a := byFile[file]
		fc, err := ValidateFileChangeset(model.FileChangeset{
			File:             file,
			ExpectedFileHash: a.expectedFileHash,
			Edits:            a.edits,
			RewriteContent:   a.rewriteContent,
		})
		if err != nil {
			return nil, err
		}
		out.Files = append(out.Files, fc)
	}
	return out, nil
}
