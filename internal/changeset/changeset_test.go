package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

func span(s, e int) model.Span { return model.Span{Start: s, End: e} }

func TestSortAndValidateEdits_SortsByStart(t *testing.T) {
	edits := []model.SpanEdit{
		{Span: span(10, 12), Replacement: "b"},
		{Span: span(0, 2), Replacement: "a"},
	}
	sorted, err := SortAndValidateEdits(edits)
	require.NoError(t, err)
	assert.Equal(t, "a", sorted[0].Replacement)
	assert.Equal(t, "b", sorted[1].Replacement)
}

func TestSortAndValidateEdits_ZeroWidthSortsBeforeWiderSpanAtSameStart(t *testing.T) {
	edits := []model.SpanEdit{
		{Span: span(5, 8), Replacement: "wide"},
		{Span: span(5, 5), Replacement: "zero"},
	}
	sorted, err := SortAndValidateEdits(edits)
	require.NoError(t, err)
	assert.Equal(t, "zero", sorted[0].Replacement)
	assert.Equal(t, "wide", sorted[1].Replacement)
}

func TestSortAndValidateEdits_TouchingSpansDoNotOverlap(t *testing.T) {
	edits := []model.SpanEdit{
		{Span: span(0, 5)},
		{Span: span(5, 10)},
	}
	_, err := SortAndValidateEdits(edits)
	assert.NoError(t, err)
}

func TestSortAndValidateEdits_RejectsOverlap(t *testing.T) {
	edits := []model.SpanEdit{
		{Span: span(0, 6)},
		{Span: span(4, 10)},
	}
	_, err := SortAndValidateEdits(edits)
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.InvalidRequest, ie.Kind)
}

func TestSortAndValidateEdits_PreservesStableOrderAtSamePoint(t *testing.T) {
	edits := []model.SpanEdit{
		{Span: span(5, 5), Replacement: "first"},
		{Span: span(5, 5), Replacement: "second"},
	}
	sorted, err := SortAndValidateEdits(edits)
	require.NoError(t, err)
	assert.Equal(t, "first", sorted[0].Replacement)
	assert.Equal(t, "second", sorted[1].Replacement)
}

func TestValidateFileChangeset_RejectsRewriteAndEditsTogether(t *testing.T) {
	content := "whole file"
	fc := model.FileChangeset{
		File:           "a.go",
		RewriteContent: &content,
		Edits:          []model.SpanEdit{{Span: span(0, 1)}},
	}
	_, err := ValidateFileChangeset(fc)
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.InvalidRequest, ie.Kind)
}

func TestValidateFileChangeset_RewriteOnlyPassesThrough(t *testing.T) {
	content := "whole file"
	fc := model.FileChangeset{File: "a.go", RewriteContent: &content}
	out, err := ValidateFileChangeset(fc)
	require.NoError(t, err)
	assert.Equal(t, "whole file", *out.RewriteContent)
}

func TestMerge_PassesThroughSingleChangesetFile(t *testing.T) {
	cs := model.NewChangeset()
	cs.Files = append(cs.Files, model.FileChangeset{
		File: "a.go", ExpectedFileHash: "h1",
		Edits: []model.SpanEdit{{Span: span(0, 1), Replacement: "x"}},
	})
	merged, err := Merge([]*model.MultiFileChangeset{cs})
	require.NoError(t, err)
	require.Len(t, merged.Files, 1)
	assert.Equal(t, "a.go", merged.Files[0].File)
}

func TestMerge_ConcatenatesEditsForSameFile(t *testing.T) {
	cs1 := model.NewChangeset()
	cs1.Files = append(cs1.Files, model.FileChangeset{
		File: "a.go", ExpectedFileHash: "h1",
		Edits: []model.SpanEdit{{Span: span(0, 1), Replacement: "x"}},
	})
	cs2 := model.NewChangeset()
	cs2.Files = append(cs2.Files, model.FileChangeset{
		File: "a.go", ExpectedFileHash: "h1",
		Edits: []model.SpanEdit{{Span: span(10, 11), Replacement: "y"}},
	})
	merged, err := Merge([]*model.MultiFileChangeset{cs1, cs2})
	require.NoError(t, err)
	require.Len(t, merged.Files, 1)
	assert.Len(t, merged.Files[0].Edits, 2)
}

func TestMerge_RejectsConflictingExpectedFileHash(t *testing.T) {
	cs1 := model.NewChangeset()
	cs1.Files = append(cs1.Files, model.FileChangeset{File: "a.go", ExpectedFileHash: "h1"})
	cs2 := model.NewChangeset()
	cs2.Files = append(cs2.Files, model.FileChangeset{File: "a.go", ExpectedFileHash: "h2"})

	_, err := Merge([]*model.MultiFileChangeset{cs1, cs2})
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.PreconditionFailed, ie.Kind)
}

func TestMerge_RejectsOverlappingEditsAcrossChangesets(t *testing.T) {
	cs1 := model.NewChangeset()
	cs1.Files = append(cs1.Files, model.FileChangeset{
		File: "a.go", ExpectedFileHash: "h1",
		Edits: []model.SpanEdit{{Span: span(0, 10)}},
	})
	cs2 := model.NewChangeset()
	cs2.Files = append(cs2.Files, model.FileChangeset{
		File: "a.go", ExpectedFileHash: "h1",
		Edits: []model.SpanEdit{{Span: span(5, 15)}},
	})
	_, err := Merge([]*model.MultiFileChangeset{cs1, cs2})
	require.Error(t, err)
}
