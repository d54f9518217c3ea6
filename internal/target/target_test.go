package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termfx/identedit/internal/configpath"
	"github.com/termfx/identedit/internal/grammar"
	"github.com/termfx/identedit/internal/hashutil"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
	"github.com/termfx/identedit/internal/parseindex"
)

const goSource = `package sample

func Foo() int {
	return 1
}

func Bar() int {
	return 2
}
`

func newResolver() *Resolver {
	return New(parseindex.New(grammar.NewStaticRegistry()))
}

func findHandle(t *testing.T, content []byte, name string) model.NodeHandle {
	t.Helper()
	idx := parseindex.New(grammar.NewStaticRegistry())
	res, err := idx.Read("sample.go", content, model.ReadFilters{Kind: []string{"function_declaration"}})
	require.NoError(t, err)
	for _, h := range res.Handles {
		if h.Name == name {
			return h
		}
	}
	t.Fatalf("handle %q not found", name)
	return model.NodeHandle{}
}

func TestResolve_Node_UniqueMatch(t *testing.T) {
	content := []byte(goSource)
	h := findHandle(t, content, "Foo")

	r := newResolver()
	resolved, err := r.Resolve(model.Target{
		Type:            model.TargetNode,
		Kind:            "function_declaration",
		Identity:        h.Identity,
		ExpectedOldHash: h.ExpectedOldHash,
	}, "sample.go", content, nil)
	require.NoError(t, err)
	assert.Equal(t, h.Span, resolved.Span)
}

func TestResolve_Node_StaleHashFailsPrecondition(t *testing.T) {
	content := []byte(goSource)
	h := findHandle(t, content, "Foo")

	r := newResolver()
	_, err := r.Resolve(model.Target{
		Type:            model.TargetNode,
		Kind:            "function_declaration",
		Identity:        h.Identity,
		ExpectedOldHash: "0000000000000000",
	}, "sample.go", content, nil)
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.PreconditionFailed, ie.Kind)
}

func TestResolve_Node_MissingIdentity(t *testing.T) {
	content := []byte(goSource)
	r := newResolver()
	_, err := r.Resolve(model.Target{
		Type:     model.TargetNode,
		Kind:     "function_declaration",
		Identity: "ffffffffffffffff",
	}, "sample.go", content, nil)
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.TargetMissing, ie.Kind)
}

func TestResolve_FileStartAndEnd(t *testing.T) {
	content := []byte(goSource)
	r := newResolver()

	start, err := r.Resolve(model.Target{Type: model.TargetFileStart}, "sample.go", content, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Span{Start: 0, End: 0}, start.Span)

	end, err := r.Resolve(model.Target{Type: model.TargetFileEnd}, "sample.go", content, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Span{Start: len(content), End: len(content)}, end.Span)
}

func TestResolve_FileStart_HashMismatch(t *testing.T) {
	content := []byte(goSource)
	r := newResolver()
	_, err := r.Resolve(model.Target{
		Type:             model.TargetFileStart,
		ExpectedFileHash: "deadbeef",
	}, "sample.go", content, nil)
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.PreconditionFailed, ie.Kind)
}

func TestResolve_Line_ExactMatch(t *testing.T) {
	content := []byte("line one\nline two\nline three\n")
	lines := hashutil.SplitLines(content)
	hash := hashutil.LineAnchorHash(lines[1])

	r := newResolver()
	resolved, err := r.Resolve(model.Target{
		Type: model.TargetLine,
		Line: 2,
		Hash: hash,
	}, "x.txt", content, nil)
	require.NoError(t, err)
	assert.Equal(t, "line two", string(content[resolved.Span.Start:resolved.Span.End]))
}

func TestResolve_Line_AutoRepairFindsShiftedLine(t *testing.T) {
	// The anchor was read when "line two" sat at line 2; an insertion above
	// it shifts it to line 3. auto_repair should find it within the window.
	original := []byte("line one\nline two\nline three\n")
	hash := hashutil.LineAnchorHash(hashutil.SplitLines(original)[1])

	shifted := []byte("line one\ninserted\nline two\nline three\n")
	r := newResolver()
	resolved, err := r.Resolve(model.Target{
		Type:       model.TargetLine,
		Line:       2,
		Hash:       hash,
		AutoRepair: true,
	}, "x.txt", shifted, nil)
	require.NoError(t, err)
	assert.Equal(t, "line two", string(shifted[resolved.Span.Start:resolved.Span.End]))
}

func TestResolve_Line_StaleWithoutAutoRepairFails(t *testing.T) {
	original := []byte("line one\nline two\nline three\n")
	hash := hashutil.LineAnchorHash(hashutil.SplitLines(original)[1])
	shifted := []byte("line one\ninserted\nline two\nline three\n")

	r := newResolver()
	_, err := r.Resolve(model.Target{
		Type: model.TargetLine,
		Line: 2,
		Hash: hash,
	}, "x.txt", shifted, nil)
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.PreconditionFailed, ie.Kind)
}

func TestResolve_LineRange(t *testing.T) {
	content := []byte("a\nb\nc\nd\n")
	lines := hashutil.SplitLines(content)
	r := newResolver()
	resolved, err := r.Resolve(model.Target{
		Type:  model.TargetLineRange,
		Start: &model.LineAnchor{Line: 2, Hash: hashutil.LineAnchorHash(lines[1])},
		End:   &model.LineAnchor{Line: 3, Hash: hashutil.LineAnchorHash(lines[2])},
	}, "x.txt", content, nil)
	require.NoError(t, err)
	assert.Equal(t, "b\nc", string(content[resolved.Span.Start:resolved.Span.End]))
}

func TestResolve_ConfigPath_DelegatesToConfigpath(t *testing.T) {
	content := []byte(`{"server":{"port":8080}}`)
	r := newResolver()
	resolved, err := r.Resolve(model.Target{
		Type: model.TargetConfigPath,
		Path: "server.port",
	}, "config.json", content, nil)
	require.NoError(t, err)
	assert.Equal(t, configpath.JSON, resolved.ConfigFormat)
	assert.Equal(t, "8080", string(content[resolved.Span.Start:resolved.Span.End]))
}

func TestResolve_HandleRef_ResolvesThroughTable(t *testing.T) {
	content := []byte(goSource)
	h := findHandle(t, content, "Bar")

	table := map[string]model.Target{
		"h1": {
			Type:            model.TargetNode,
			Kind:            "function_declaration",
			Identity:        h.Identity,
			ExpectedOldHash: h.ExpectedOldHash,
		},
	}
	r := newResolver()
	resolved, err := r.Resolve(model.Target{Type: model.TargetHandleRef, Ref: "h1"}, "sample.go", content, table)
	require.NoError(t, err)
	assert.Equal(t, h.Span, resolved.Span)
}

func TestResolve_HandleRef_UnknownRefIsInvalidRequest(t *testing.T) {
	content := []byte(goSource)
	r := newResolver()
	_, err := r.Resolve(model.Target{Type: model.TargetHandleRef, Ref: "missing"}, "sample.go", content, nil)
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.InvalidRequest, ie.Kind)
}
