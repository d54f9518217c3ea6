// Package parseindex implements the Parse Index (§4.B): parsing a file
// through a grammar.Provider, walking its tree pre-order, and emitting one
// NodeHandle per structural node that passes the caller's filters — or, in
// line mode, one line anchor per line, bypassing the grammar entirely.
//
// The pre-order walk with an explicit stack is grounded on
// providers/golang/transform.go's findTargets tree walk and spec.md §9's
// "no cyclic data... parents tracked only during the parse walk via an
// explicit stack" design note.
package parseindex

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/termfx/identedit/internal/grammar"
	"github.com/termfx/identedit/internal/hashutil"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

// Index owns a grammar registry and turns file bytes into handles.
type Index struct {
	grammars *grammar.Registry
}

// New builds a Parse Index over the given grammar registry.
func New(grammars *grammar.Registry) *Index {
	return &Index{grammars: grammars}
}

// Result is one file's contribution to a read invocation.
type Result struct {
	File        string
	FileHash    string
	Handles     []model.NodeHandle
	LineAnchors []model.LineAnchorHandle
	Diagnostic  *model.Diagnostic // set iff the file could not be indexed structurally
}

// Read indexes a single file's content under the given filters.
func (idx *Index) Read(path string, content []byte, filters model.ReadFilters) (Result, error) {
	res := Result{File: path, FileHash: hashutil.FileHash(content)}

	if filters.Mode == "line" {
		res.LineAnchors = lineAnchors(path, content)
		return res, nil
	}

	provider, ok := idx.grammars.ForPath(path)
	if !ok {
		res.Diagnostic = &model.Diagnostic{File: path, Kind: string(identerr.NoProvider), Message: "no grammar provider for this file extension"}
		return res, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(provider.Language())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		res.Diagnostic = &model.Diagnostic{File: path, Kind: string(identerr.ParseFailure), Message: err.Error()}
		return res, nil
	}
	root := tree.RootNode()
	if root == nil || root.Type() == "ERROR" {
		res.Diagnostic = &model.Diagnostic{File: path, Kind: string(identerr.ParseFailure), Message: "grammar reported a hard error node at the root"}
		return res, nil
	}

	handles, err := walk(root, provider, content, filters)
	if err != nil {
		return res, err
	}
	for i := range handles {
		handles[i].File = path
	}
	res.Handles = handles
	return res, nil
}

// walk performs the pre-order structural traversal described in §4.B,
// recording every named node that passes filters and is not itself an error
// or missing node. Nodes inside error regions are omitted but traversal
// continues into their siblings so the rest of a partially-broken file is
// still indexed.
func walk(root *sitter.Node, provider grammar.Provider, source []byte, filters model.ReadFilters) ([]model.NodeHandle, error) {
	var handles []model.NodeHandle

	type frame struct{ node *sitter.Node }
	stack := []frame{{root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := top.node
		if n == nil {
			continue
		}

		if n.IsMissing() || n.Type() == "ERROR" {
			continue
		}

		// Push children in reverse so they pop in source order.
		childCount := int(n.ChildCount())
		for i := childCount - 1; i >= 0; i-- {
			stack = append(stack, frame{n.Child(i)})
		}

		if !n.IsNamed() {
			continue
		}
		kind := n.Type()
		if !kindPasses(kind, filters) {
			continue
		}

		name := provider.NodeName(n, source)
		if filters.Name != "" {
			matched, err := doublestar.Match(filters.Name, name)
			if err != nil || !matched {
				continue
			}
		}

		start, end := int(n.StartByte()), int(n.EndByte())
		nodeBytes := source[start:end]
		handles = append(handles, model.NodeHandle{
			Span:            model.Span{Start: start, End: end},
			Kind:            kind,
			Name:            name,
			Identity:        hashutil.NodeIdentity(kind, name, nodeBytes),
			ExpectedOldHash: hashutil.ExpectedOldHash(nodeBytes),
		})
	}

	// The stack-based walk above visits nodes in an order derived from
	// popping children pushed in reverse, which yields source order by
	// start offset; nothing further to sort.
	return handles, nil
}

func kindPasses(kind string, filters model.ReadFilters) bool {
	for _, ex := range filters.ExcludeKind {
		if ex == kind {
			return false
		}
	}
	if len(filters.Kind) == 0 {
		return true
	}
	for _, k := range filters.Kind {
		if k == kind {
			return true
		}
	}
	return false
}

func lineAnchors(path string, content []byte) []model.LineAnchorHandle {
	lines := hashutil.SplitLines(content)
	out := make([]model.LineAnchorHandle, 0, len(lines))
	for i, line := range lines {
		out = append(out, model.LineAnchorHandle{
			File: path,
			Line: i + 1,
			Hash: hashutil.LineAnchorHash(line),
			Text: line,
		})
	}
	return out
}
