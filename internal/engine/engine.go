// Package engine wires the Parse Index, Target Resolver, Operation Engine,
// Changeset Composer, and Transaction Manager together into the five
// file-touching operations the CLI exposes (read/edit/apply/patch/merge,
// §6). It is the one place that knows the full pipeline order; every
// package it imports stays ignorant of the others, mirroring the teacher's
// internal/cli/runner.go, which is the sole caller that knows about
// scanner+provider+manipulator+writer together.
package engine

import (
	"os"
	"sort"

	"github.com/termfx/identedit/internal/changeset"
	"github.com/termfx/identedit/internal/grammar"
	"github.com/termfx/identedit/internal/hashutil"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
	"github.com/termfx/identedit/internal/opengine"
	"github.com/termfx/identedit/internal/parseindex"
	"github.com/termfx/identedit/internal/target"
	"github.com/termfx/identedit/internal/txn"
)

// Engine is the facade cmd/identedit drives.
type Engine struct {
	index    *parseindex.Index
	resolver *target.Resolver
	ops      *opengine.Engine
	txn      *txn.Manager
}

// New builds an Engine backed by the built-in static grammar registry.
func New() *Engine {
	idx := parseindex.New(grammar.NewStaticRegistry())
	resolver := target.New(idx)
	return &Engine{
		index:    idx,
		resolver: resolver,
		ops:      opengine.New(resolver),
		txn:      txn.New(),
	}
}

// Read runs the `read` command (§4.B, §6) over paths, returning the combined
// Handles payload. A file that fails to parse or has no grammar contributes
// a Diagnostic rather than aborting the whole read.
func (e *Engine) Read(paths []string, filters model.ReadFilters) (model.Handles, error) {
	out := model.Handles{}
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return model.Handles{}, identerr.New(identerr.InvalidRequest, "cannot read file: "+err.Error()).WithFile(path)
		}
		res, err := e.index.Read(path, content, filters)
		if err != nil {
			return model.Handles{}, err
		}
		out.Handles = append(out.Handles, res.Handles...)
		out.LineAnchors = append(out.LineAnchors, res.LineAnchors...)
		out.FilePreconditions = append(out.FilePreconditions, model.FilePrecondition{File: path, FileHash: res.FileHash})
		if res.Diagnostic != nil {
			out.Diagnostics = append(out.Diagnostics, *res.Diagnostic)
		}
		out.Summary.FilesScanned++
		out.Summary.HandlesFound += len(res.Handles) + len(res.LineAnchors)
	}
	out.Summary.Diagnostics = len(out.Diagnostics)
	return out, nil
}

// Edit runs the `edit` command (§4.D/§4.E/§4.F, §6): it resolves and applies
// every operation against the file's on-disk bytes and composes the
// resulting changeset, without writing anything.
func (e *Engine) Edit(req *model.EditRequest) (*model.MultiFileChangeset, error) {
	cs := model.NewChangeset()
	for _, fr := range req.AsFileRequests() {
		fc, err := e.editFile(fr)
		if err != nil {
			return nil, err
		}
		cs.Files = append(cs.Files, fc)
	}
	return cs, nil
}

func (e *Engine) editFile(fr model.FileEditRequest) (model.FileChangeset, error) {
	content, err := os.ReadFile(fr.File)
	if err != nil {
		return model.FileChangeset{}, identerr.New(identerr.InvalidRequest, "cannot read file: "+err.Error()).WithFile(fr.File)
	}

	var edits []model.SpanEdit
	for _, op := range fr.Operations {
		opEdits, err := e.ops.Apply(op, fr.File, content, fr.HandleTable)
		if err != nil {
			if ie, ok := identerr.As(err); ok {
				return model.FileChangeset{}, ie.WithFile(fr.File)
			}
			return model.FileChangeset{}, err
		}
		edits = append(edits, opEdits...)
	}

	return changeset.Build(fr.File, hashutil.FileHash(content), edits)
}

// Apply runs the `apply` command (§4.G, §6): the Transaction Manager's
// four-phase commit over a previously composed changeset.
func (e *Engine) Apply(cs *model.MultiFileChangeset, opts txn.Options) (*model.ApplyResult, error) {
	return e.txn.Apply(cs, opts)
}

// Patch runs the `patch` command (§6): a fused read+edit+apply for a single
// file and a single operation, useful when a caller doesn't need the
// intermediate changeset.
func (e *Engine) Patch(file string, op model.Operation, opts txn.Options) (*model.ApplyResult, error) {
	cs, err := e.Edit(&model.EditRequest{File: file, Operations: []model.Operation{op}})
	if err != nil {
		return nil, err
	}
	return e.txn.Apply(cs, opts)
}

// Merge runs the `merge` command (§4.F, §6) over changesets already loaded
// from disk by the caller.
func (e *Engine) Merge(changesets []*model.MultiFileChangeset) (*model.MultiFileChangeset, error) {
	return changeset.Merge(changesets)
}

// SortedFiles returns a changeset's file paths in ascending order, the same
// order the Transaction Manager commits in.
func SortedFiles(cs *model.MultiFileChangeset) []string {
	files := make([]string, 0, len(cs.Files))
	for _, fc := range cs.Files {
		files = append(files, fc.File)
	}
	sort.Strings(files)
	return files
}
