// Package target implements the Target Resolver (§4.D): given a Target and
// the current bytes of a file (plus, for handle_ref, a per-file handle
// table), it returns a concrete byte span and validates every precondition
// the target carries, surfacing the first failure as a structured error.
package target

import (
	"github.com/termfx/identedit/internal/configpath"
	"github.com/termfx/identedit/internal/hashutil"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
	"github.com/termfx/identedit/internal/parseindex"
)

// Resolver resolves targets against file bytes using a Parse Index for
// structural (node) targets.
type Resolver struct {
	idx *parseindex.Index
}

// New builds a Target Resolver backed by idx.
func New(idx *parseindex.Index) *Resolver {
	return &Resolver{idx: idx}
}

// Resolved is a target's concrete location plus any config-path-specific
// context the Operation Engine needs to apply config set/append/delete.
type Resolved struct {
	Span         model.Span
	ConfigFormat configpath.Format
	ConfigPath   string
	IsInsertion  bool
}

// Resolve resolves target against path/content, recursing through
// handle_ref indirection via handleTable (§3 invariant 5: refs resolve only
// within the same file's table).
func (r *Resolver) Resolve(t model.Target, path string, content []byte, handleTable map[string]model.Target) (Resolved, error) {
	switch t.Type {
	case model.TargetNode:
		return r.resolveNode(t, path, content)
	case model.TargetFileStart:
		if err := checkFileHash(t.ExpectedFileHash, content); err != nil {
			return Resolved{}, err
		}
		return Resolved{Span: model.Span{Start: 0, End: 0}}, nil
	case model.TargetFileEnd:
		if err := checkFileHash(t.ExpectedFileHash, content); err != nil {
			return Resolved{}, err
		}
		n := len(content)
		return Resolved{Span: model.Span{Start: n, End: n}}, nil
	case model.TargetLine:
		span, err := resolveLine(content, t.Line, t.Hash, t.AutoRepair)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Span: span}, nil
	case model.TargetLineRange:
		return r.resolveLineRange(t, content)
	case model.TargetConfigPath:
		return r.resolveConfigPath(t, path, content)
	case model.TargetHandleRef:
		sub, ok := handleTable[t.Ref]
		if !ok {
			return Resolved{}, identerr.New(identerr.InvalidRequest, "handle_ref not found in handle_table: "+t.Ref).WithTarget(t.Ref)
		}
		return r.Resolve(sub, path, content, handleTable)
	default:
		return Resolved{}, identerr.New(identerr.InvalidRequest, "unknown target type: "+string(t.Type))
	}
}

func checkFileHash(expected string, content []byte) error {
	if expected == "" {
		return nil
	}
	actual := hashutil.FileHash(content)
	if actual != expected {
		return identerr.New(identerr.PreconditionFailed, "file hash mismatch")
	}
	return nil
}

func (r *Resolver) resolveNode(t model.Target, path string, content []byte) (Resolved, error) {
	res, err := r.idx.Read(path, content, model.ReadFilters{Kind: []string{t.Kind}})
	if err != nil {
		return Resolved{}, err
	}
	if res.Diagnostic != nil {
		return Resolved{}, identerr.New(identerr.Kind(res.Diagnostic.Kind), res.Diagnostic.Message).WithFile(path)
	}

	var matches []model.NodeHandle
	for _, h := range res.Handles {
		if h.Identity == t.Identity {
			matches = append(matches, h)
		}
	}

	var chosen *model.NodeHandle
	switch {
	case len(matches) == 0:
		return Resolved{}, identerr.New(identerr.TargetMissing, "no node matches identity "+t.Identity).WithTarget(t.Identity)
	case len(matches) == 1:
		chosen = &matches[0]
	default:
		if t.SpanHint == nil {
			return Resolved{}, identerr.New(identerr.AmbiguousTarget, "multiple nodes match identity "+t.Identity).WithTarget(t.Identity)
		}
		best := -1
		bestOverlap := 0
		for i, h := range matches {
			ov := overlapLen(h.Span, *t.SpanHint)
			if ov > bestOverlap {
				bestOverlap = ov
				best = i
			} else if ov == bestOverlap && ov > 0 {
				best = -2 // tie among multiple overlapping candidates
			}
		}
		if best < 0 || bestOverlap == 0 {
			return Resolved{}, identerr.New(identerr.AmbiguousTarget, "span_hint did not uniquely select a node").WithTarget(t.Identity)
		}
		chosen = &matches[best]
	}

	if chosen.ExpectedOldHash != t.ExpectedOldHash {
		return Resolved{}, identerr.New(identerr.PreconditionFailed, "node content changed since read").WithTarget(t.Identity)
	}
	return Resolved{Span: chosen.Span}, nil
}

func overlapLen(a, b model.Span) int {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if end <= start {
		return 0
	}
	return end - start
}

// resolveLine resolves a single line anchor, applying the ±32-line
// auto-repair window search when the anchor is stale and autoRepair is set (§4.D).
func resolveLine(content []byte, lineNum int, wantHash string, autoRepair bool) (model.Span, error) {
	lines := hashutil.SplitLines(content)
	offsets := byteLineOffsets(content)

	if lineNum >= 1 && lineNum <= len(lines) {
		if hashutil.LineAnchorHash(lines[lineNum-1]) == wantHash {
			return lineSpanAt(offsets, lineNum, len(lines[lineNum-1])), nil
		}
	}

	if !autoRepair {
		return model.Span{}, identerr.New(identerr.PreconditionFailed, "line anchor does not match current content")
	}

	lo := lineNum - 32
	if lo < 1 {
		lo = 1
	}
	hi := lineNum + 32
	if hi > len(lines) {
		hi = len(lines)
	}
	matchLine := -1
	for l := lo; l <= hi; l++ {
		if l == lineNum {
			continue
		}
		if l < 1 || l > len(lines) {
			continue
		}
		if hashutil.LineAnchorHash(lines[l-1]) == wantHash {
			if matchLine != -1 {
				return model.Span{}, identerr.New(identerr.PreconditionFailed, "line anchor auto-repair found multiple candidate lines")
			}
			matchLine = l
		}
	}
	if matchLine == -1 {
		return model.Span{}, identerr.New(identerr.PreconditionFailed, "line anchor auto-repair found no candidate line")
	}
	return lineSpanAt(offsets, matchLine, len(lines[matchLine-1])), nil
}

func (r *Resolver) resolveLineRange(t model.Target, content []byte) (Resolved, error) {
	if t.Start == nil || t.End == nil {
		return Resolved{}, identerr.New(identerr.InvalidRequest, "line_range requires start and end")
	}
	startSpan, err := resolveLine(content, t.Start.Line, t.Start.Hash, t.AutoRepair)
	if err != nil {
		return Resolved{}, err
	}
	endSpan, err := resolveLine(content, t.End.Line, t.End.Hash, t.AutoRepair)
	if err != nil {
		return Resolved{}, err
	}
	if endSpan.Start < startSpan.Start {
		return Resolved{}, identerr.New(identerr.InvalidRequest, "line_range end precedes start")
	}
	return Resolved{Span: model.Span{Start: startSpan.Start, End: endSpan.End}}, nil
}

func (r *Resolver) resolveConfigPath(t model.Target, path string, content []byte) (Resolved, error) {
	if err := checkFileHash(t.ExpectedFileHash, content); err != nil {
		return Resolved{}, err
	}
	format, ok := configpath.DetectFormat(path)
	if !ok {
		return Resolved{}, identerr.New(identerr.InvalidRequest, "cannot determine config format for "+path)
	}
	res, err := configpath.Resolve(format, content, t.Path, t.CreateMissing)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Span: res.Span, ConfigFormat: format, ConfigPath: t.Path, IsInsertion: res.IsInsertion}, nil
}

// byteLineOffsets returns, for 1-based line n, the byte offset of its first
// character; offsets[0] is unused.
func byteLineOffsets(content []byte) []int {
	offsets := []int{0, 0}
	for i, b := range content {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineSpanAt(offsets []int, lineNum int, lineLen int) model.Span {
	start := offsets[lineNum]
	return model.Span{Start: start, End: start + lineLen}
}
