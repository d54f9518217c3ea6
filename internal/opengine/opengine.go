// Package opengine implements the Operation Engine (§4.E): given a resolved
// target (or pair of targets, for move/copy) it produces the SpanEdit(s) a
// single Operation contributes to its file's changeset.
//
// Dispatch by Operation.Method is grounded on the teacher's
// core/manipulator.go switch over transform kinds, generalized from a single
// regex-substitution tool to Identedit's fifteen operation variants.
package opengine

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/termfx/identedit/internal/configpath"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
	"github.com/termfx/identedit/internal/target"
)

const maxRegexBuffer = 16 * 1024 * 1024

// Engine turns operations into span edits using a Target Resolver.
type Engine struct {
	resolver *target.Resolver
}

// New builds an Operation Engine backed by resolver.
func New(resolver *target.Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// Apply dispatches op against path/content, returning the SpanEdit(s) it
// contributes (more than one only for move_*, which both deletes the source
// and inserts at the destination).
func (e *Engine) Apply(op model.Operation, path string, content []byte, handleTable map[string]model.Target) ([]model.SpanEdit, error) {
	switch op.Method {
	case model.OpReplace, model.OpSetLine, model.OpReplaceRange:
		resolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
		if err != nil {
			return nil, err
		}
		return []model.SpanEdit{{Span: resolved.Span, Replacement: op.NewText}}, nil

	case model.OpDelete:
		// OpConfigDelete shares the "delete" name; a config_path target
		// selects the config-path form of the operation.
		if op.Target.Type == model.TargetConfigPath {
			return e.applyConfigDelete(op, path, content, handleTable)
		}
		resolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
		if err != nil {
			return nil, err
		}
		return []model.SpanEdit{{Span: collapseDeleteSpan(resolved.Span, content), Replacement: ""}}, nil

	case model.OpInsertBefore:
		resolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
		if err != nil {
			return nil, err
		}
		return []model.SpanEdit{{Span: model.Span{Start: resolved.Span.Start, End: resolved.Span.Start}, Replacement: op.NewText}}, nil

	case model.OpInsertAfter, model.OpInsertAfterLine:
		resolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
		if err != nil {
			return nil, err
		}
		return []model.SpanEdit{{Span: model.Span{Start: resolved.Span.End, End: resolved.Span.End}, Replacement: op.NewText}}, nil

	case model.OpInsert:
		if op.Target.Type != model.TargetFileStart && op.Target.Type != model.TargetFileEnd {
			return nil, identerr.New(identerr.InvalidRequest, "insert requires a file_start or file_end target")
		}
		resolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
		if err != nil {
			return nil, err
		}
		return []model.SpanEdit{{Span: resolved.Span, Replacement: op.NewText}}, nil

	case model.OpScopedRegex:
		return e.applyScopedRegex(op, path, content, handleTable)

	case model.OpMoveBefore, model.OpMoveAfter, model.OpCopyBefore, model.OpCopyAfter:
		return e.applyMoveCopy(op, path, content, handleTable)

	case model.OpConfigSet:
		return e.applyConfigSet(op, path, content, handleTable)
	case model.OpConfigAppend:
		return e.applyConfigAppend(op, path, content, handleTable)

	default:
		return nil, identerr.New(identerr.InvalidRequest, "unknown operation: "+string(op.Method))
	}
}

// collapseDeleteSpan extends span to swallow one adjacent newline when the
// span occupies a whole line by itself — i.e. it starts right after a
// newline (or at byte 0) and ends right before one (or at EOF) — so deleting
// it doesn't leave a blank line behind (§4.E: "collapse ... if both sides
// would leave a blank line ... prefer collapsing the following newline").
// Start-of-file and end-of-file count as line boundaries for this check,
// same as an actual newline, since a span with no other content sharing its
// line is "whole" regardless of which edge of the file it sits on.
func collapseDeleteSpan(span model.Span, content []byte) model.Span {
	atLineStart := span.Start == 0 || content[span.Start-1] == '\n'
	atLineEnd := span.End == len(content) || content[span.End] == '\n'
	if !atLineStart || !atLineEnd {
		return span
	}
	if span.End < len(content) {
		span.End++
	} else if span.Start > 0 {
		span.Start--
	}
	return span
}

// runeBoundary reports whether offset sits on a UTF-8 rune boundary within
// content (true trivially at the start and end of the buffer).
func runeBoundary(content []byte, offset int) bool {
	if offset == 0 || offset == len(content) {
		return true
	}
	return utf8.RuneStart(content[offset])
}

func (e *Engine) applyScopedRegex(op model.Operation, path string, content []byte, handleTable map[string]model.Target) ([]model.SpanEdit, error) {
	resolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
	if err != nil {
		return nil, err
	}
	span := resolved.Span
	if !runeBoundary(content, span.Start) || !runeBoundary(content, span.End) {
		return nil, identerr.New(identerr.InvalidRequest, "scoped_regex target span splits a UTF-8 code point")
	}
	buf := content[span.Start:span.End]
	if len(buf) > maxRegexBuffer {
		return nil, identerr.New(identerr.InvalidRequest, "scoped_regex target span exceeds the 16 MiB buffer limit")
	}

	pattern, err := flaggedPattern(op.Pattern, op.Flags)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, identerr.New(identerr.InvalidRequest, "invalid regex: "+err.Error())
	}

	newBuf := re.ReplaceAll(buf, []byte(op.Replacement))
	if len(newBuf) > maxRegexBuffer {
		return nil, identerr.New(identerr.InvalidRequest, "scoped_regex result exceeds the 16 MiB buffer limit")
	}
	if !utf8.Valid(newBuf) {
		return nil, identerr.New(identerr.InvalidRequest, "scoped_regex replacement is not valid UTF-8")
	}
	return []model.SpanEdit{{Span: span, Replacement: string(newBuf)}}, nil
}

// flaggedPattern translates Identedit's documented flag subset (i, m, s) into
// Go's RE2 inline flag group. RE2 has no backreference or lookaround support
// in the pattern itself, which is exactly the subset spec.md §4.E documents;
// backreferences in the replacement text ($1, $2, ...) are Go's native
// ReplaceAll syntax.
func flaggedPattern(pattern, flags string) (string, error) {
	if flags == "" {
		return pattern, nil
	}
	for _, f := range flags {
		if !strings.ContainsRune("ims", f) {
			return "", identerr.New(identerr.InvalidRequest, "unsupported regex flag: "+string(f))
		}
	}
	return "(?" + flags + ")" + pattern, nil
}

func (e *Engine) applyMoveCopy(op model.Operation, path string, content []byte, handleTable map[string]model.Target) ([]model.SpanEdit, error) {
	if op.Destination == nil {
		return nil, identerr.New(identerr.InvalidRequest, string(op.Method)+" requires a destination")
	}
	srcResolved, err := e.resolver.Resolve(op.Target, path, content, handleTable)
	if err != nil {
		return nil, err
	}
	// Destination is always resolved against the original bytes, never
	// post-deletion bytes (§4.E).
	destResolved, err := e.resolver.Resolve(*op.Destination, path, content, handleTable)
	if err != nil {
		return nil, err
	}
	if srcResolved.Span.Overlaps(destResolved.Span) {
		return nil, identerr.New(identerr.InvalidRequest, "move/copy source and destination overlap")
	}

	sourceBytes := append([]byte(nil), content[srcResolved.Span.Start:srcResolved.Span.End]...)

	var destPoint int
	switch op.Method {
	case model.OpMoveBefore, model.OpCopyBefore:
		destPoint = destResolved.Span.Start
	case model.OpMoveAfter, model.OpCopyAfter:
		destPoint = destResolved.Span.End
	}

	var edits []model.SpanEdit
	if op.Method == model.OpMoveBefore || op.Method == model.OpMoveAfter {
		edits = append(edits, model.SpanEdit{Span: collapseDeleteSpan(srcResolved.Span, content), Replacement: ""})
	}
	edits = append(edits, model.SpanEdit{Span: model.Span{Start: destPoint, End: destPoint}, Replacement: string(sourceBytes)})
	return edits, nil
}

func configFormatFor(path string, t model.Target) (configpath.Format, error) {
	if t.Type != model.TargetConfigPath {
		return "", identerr.New(identerr.InvalidRequest, "config operation requires a config_path target")
	}
	format, ok := configpath.DetectFormat(path)
	if !ok {
		return "", identerr.New(identerr.InvalidRequest, "cannot determine config format for "+path)
	}
	return format, nil
}

func (e *Engine) applyConfigSet(op model.Operation, path string, content []byte, handleTable map[string]model.Target) ([]model.SpanEdit, error) {
	format, err := configFormatFor(path, op.Target)
	if err != nil {
		return nil, err
	}
	if _, err := e.resolver.Resolve(op.Target, path, content, handleTable); err != nil {
		return nil, err
	}
	edit, err := configpath.Set(format, content, op.Target.Path, op.NewText, op.Target.CreateMissing)
	if err != nil {
		return nil, err
	}
	return []model.SpanEdit{edit}, nil
}

func (e *Engine) applyConfigAppend(op model.Operation, path string, content []byte, handleTable map[string]model.Target) ([]model.SpanEdit, error) {
	format, err := configFormatFor(path, op.Target)
	if err != nil {
		return nil, err
	}
	if _, err := e.resolver.Resolve(op.Target, path, content, handleTable); err != nil {
		return nil, err
	}
	edit, err := configpath.Append(format, content, op.Target.Path, op.NewText)
	if err != nil {
		return nil, err
	}
	return []model.SpanEdit{edit}, nil
}

func (e *Engine) applyConfigDelete(op model.Operation, path string, content []byte, handleTable map[string]model.Target) ([]model.SpanEdit, error) {
	format, err := configFormatFor(path, op.Target)
	if err != nil {
		return nil, err
	}
	if _, err := e.resolver.Resolve(op.Target, path, content, handleTable); err != nil {
		return nil, err
	}
	edit, err := configpath.Delete(format, content, op.Target.Path)
	if err != nil {
		return nil, err
	}
	return []model.SpanEdit{edit}, nil
}
