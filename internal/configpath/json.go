package configpath

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

// gjsonPath renders segments as a gjson path expression (dot-joined; gjson
// treats a purely-numeric segment as an array index automatically).
func gjsonPath(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.IsIndex {
			parts = append(parts, strconv.Itoa(s.Index))
		} else {
			parts = append(parts, s.Key)
		}
	}
	return strings.Join(parts, ".")
}

func resolveJSON(source []byte, segs []Segment, createMissing bool) (Resolution, error) {
	full := gjsonPath(segs)
	res := gjson.GetBytes(source, full)
	if res.Exists() {
		start := int(res.Index)
		if start == 0 && res.Index == 0 {
			// gjson leaves Index at 0 when it can't compute an exact
			// offset (e.g. root "@this"); re-derive it defensively.
			if idx := locateRaw(source, res.Raw); idx >= 0 {
				start = idx
			}
		}
		end := start + len(res.Raw)
		return Resolution{Span: model.Span{Start: start, End: end}, Kind: jsonKind(res)}, nil
	}

	if !createMissing {
		return Resolution{}, identerr.New(identerr.TargetMissing, "config path not found: "+full)
	}
	if len(segs) == 0 {
		return Resolution{}, identerr.New(identerr.InvalidRequest, "empty config path")
	}
	parentSegs := segs[:len(segs)-1]
	parentPath := gjsonPath(parentSegs)
	var parent gjson.Result
	if parentPath == "" {
		parent = gjson.ParseBytes(source)
	} else {
		parent = gjson.GetBytes(source, parentPath)
	}
	if !parent.Exists() {
		return Resolution{}, identerr.New(identerr.TargetMissing, "intermediate config path not found: "+parentPath)
	}
	if !parent.IsObject() && !parent.IsArray() {
		return Resolution{}, identerr.New(identerr.InvalidRequest, "config path parent is not an object or array: "+parentPath)
	}
	start := int(parent.Index) + len(parent.Raw)
	// Insertion point is just before the closing brace/bracket.
	trimmed := strings.TrimRight(parent.Raw, " \t\r\n")
	closeOffset := len(trimmed) - 1
	if closeOffset < 0 {
		return Resolution{}, identerr.New(identerr.InvalidRequest, "malformed container at "+parentPath)
	}
	insertAt := int(parent.Index) + closeOffset
	start = insertAt
	kind := ContainerObject
	if parent.IsArray() {
		kind = ContainerArray
	}
	return Resolution{Span: model.Span{Start: start, End: start}, IsInsertion: true, Kind: kind}, nil
}

func jsonKind(res gjson.Result) ContainerKind {
	switch {
	case res.IsObject():
		return ContainerObject
	case res.IsArray():
		return ContainerArray
	default:
		return ContainerScalar
	}
}

// locateRaw is a defensive fallback for the rare case gjson does not report
// a usable Index (e.g. for certain synthetic results); it searches for the
// first literal occurrence of raw within source.
func locateRaw(source []byte, raw string) int {
	if raw == "" {
		return -1
	}
	return strings.Index(string(source), raw)
}

// jsonSet validates the path per §4.C (only the final segment may be
// missing, and only when createMissing is set) then uses sjson.SetRawBytes
// to produce the new document, diffed back to a minimal SpanEdit.
func jsonSet(source []byte, segs []Segment, newText string, createMissing bool) (model.SpanEdit, error) {
	full := gjsonPath(segs)
	if len(segs) > 1 {
		parentPath := gjsonPath(segs[:len(segs)-1])
		if !gjson.GetBytes(source, parentPath).Exists() {
			return model.SpanEdit{}, identerr.New(identerr.TargetMissing, "intermediate config path not found: "+parentPath)
		}
	}
	if !gjson.GetBytes(source, full).Exists() && !createMissing {
		return model.SpanEdit{}, identerr.New(identerr.TargetMissing, "config path not found: "+full)
	}
	out, err := sjson.SetRawBytes(source, full, []byte(newText))
	if err != nil {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "config set failed: "+err.Error())
	}
	return diffToSpanEdit(source, out), nil
}

// jsonAppend splices a new element onto the array at path, using sjson's
// "-1" append index.
func jsonAppend(source []byte, segs []Segment, newElementText string) (model.SpanEdit, error) {
	full := gjsonPath(segs)
	target := gjson.GetBytes(source, full)
	if !target.Exists() {
		return model.SpanEdit{}, identerr.New(identerr.TargetMissing, "config path not found: "+full)
	}
	if !target.IsArray() {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "append target is not an array: "+full)
	}
	appendPath := full + ".-1"
	out, err := sjson.SetRawBytes(source, appendPath, []byte(newElementText))
	if err != nil {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "config append failed: "+err.Error())
	}
	return diffToSpanEdit(source, out), nil
}

// jsonDelete removes the key/value (or array element) at path, letting
// sjson produce the canonical minimal-form document (Open Question ii).
func jsonDelete(source []byte, segs []Segment) (model.SpanEdit, error) {
	full := gjsonPath(segs)
	if !gjson.GetBytes(source, full).Exists() {
		return model.SpanEdit{}, identerr.New(identerr.TargetMissing, "config path not found: "+full)
	}
	out, err := sjson.DeleteBytes(source, full)
	if err != nil {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "config delete failed: "+err.Error())
	}
	return diffToSpanEdit(source, out), nil
}
