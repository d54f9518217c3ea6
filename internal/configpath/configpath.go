// Package configpath implements the Config Path Resolver (§4.C): resolving
// a dotted/bracket path expression against a parsed JSON, YAML, or TOML
// document to a byte span of the referenced value in the original source,
// with insertion-point support when create_missing is set.
//
// There is no teacher analogue (termfx-morfx has no config-file editing
// surface); this package is wired fresh per SPEC_FULL.md's Domain Stack,
// using github.com/tidwall/gjson for JSON span lookup (the one ecosystem
// library purpose-built for exactly this), gopkg.in/yaml.v3 node positions
// for YAML, and a line-oriented scanner validated against
// github.com/BurntSushi/toml's parsed shape for TOML.
package configpath

import (
	"strconv"
	"strings"

	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

// Format identifies which config syntax a path is resolved against.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// DetectFormat guesses a document's format from its file extension.
func DetectFormat(path string) (Format, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return JSON, true
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return YAML, true
	case strings.HasSuffix(lower, ".toml"):
		return TOML, true
	default:
		return "", false
	}
}

// Segment is one step of a config path: either a map key or an array index.
type Segment struct {
	Key      string
	Index    int
	IsIndex  bool
}

// ParsePath parses the grammar `segment ('.' segment | '[' int ']')*` where
// segment is an unquoted key (§4.C).
func ParsePath(path string) ([]Segment, error) {
	if path == "" {
		return nil, identerr.New(identerr.InvalidRequest, "config path must not be empty")
	}
	var segs []Segment
	i := 0
	n := len(path)
	expectSeparatorOrEnd := false
	for i < n {
		switch {
		case path[i] == '.':
			if !expectSeparatorOrEnd && len(segs) > 0 {
				return nil, identerr.New(identerr.InvalidRequest, "config path: unexpected '.'")
			}
			i++
			expectSeparatorOrEnd = false
		case path[i] == '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, identerr.New(identerr.InvalidRequest, "config path: unterminated '['")
			}
			numStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(numStr)
			if err != nil || idx < 0 {
				return nil, identerr.New(identerr.InvalidRequest, "config path: invalid array index '"+numStr+"'")
			}
			segs = append(segs, Segment{Index: idx, IsIndex: true})
			i += end + 1
			expectSeparatorOrEnd = true
		default:
			start := i
			for i < n && path[i] != '.' && path[i] != '[' {
				i++
			}
			key := path[start:i]
			if key == "" {
				return nil, identerr.New(identerr.InvalidRequest, "config path: empty segment")
			}
			segs = append(segs, Segment{Key: key})
			expectSeparatorOrEnd = true
		}
	}
	if len(segs) == 0 {
		return nil, identerr.New(identerr.InvalidRequest, "config path: no segments")
	}
	return segs, nil
}

// ContainerKind describes what sits at a resolved path, used by append/delete
// to validate operation compatibility (§4.C, §4.E).
type ContainerKind string

const (
	ContainerScalar ContainerKind = "scalar"
	ContainerObject ContainerKind = "object"
	ContainerArray  ContainerKind = "array"
	ContainerMissing ContainerKind = "missing"
)

// Resolution is the result of resolving a config path (§4.C).
type Resolution struct {
	Span          model.Span
	IsInsertion   bool
	Kind          ContainerKind
	// IndentHint is not set by any resolver in this package; the Append
	// implementations derive indentation from the source themselves.
	IndentHint string
}

// Resolve locates path within source under the given format. createMissing
// allows the final segment to be absent, returning a zero-width insertion
// point instead of target_missing.
func Resolve(format Format, source []byte, path string, createMissing bool) (Resolution, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return Resolution{}, err
	}
	switch format {
	case JSON:
		return resolveJSON(source, segs, createMissing)
	case YAML:
		return resolveYAML(source, segs, createMissing)
	case TOML:
		return resolveTOML(source, segs, createMissing)
	default:
		return Resolution{}, identerr.New(identerr.InvalidRequest, "unknown config format")
	}
}

// Set resolves path's value span and replaces it with newText, the config-path
// analogue of the `set` operation (§4.E).
func Set(format Format, source []byte, path string, newText string, createMissing bool) (model.SpanEdit, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return model.SpanEdit{}, err
	}
	switch format {
	case JSON:
		return jsonSet(source, segs, newText, createMissing)
	case YAML:
		return yamlSet(source, segs, newText, createMissing)
	case TOML:
		return tomlSet(source, segs, newText, createMissing)
	default:
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "unknown config format")
	}
}

// Append splices newElementText onto the array at path (§4.E).
func Append(format Format, source []byte, path string, newElementText string) (model.SpanEdit, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return model.SpanEdit{}, err
	}
	switch format {
	case JSON:
		return jsonAppend(source, segs, newElementText)
	case YAML:
		return yamlAppend(source, segs, newElementText)
	case TOML:
		return tomlAppend(source, segs, newElementText)
	default:
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "unknown config format")
	}
}

// Delete removes the key/value (or array element) at path, along with the
// minimal enclosing punctuation (§4.E).
func Delete(format Format, source []byte, path string) (model.SpanEdit, error) {
	segs, err := ParsePath(path)
	if err != nil {
		return model.SpanEdit{}, err
	}
	switch format {
	case JSON:
		return jsonDelete(source, segs)
	case YAML:
		return yamlDelete(source, segs)
	case TOML:
		return tomlDelete(source, segs)
	default:
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "unknown config format")
	}
}

// diffToSpanEdit reduces a whole-document before/after pair to the single
// minimal SpanEdit that transforms one into the other, by trimming the
// common prefix and common suffix. Safe to use only when the backend (e.g.
// sjson) guarantees it leaves unrelated document regions byte-identical.
func diffToSpanEdit(original, modified []byte) model.SpanEdit {
	p := 0
	maxP := len(original)
	if len(modified) < maxP {
		maxP = len(modified)
	}
	for p < maxP && original[p] == modified[p] {
		p++
	}
	s := 0
	maxS := len(original) - p
	if len(modified)-p < maxS {
		maxS = len(modified) - p
	}
	for s < maxS && original[len(original)-1-s] == modified[len(modified)-1-s] {
		s++
	}
	return model.SpanEdit{
		Span:        model.Span{Start: p, End: len(original) - s},
		Replacement: string(modified[p : len(modified)-s]),
	}
}
