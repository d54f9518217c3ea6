package configpath

import (
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

// lineOffsets returns, for 1-based line number ln, the byte offset of its
// first character. index 0 is unused so offsets[ln] works directly.
func lineOffsets(source []byte) []int {
	offsets := []int{0, 0}
	for i, b := range source {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func yamlOffset(offsets []int, line, col int) int {
	if line < 1 || line >= len(offsets) {
		return -1
	}
	return offsets[line] + (col - 1)
}

// parseYAMLDoc decodes source and rejects the constructs Open Question (i)
// documents as unsupported: multi-document streams, anchors/aliases, and
// merge keys.
func parseYAMLDoc(source []byte) (*yaml.Node, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(strings.NewReader(string(source)))
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, identerr.New(identerr.InvalidRequest, "empty yaml document")
		}
		return nil, identerr.New(identerr.ParseFailure, "yaml parse error: "+err.Error())
	}
	if len(doc.Content) == 0 {
		return nil, identerr.New(identerr.InvalidRequest, "empty yaml document")
	}
	// A decoder reads one document per call, so anything but io.EOF on a
	// second call means the stream holds more than one document.
	var extra yaml.Node
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, identerr.New(identerr.InvalidRequest, "multi-document YAML streams are not supported")
	}
	if err := rejectAnchors(doc.Content[0]); err != nil {
		return nil, err
	}
	return doc.Content[0], nil
}

func rejectAnchors(n *yaml.Node) error {
	if n == nil {
		return nil
	}
	if n.Anchor != "" || n.Kind == yaml.AliasNode || n.Tag == "!!merge" {
		return identerr.New(identerr.InvalidRequest, "ambiguous YAML anchors/aliases/merge keys are not supported")
	}
	for _, c := range n.Content {
		if err := rejectAnchors(c); err != nil {
			return err
		}
	}
	return nil
}

// yamlLocate walks segs against root, returning the located value node, its
// immediate key node (mapping entries only, nil for sequence items), the
// parent container node, and the child index within parent.Content.
func yamlLocate(root *yaml.Node, segs []Segment) (value, key, parent *yaml.Node, childIdx int, err error) {
	cur := root
	var curKey *yaml.Node
	var curParent *yaml.Node
	idx := -1
	for _, seg := range segs {
		if seg.IsIndex {
			if cur.Kind != yaml.SequenceNode {
				return nil, nil, nil, 0, identerr.New(identerr.InvalidRequest, "config path indexes into a non-array")
			}
			if seg.Index < 0 || seg.Index >= len(cur.Content) {
				return nil, nil, nil, 0, identerr.New(identerr.InvalidRequest, "config path array index out of range")
			}
			curParent = cur
			idx = seg.Index
			curKey = nil
			cur = cur.Content[seg.Index]
			continue
		}
		if cur.Kind != yaml.MappingNode {
			return nil, nil, nil, 0, identerr.New(identerr.InvalidRequest, "config path key into a non-object")
		}
		found := false
		for i := 0; i+1 < len(cur.Content); i += 2 {
			k := cur.Content[i]
			if k.Value == seg.Key {
				curParent = cur
				idx = i + 1
				curKey = k
				cur = cur.Content[i+1]
				found = true
				break
			}
		}
		if !found {
			return nil, nil, nil, 0, identerr.New(identerr.TargetMissing, "config path not found: "+seg.Key)
		}
	}
	return cur, curKey, curParent, idx, nil
}

// scalarSpan approximates the byte extent of a (possibly multi-line) scalar
// starting at startOffset: it extends through lines more indented than the
// node's own column, stopping at the first line at or below that indent or
// at EOF. Single-line scalars (the common case) resolve to exactly their
// line's remaining content.
func scalarSpan(source []byte, startOffset, ownIndent int) int {
	i := startOffset
	n := len(source)
	for i < n {
		nl := strings.IndexByte(string(source[i:]), '\n')
		if nl < 0 {
			return n
		}
		lineEnd := i + nl
		// Peek the next line's indent; stop before it if it is not deeper.
		nextStart := lineEnd + 1
		if nextStart >= n {
			return lineEnd
		}
		indent := 0
		for nextStart+indent < n && source[nextStart+indent] == ' ' {
			indent++
		}
		if nextStart+indent >= n || source[nextStart+indent] == '\n' {
			// Blank line: part of the block scalar only if not terminal; be
			// conservative and stop here for simple configs.
			return lineEnd
		}
		if indent <= ownIndent {
			return lineEnd
		}
		i = nextStart
	}
	return n
}

func resolveYAML(source []byte, segs []Segment, createMissing bool) (Resolution, error) {
	root, err := parseYAMLDoc(source)
	if err != nil {
		return Resolution{}, err
	}
	offsets := lineOffsets(source)

	value, _, _, _, lerr := yamlLocate(root, segs)
	if lerr == nil {
		start := yamlOffset(offsets, value.Line, value.Column)
		end := scalarSpanForNode(source, value, start)
		return Resolution{Span: model.Span{Start: start, End: end}, Kind: yamlKind(value)}, nil
	}

	ie, ok := lerr.(*identerr.Error)
	if !ok || ie.Kind != identerr.TargetMissing || !createMissing || len(segs) == 0 {
		return Resolution{}, lerr
	}
	// Only the final segment may be missing (§4.C).
	parentVal, _, _, _, perr := yamlLocate(root, segs[:len(segs)-1])
	if perr != nil {
		return Resolution{}, perr
	}
	if parentVal.Kind != yaml.MappingNode {
		return Resolution{}, identerr.New(identerr.InvalidRequest, "config path parent is not a mapping")
	}
	insertAt := mappingInsertionPoint(source, offsets, parentVal)
	return Resolution{Span: model.Span{Start: insertAt, End: insertAt}, IsInsertion: true, Kind: ContainerObject}, nil
}

func scalarSpanForNode(source []byte, n *yaml.Node, start int) int {
	if n.Kind != yaml.ScalarNode {
		// Mapping/sequence containers: a full positional span isn't needed
		// by any operation this engine supports (set/append/delete act on
		// scalars or array elements); fall back to end of the node's line.
		nl := strings.IndexByte(string(source[start:]), '\n')
		if nl < 0 {
			return len(source)
		}
		return start + nl
	}
	return scalarSpan(source, start, n.Column-1)
}

func yamlKind(n *yaml.Node) ContainerKind {
	switch n.Kind {
	case yaml.MappingNode:
		return ContainerObject
	case yaml.SequenceNode:
		return ContainerArray
	default:
		return ContainerScalar
	}
}

// mappingInsertionPoint returns the offset at which a new "key: value" line
// should be inserted: immediately after the last entry's line.
func mappingInsertionPoint(source []byte, offsets []int, mapping *yaml.Node) int {
	if len(mapping.Content) == 0 {
		return yamlOffset(offsets, mapping.Line, mapping.Column)
	}
	last := mapping.Content[len(mapping.Content)-1]
	start := yamlOffset(offsets, last.Line, last.Column)
	end := scalarSpanForNode(source, last, start)
	return end
}

func lineIndent(source []byte, lineStart int) string {
	i := lineStart
	for i < len(source) && (source[i] == ' ' || source[i] == '\t') {
		i++
	}
	return string(source[lineStart:i])
}

func lineStartOf(source []byte, offset int) int {
	i := offset
	for i > 0 && source[i-1] != '\n' {
		i--
	}
	return i
}

func lineEndOf(source []byte, offset int) int {
	i := offset
	for i < len(source) && source[i] != '\n' {
		i++
	}
	if i < len(source) {
		i++ // include the newline
	}
	return i
}

func yamlSet(source []byte, segs []Segment, newText string, createMissing bool) (model.SpanEdit, error) {
	res, err := resolveYAML(source, segs, createMissing)
	if err != nil {
		return model.SpanEdit{}, err
	}
	if res.IsInsertion {
		root, _ := parseYAMLDoc(source)
		parentVal, _, _, _, perr := yamlLocate(root, segs[:len(segs)-1])
		if perr != nil {
			return model.SpanEdit{}, perr
		}
		indent := mappingChildIndent(source, parentVal)
		// res.Span sits just before the newline terminating the previous
		// entry's line, so the new line needs a leading \n and no trailing
		// one — the original newline still closes it.
		text := "\n" + indent + segs[len(segs)-1].Key + ": " + newText
		return model.SpanEdit{Span: res.Span, Replacement: text}, nil
	}
	return model.SpanEdit{Span: res.Span, Replacement: newText}, nil
}

func mappingChildIndent(source []byte, mapping *yaml.Node) string {
	if len(mapping.Content) >= 2 {
		k := mapping.Content[0]
		off := yamlOffset(lineOffsets(source), k.Line, k.Column)
		return lineIndent(source, lineStartOf(source, off))
	}
	off := yamlOffset(lineOffsets(source), mapping.Line, mapping.Column)
	return lineIndent(source, lineStartOf(source, off))
}

func yamlAppend(source []byte, segs []Segment, newElementText string) (model.SpanEdit, error) {
	root, err := parseYAMLDoc(source)
	if err != nil {
		return model.SpanEdit{}, err
	}
	target, _, _, _, lerr := yamlLocate(root, segs)
	if lerr != nil {
		return model.SpanEdit{}, lerr
	}
	if target.Kind != yaml.SequenceNode {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "append target is not an array")
	}
	offsets := lineOffsets(source)
	if len(target.Content) == 0 {
		off := yamlOffset(offsets, target.Line, target.Column)
		indent := lineIndent(source, lineStartOf(source, off))
		text := indent + "- " + newElementText + "\n"
		return model.SpanEdit{Span: model.Span{Start: off, End: off}, Replacement: text}, nil
	}
	last := target.Content[len(target.Content)-1]
	lastOff := yamlOffset(offsets, last.Line, last.Column)
	lastLineStart := lineStartOf(source, lastOff)
	indent := lineIndent(source, lastLineStart)
	end := scalarSpanForNode(source, last, lastOff)
	// end sits just before the newline terminating the last element's line;
	// lead with \n and omit the trailing one for the same reason as yamlSet.
	text := "\n" + indent + "- " + newElementText
	return model.SpanEdit{Span: model.Span{Start: end, End: end}, Replacement: text}, nil
}

func yamlDelete(source []byte, segs []Segment) (model.SpanEdit, error) {
	root, err := parseYAMLDoc(source)
	if err != nil {
		return model.SpanEdit{}, err
	}
	value, key, _, _, lerr := yamlLocate(root, segs)
	if lerr != nil {
		return model.SpanEdit{}, lerr
	}
	offsets := lineOffsets(source)
	if key != nil {
		start := lineStartOf(source, yamlOffset(offsets, key.Line, key.Column))
		valOff := yamlOffset(offsets, value.Line, value.Column)
		valEnd := scalarSpanForNode(source, value, valOff)
		end := lineEndOf(source, valEnd-1)
		return model.SpanEdit{Span: model.Span{Start: start, End: end}, Replacement: ""}, nil
	}
	off := yamlOffset(offsets, value.Line, value.Column)
	start := lineStartOf(source, off)
	end := lineEndOf(source, scalarSpanForNode(source, value, off)-1)
	return model.SpanEdit{Span: model.Span{Start: start, End: end}, Replacement: ""}, nil
}

