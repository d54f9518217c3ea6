package configpath

import (
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

// TOML resolution is a line-oriented scanner rather than a library-backed
// span lookup: no ecosystem TOML library exposes byte-exact value spans the
// way gjson does for JSON (github.com/BurntSushi/toml decodes into Go
// values without retaining source offsets), so the scanner below is
// necessarily bespoke, matching the same constraint YAML's node-position
// mapping works around. BurntSushi/toml is still used up front to validate
// that source is well-formed TOML before the scanner trusts its own
// line-level parsing.

type tomlLine struct {
	start int // byte offset of the line's first character
	end   int // byte offset one past the line's content, excluding the newline
	text  string
}

func tomlLines(source []byte) []tomlLine {
	var lines []tomlLine
	start := 0
	for i := 0; i <= len(source); i++ {
		if i == len(source) || source[i] == '\n' {
			lines = append(lines, tomlLine{start: start, end: i, text: string(source[start:i])})
			start = i + 1
		}
	}
	return lines
}

func splitDotted(s string) []string {
	parts := strings.Split(s, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// tomlKeyLine describes one matched `key = value` line.
type tomlKeyLine struct {
	line       tomlLine
	keyEnd     int // offset where " = " begins (end of key text, before trim)
	valueStart int
	valueEnd   int // exclusive, trimmed of trailing whitespace/comment
}

func findTOMLKeyLine(source []byte, targetPath []string) (*tomlKeyLine, error) {
	if _, err := toml.Decode(string(source), new(map[string]interface{})); err != nil {
		return nil, identerr.New(identerr.ParseFailure, "toml parse error: "+err.Error())
	}
	var table []string
	for _, l := range tomlLines(source) {
		trimmed := strings.TrimSpace(l.text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, "[[") && strings.HasSuffix(trimmed, "]]") {
			table = splitDotted(trimmed[2 : len(trimmed)-2])
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			table = splitDotted(trimmed[1 : len(trimmed)-1])
			continue
		}
		eq := findTopLevelEquals(trimmed)
		if eq < 0 {
			continue
		}
		keyPart := strings.TrimSpace(trimmed[:eq])
		full := append(append([]string{}, table...), splitDotted(keyPart)...)
		if !stringsEqual(full, targetPath) {
			continue
		}
		// Recompute offsets against the untrimmed line.
		leadingWS := len(l.text) - len(strings.TrimLeft(l.text, " \t"))
		absEq := leadingWS + eq
		valueRaw := l.text[absEq+1:]
		valTrimStart := len(valueRaw) - len(strings.TrimLeft(valueRaw, " "))
		commentIdx := findCommentStart(valueRaw)
		valueText := valueRaw
		if commentIdx >= 0 {
			valueText = valueRaw[:commentIdx]
		}
		valTrimEnd := len(strings.TrimRight(valueText, " \t"))
		return &tomlKeyLine{
			line:       l,
			keyEnd:     l.start + absEq,
			valueStart: l.start + absEq + 1 + valTrimStart,
			valueEnd:   l.start + absEq + 1 + valTrimEnd,
		}, nil
	}
	return nil, nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// findTopLevelEquals finds the first '=' not inside a quoted string.
func findTopLevelEquals(s string) int {
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '=':
			return i
		}
	}
	return -1
}

func findCommentStart(s string) int {
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '#':
			return i
		}
	}
	return -1
}

// splitTopLevelArrayItems splits the inside of a TOML array literal (without
// the brackets) into its top-level comma-separated element texts, with their
// byte offsets relative to the start of inner.
func splitTopLevelArrayItems(inner string) []struct{ start, end int } {
	var items []struct{ start, end int }
	depth := 0
	inQuote := byte(0)
	itemStart := 0
	i := 0
	for ; i < len(inner); i++ {
		c := inner[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, struct{ start, end int }{itemStart, i})
				itemStart = i + 1
			}
		}
	}
	if strings.TrimSpace(inner[itemStart:]) != "" {
		items = append(items, struct{ start, end int }{itemStart, len(inner)})
	}
	return items
}

func segsToKeyAndIndices(segs []Segment) (keys []string, indices []int, err error) {
	i := 0
	for i < len(segs) && !segs[i].IsIndex {
		keys = append(keys, segs[i].Key)
		i++
	}
	for i < len(segs) {
		if !segs[i].IsIndex {
			return nil, nil, identerr.New(identerr.InvalidRequest, "config path: TOML keys cannot follow an array index")
		}
		indices = append(indices, segs[i].Index)
		i++
	}
	if len(keys) == 0 {
		return nil, nil, identerr.New(identerr.InvalidRequest, "config path must start with a key")
	}
	return keys, indices, nil
}

func resolveTOML(source []byte, segs []Segment, createMissing bool) (Resolution, error) {
	keys, indices, err := segsToKeyAndIndices(segs)
	if err != nil {
		return Resolution{}, err
	}
	kl, ferr := findTOMLKeyLine(source, keys)
	if ferr != nil {
		return Resolution{}, ferr
	}
	if kl == nil {
		if !createMissing || len(indices) > 0 {
			return Resolution{}, identerr.New(identerr.TargetMissing, "config path not found")
		}
		// Insertion point: end of file (appending a new top-level key is
		// the only createMissing case this scanner supports).
		insertAt := len(source)
		return Resolution{Span: model.Span{Start: insertAt, End: insertAt}, IsInsertion: true, Kind: ContainerObject}, nil
	}
	valueText := string(source[kl.valueStart:kl.valueEnd])
	if len(indices) == 0 {
		kind := ContainerScalar
		if strings.HasPrefix(valueText, "[") {
			kind = ContainerArray
		}
		return Resolution{Span: model.Span{Start: kl.valueStart, End: kl.valueEnd}, Kind: kind}, nil
	}
	if len(indices) != 1 || !strings.HasPrefix(valueText, "[") || !strings.HasSuffix(valueText, "]") {
		return Resolution{}, identerr.New(identerr.InvalidRequest, "config path: only single-level array indexing is supported for TOML")
	}
	inner := valueText[1 : len(valueText)-1]
	items := splitTopLevelArrayItems(inner)
	idx := indices[0]
	if idx < 0 || idx >= len(items) {
		return Resolution{}, identerr.New(identerr.InvalidRequest, "config path array index out of range")
	}
	it := items[idx]
	base := kl.valueStart + 1
	start := base + it.start
	end := base + it.end
	// Trim surrounding whitespace within the element's own slice.
	elemText := string(source[start:end])
	lead := len(elemText) - len(strings.TrimLeft(elemText, " \t"))
	trimmed := strings.TrimRight(strings.TrimLeft(elemText, " \t"), " \t")
	return Resolution{Span: model.Span{Start: start + lead, End: start + lead + len(trimmed)}, Kind: ContainerScalar}, nil
}

func tomlSet(source []byte, segs []Segment, newText string, createMissing bool) (model.SpanEdit, error) {
	res, err := resolveTOML(source, segs, createMissing)
	if err != nil {
		return model.SpanEdit{}, err
	}
	if res.IsInsertion {
		keys, _, _ := segsToKeyAndIndices(segs)
		text := strings.Join(keys, ".") + " = " + newText + "\n"
		prefix := ""
		if res.Span.Start > 0 && source[res.Span.Start-1] != '\n' {
			prefix = "\n"
		}
		return model.SpanEdit{Span: res.Span, Replacement: prefix + text}, nil
	}
	return model.SpanEdit{Span: res.Span, Replacement: newText}, nil
}

func tomlAppend(source []byte, segs []Segment, newElementText string) (model.SpanEdit, error) {
	keys, indices, err := segsToKeyAndIndices(segs)
	if err != nil {
		return model.SpanEdit{}, err
	}
	if len(indices) != 0 {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "append target must be a plain array key")
	}
	kl, ferr := findTOMLKeyLine(source, keys)
	if ferr != nil {
		return model.SpanEdit{}, ferr
	}
	if kl == nil {
		return model.SpanEdit{}, identerr.New(identerr.TargetMissing, "config path not found")
	}
	valueText := string(source[kl.valueStart:kl.valueEnd])
	if !strings.HasPrefix(valueText, "[") || !strings.HasSuffix(valueText, "]") {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "append target is not an array")
	}
	inner := valueText[1 : len(valueText)-1]
	items := splitTopLevelArrayItems(inner)
	insertAt := kl.valueEnd - 1 // just before the closing ']'
	var repl string
	if len(items) == 0 {
		repl = newElementText
	} else {
		repl = ", " + newElementText
	}
	return model.SpanEdit{Span: model.Span{Start: insertAt, End: insertAt}, Replacement: repl}, nil
}

func tomlDelete(source []byte, segs []Segment) (model.SpanEdit, error) {
	keys, indices, err := segsToKeyAndIndices(segs)
	if err != nil {
		return model.SpanEdit{}, err
	}
	if len(indices) != 0 {
		return model.SpanEdit{}, identerr.New(identerr.InvalidRequest, "delete does not support array-element targets for TOML")
	}
	kl, ferr := findTOMLKeyLine(source, keys)
	if ferr != nil {
		return model.SpanEdit{}, ferr
	}
	if kl == nil {
		return model.SpanEdit{}, identerr.New(identerr.TargetMissing, "config path not found")
	}
	start := kl.line.start
	end := kl.line.end
	if end < len(source) && source[end] == '\n' {
		end++
	}
	return model.SpanEdit{Span: model.Span{Start: start, End: end}, Replacement: ""}, nil
}
