// Package grammar defines the GrammarProvider capability boundary (§4.B,
// §9 "parser as external capability") and a static, built-in implementation
// backed by github.com/smacker/go-tree-sitter. Grammar loading and dynamic
// library installation are explicitly out of scope (spec.md §1); this
// package only wires the language bindings already vendored by the teacher's
// dependency surface (tree-sitter) into the interface the Parse Index
// consumes, generalized from the teacher's per-language LanguageProvider
// (internal/provider/contract.go, providers/golang/provider.go) to a single
// narrow capability surface.
package grammar

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Provider exposes exactly what the Parse Index needs from a language
// binding: a tree-sitter language to parse with, and a name-extraction rule
// for turning a matched node into a handle's optional Name (§4.B: "files
// without name extraction rules produce anonymous handles" — every provider
// here has one, via NodeName's generic fallback).
type Provider interface {
	Lang() string
	Language() *sitter.Language
	// NodeName extracts the identifier-like child that names n, or "" if
	// n has no name (e.g. a bare expression statement).
	NodeName(n *sitter.Node, source []byte) string
}

// baseProvider implements the generic, cross-language name-extraction rule
// the teacher's providers/golang/transform.go establishes:
// ChildByFieldName("name") first, falling back to the first identifier-kind
// child. This is shared rather than re-specified per language because every
// bound grammar here (Go, Python, JS, TS) exposes a "name" field on its
// named declarations.
type baseProvider struct {
	lang     string
	language *sitter.Language
}

func (b baseProvider) Lang() string              { return b.lang }
func (b baseProvider) Language() *sitter.Language { return b.language }

var identifierKinds = map[string]bool{
	"identifier":       true,
	"field_identifier": true,
	"type_identifier":  true,
	"property_identifier": true,
}

func (b baseProvider) NodeName(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	if named := n.ChildByFieldName("name"); named != nil {
		return named.Content(source)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && identifierKinds[c.Type()] {
			return c.Content(source)
		}
	}
	return ""
}

// Registry maps file extensions to Providers; it is the capability consumed
// by the Parse Index (package-level
// registry, process-lifetime cache per §5 "GrammarProvider may maintain a
// process-lifetime cache of loaded grammars (read-only after load)").
type Registry struct {
	mu        sync.RWMutex
	byExt     map[string]Provider
}

// NewStaticRegistry builds the built-in registry covering Go, Python,
// JavaScript, and TypeScript — the language bindings available in this
// module's dependency surface.
func NewStaticRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Provider)}
	goProv := baseProvider{lang: "go", language: golang.GetLanguage()}
	pyProv := baseProvider{lang: "python", language: python.GetLanguage()}
	jsProv := baseProvider{lang: "javascript", language: javascript.GetLanguage()}
	tsProv := baseProvider{lang: "typescript", language: typescript.GetLanguage()}

	r.register([]string{".go"}, goProv)
	r.register([]string{".py", ".pyi"}, pyProv)
	r.register([]string{".js", ".jsx", ".mjs", ".cjs"}, jsProv)
	r.register([]string{".ts", ".tsx"}, tsProv)
	return r
}

func (r *Registry) register(exts []string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range exts {
		r.byExt[e] = p
	}
}

// ForPath returns the Provider bound to path's extension, or false if none
// is registered — the Parse Index turns that into a no_provider diagnostic (§4.B).
func (r *Registry) ForPath(path string) (Provider, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[ext]
	return p, ok
}

// Languages lists the distinct language names bound in the registry, sorted,
// for the `grammar list` admin subcommand (§6).
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.byExt {
		if !seen[p.Lang()] {
			seen[p.Lang()] = true
			out = append(out, p.Lang())
		}
	}
	sort.Strings(out)
	return out
}
