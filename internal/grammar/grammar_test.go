package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPath_ResolvesByExtensionCaseInsensitively(t *testing.T) {
	r := NewStaticRegistry()

	p, ok := r.ForPath("main.GO")
	require.True(t, ok)
	assert.Equal(t, "go", p.Lang())

	p, ok = r.ForPath("script.py")
	require.True(t, ok)
	assert.Equal(t, "python", p.Lang())

	p, ok = r.ForPath("component.tsx")
	require.True(t, ok)
	assert.Equal(t, "typescript", p.Lang())
}

func TestForPath_UnknownExtensionReportsNoProvider(t *testing.T) {
	r := NewStaticRegistry()
	_, ok := r.ForPath("notes.txt")
	assert.False(t, ok)
}

func TestLanguages_ReturnsSortedDistinctNames(t *testing.T) {
	r := NewStaticRegistry()
	assert.Equal(t, []string{"go", "javascript", "python", "typescript"}, r.Languages())
}

func TestBaseProvider_NodeNameReturnsEmptyForNilNode(t *testing.T) {
	p := baseProvider{lang: "go"}
	assert.Equal(t, "", p.NodeName(nil, nil))
}
