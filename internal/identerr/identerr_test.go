package identerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AttachesRecoveryHint(t *testing.T) {
	e := New(AmbiguousTarget, "multiple matches")
	assert.Equal(t, "provide span_hint", e.RecoveryHint)
	assert.Equal(t, AmbiguousTarget, e.Kind)
	assert.Equal(t, "multiple matches", e.Message)
}

func TestExitCode_MatchesSpecTable(t *testing.T) {
	cases := []struct {
		kind Kind
		code int
	}{
		{InvalidRequest, 2},
		{PreconditionFailed, 3},
		{TargetMissing, 3},
		{PathChanged, 3},
		{AmbiguousTarget, 4},
		{ResourceBusy, 5},
		{ParseFailure, 6},
		{NoProvider, 6},
		{RollbackFailed, 7},
	}
	for _, c := range cases {
		e := New(c.kind, "x")
		assert.Equal(t, c.code, e.ExitCode(), "kind %s", c.kind)
	}
}

func TestExitCode_UnknownKindDefaultsToOne(t *testing.T) {
	e := &Error{Kind: Kind("something_unmapped")}
	assert.Equal(t, 1, e.ExitCode())
}

func TestWithFile_WithTarget_WithFiles_DoNotMutateOriginal(t *testing.T) {
	base := New(TargetMissing, "not found")
	withFile := base.WithFile("a.go")
	withTarget := withFile.WithTarget("abc123")
	withFiles := withTarget.WithFiles([]string{"a.go", "b.go"})

	assert.Empty(t, base.File)
	assert.Empty(t, base.Target)
	assert.Empty(t, base.Files)
	assert.Equal(t, "a.go", withFile.File)
	assert.Equal(t, "abc123", withTarget.Target)
	assert.Equal(t, []string{"a.go", "b.go"}, withFiles.Files)
}

func TestWithHolder_SetsHolderWithoutMutatingOriginal(t *testing.T) {
	base := New(ResourceBusy, "file is locked by a concurrent apply").WithFile("a.go")
	withHolder := base.WithHolder("9f8c9b1e-aaaa-bbbb-cccc-111122223333")

	assert.Empty(t, base.Holder)
	assert.Equal(t, "9f8c9b1e-aaaa-bbbb-cccc-111122223333", withHolder.Holder)
	assert.Contains(t, withHolder.JSON(), `"holder":"9f8c9b1e-aaaa-bbbb-cccc-111122223333"`)
}

func TestJSON_ProducesValidPayload(t *testing.T) {
	e := New(InvalidRequest, "bad request").WithFile("x.go")
	j := e.JSON()
	assert.Contains(t, j, `"kind":"invalid_request"`)
	assert.Contains(t, j, `"message":"bad request"`)
	assert.Contains(t, j, `"file":"x.go"`)
}

func TestAs_ExtractsStructuredError(t *testing.T) {
	var err error = New(ResourceBusy, "locked")
	ie, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, ResourceBusy, ie.Kind)

	_, ok = As(assertErr{})
	assert.False(t, ok)
}

type assertErr struct{}

func (assertErr) Error() string { return "plain error" }
