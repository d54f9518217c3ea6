package txn

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termfx/identedit/internal/hashutil"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func singleFileChangeset(path string, content []byte, edits []model.SpanEdit) *model.MultiFileChangeset {
	cs := model.NewChangeset()
	cs.Files = append(cs.Files, model.FileChangeset{
		File:             path,
		ExpectedFileHash: hashutil.FileHash(content),
		Edits:            edits,
	})
	return cs
}

func TestApply_CommitsAndReturnsNewHash(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello world\n")
	path := writeTempFile(t, dir, "a.txt", string(content))

	cs := singleFileChangeset(path, content, []model.SpanEdit{{Span: model.Span{Start: 0, End: 5}, Replacement: "howdy"}})

	result, err := New().Apply(cs, Options{InjectFailureAfterWrites: NoInjectedFailure})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Files, 1)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "howdy world\n", string(got))
	assert.Equal(t, hashutil.FileHash(got), result.Files[0].NewFileHash)

	// No staging artifacts left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApply_RevalidateRejectsStaleHash(t *testing.T) {
	dir := t.TempDir()
	content := []byte("original\n")
	path := writeTempFile(t, dir, "a.txt", string(content))

	cs := model.NewChangeset()
	cs.Files = append(cs.Files, model.FileChangeset{
		File:             path,
		ExpectedFileHash: "0000000000000000000000000000000000000000000000000000000000000000",
		Edits:            []model.SpanEdit{{Span: model.Span{Start: 0, End: 1}, Replacement: "x"}},
	})

	_, err := New().Apply(cs, Options{InjectFailureAfterWrites: NoInjectedFailure})
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.PreconditionFailed, ie.Kind)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original\n", string(got))
}

func TestApply_MultiFileAscendingCommitOrder(t *testing.T) {
	dir := t.TempDir()
	ca := []byte("a-content\n")
	cb := []byte("b-content\n")
	pathA := writeTempFile(t, dir, "a.txt", string(ca))
	pathB := writeTempFile(t, dir, "b.txt", string(cb))

	cs := model.NewChangeset()
	cs.Files = append(cs.Files,
		model.FileChangeset{File: pathB, ExpectedFileHash: hashutil.FileHash(cb), Edits: []model.SpanEdit{{Span: model.Span{Start: 0, End: 1}, Replacement: "B"}}},
		model.FileChangeset{File: pathA, ExpectedFileHash: hashutil.FileHash(ca), Edits: []model.SpanEdit{{Span: model.Span{Start: 0, End: 1}, Replacement: "A"}}},
	)

	result, err := New().Apply(cs, Options{InjectFailureAfterWrites: NoInjectedFailure})
	require.NoError(t, err)
	require.Len(t, result.Files, 2)

	gotA, _ := os.ReadFile(pathA)
	gotB, _ := os.ReadFile(pathB)
	assert.Equal(t, "A-content\n", string(gotA))
	assert.Equal(t, "B-content\n", string(gotB))
}

func TestApply_InjectedFailureRollsBackAllFiles(t *testing.T) {
	dir := t.TempDir()
	ca := []byte("a-content\n")
	cb := []byte("b-content\n")
	pathA := writeTempFile(t, dir, "a.txt", string(ca))
	pathB := writeTempFile(t, dir, "b.txt", string(cb))

	cs := model.NewChangeset()
	cs.Files = append(cs.Files,
		model.FileChangeset{File: pathA, ExpectedFileHash: hashutil.FileHash(ca), Edits: []model.SpanEdit{{Span: model.Span{Start: 0, End: 1}, Replacement: "A"}}},
		model.FileChangeset{File: pathB, ExpectedFileHash: hashutil.FileHash(cb), Edits: []model.SpanEdit{{Span: model.Span{Start: 0, End: 1}, Replacement: "B"}}},
	)

	_, err := New().Apply(cs, Options{Experimental: true, InjectFailureAfterWrites: 1})
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.PreconditionFailed, ie.Kind)

	gotA, _ := os.ReadFile(pathA)
	gotB, _ := os.ReadFile(pathB)
	assert.Equal(t, "a-content\n", string(gotA))
	assert.Equal(t, "b-content\n", string(gotB))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no leftover .identedit.tmp.* or backup files")
}

func TestApply_WholeFileRewrite(t *testing.T) {
	dir := t.TempDir()
	content := []byte("old\n")
	path := writeTempFile(t, dir, "a.txt", string(content))

	rewrite := "brand new content\n"
	cs := model.NewChangeset()
	cs.Files = append(cs.Files, model.FileChangeset{
		File:             path,
		ExpectedFileHash: hashutil.FileHash(content),
		RewriteContent:   &rewrite,
	})

	_, err := New().Apply(cs, Options{InjectFailureAfterWrites: NoInjectedFailure})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rewrite, string(got))
}

func TestApply_RejectsOversizedResult(t *testing.T) {
	dir := t.TempDir()
	content := []byte("small\n")
	path := writeTempFile(t, dir, "a.txt", string(content))

	oversized := make([]byte, maxFileSize+1)
	rewrite := string(oversized)
	cs := model.NewChangeset()
	cs.Files = append(cs.Files, model.FileChangeset{
		File:             path,
		ExpectedFileHash: hashutil.FileHash(content),
		RewriteContent:   &rewrite,
	})

	_, err := New().Apply(cs, Options{InjectFailureAfterWrites: NoInjectedFailure})
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.InvalidRequest, ie.Kind)
}

func TestValidateInjectFailureFlag_RejectsWithoutExperimentalEnv(t *testing.T) {
	err := ValidateInjectFailureFlag(2, false)
	require.Error(t, err)
	ie, _ := identerr.As(err)
	assert.Equal(t, identerr.InvalidRequest, ie.Kind)
}

func TestValidateInjectFailureFlag_AllowsWithExperimentalEnv(t *testing.T) {
	assert.NoError(t, ValidateInjectFailureFlag(2, true))
}

func TestValidateInjectFailureFlag_NoOpWhenFlagUnset(t *testing.T) {
	assert.NoError(t, ValidateInjectFailureFlag(NoInjectedFailure, false))
}

func TestManager_AcquireAllRejectsConcurrentOverlap(t *testing.T) {
	m := New()
	require.NoError(t, m.acquireAll([]string{"/x/a.txt", "/x/b.txt"}, "txn-1"))
	err := m.acquireAll([]string{"/x/b.txt", "/x/c.txt"}, "txn-2")
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.ResourceBusy, ie.Kind)

	// /x/c.txt must not remain locked after the partial acquire failed.
	require.NoError(t, m.acquireAll([]string{"/x/c.txt"}, "txn-2"))
}

func TestManager_AcquireAllReportsHolderTransactionID(t *testing.T) {
	m := New()
	require.NoError(t, m.acquireAll([]string{"/x/a.txt"}, "holder-txn-id"))

	err := m.acquireAll([]string{"/x/a.txt"}, "challenger-txn-id")
	require.Error(t, err)
	ie, ok := identerr.As(err)
	require.True(t, ok)
	assert.Equal(t, identerr.ResourceBusy, ie.Kind)
	assert.Equal(t, "/x/a.txt", ie.File)
	assert.Equal(t, "holder-txn-id", ie.Holder)
}

func TestSweepOrphanDirs_RemovesStaleTempFilesButKeepsFreshOnes(t *testing.T) {
	dir := t.TempDir()
	stale := writeTempFile(t, dir, "a.txt.identedit.tmp.123", "leftover")
	fresh := writeTempFile(t, dir, "b.txt.identedit.bak.456", "recent")
	unrelated := writeTempFile(t, dir, "c.txt", "keep me")

	old := time.Now().Add(-25 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	sweepOrphanDirs([]string{filepath.Join(dir, "anything.txt")})

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale orphan temp file should be removed")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh orphan-shaped file should survive")
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "unrelated file should survive")
}
