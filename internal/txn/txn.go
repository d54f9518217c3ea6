// Package txn implements the Transaction Manager (§4.G): the four-phase
// apply protocol (Revalidate/Materialize/Stage/Commit) with sibling-temp-file
// staging, hardlink-or-copy backups, ascending-canonical-path commit
// ordering, and rollback on commit failure.
//
// The process-local advisory lock is grounded on core/atomicwriter.go's
// AtomicWriter.locks map, but only its in-process half: spec.md §5
// explicitly scopes the lock to "process-local", so the teacher's
// PID-stamped O_CREATE|O_EXCL lock file (meant to guard against a second,
// separate OS process) has no spec-mandated counterpart here — external
// concurrent writers are caught by the Revalidate phase's hash check
// instead, exactly as spec.md §4.G's concurrency discipline paragraph
// describes. The backup/temp/atomic-rename sequence itself follows
// core/atomicwriter.go's WriteFile and core/transaction.go's
// rollbackOperation closely.
package txn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termfx/identedit/internal/changeset"
	"github.com/termfx/identedit/internal/hashutil"
	"github.com/termfx/identedit/internal/identerr"
	"github.com/termfx/identedit/internal/model"
)

const maxFileSize = 16 * 1024 * 1024

// orphanAge is how long a leftover staging/backup/restore temp file must sit
// untouched before the opportunistic sweep at the start of Apply removes it
// (§6, "orphaned temp files older than 24h may be removed opportunistically"),
// grounded on the teacher's CleanupOldTransactions (core/transaction.go).
const orphanAge = 24 * time.Hour

// NoInjectedFailure disables deterministic failure injection in Options.
const NoInjectedFailure = -1

// Options configures one Apply invocation.
type Options struct {
	// Experimental mirrors IDENTEDIT_EXPERIMENTAL=1 (read by the caller, not
	// this package, so txn stays free of direct environment access).
	Experimental bool
	// InjectFailureAfterWrites, when >= 0 and Experimental is true, aborts
	// the commit phase synthetically after exactly this many successful
	// renames (§4.G). Ignored otherwise.
	InjectFailureAfterWrites int
}

// ValidateInjectFailureFlag rejects --inject-failure-after-writes outright
// when IDENTEDIT_EXPERIMENTAL isn't set, per §4.G ("without the environment
// variable the flag is rejected"). Called by the cmd layer before Apply.
func ValidateInjectFailureFlag(injectAfterWrites int, experimentalEnv bool) error {
	if injectAfterWrites < 0 {
		return nil
	}
	if !experimentalEnv {
		return identerr.New(identerr.InvalidRequest, "--inject-failure-after-writes requires IDENTEDIT_EXPERIMENTAL=1")
	}
	return nil
}

// Manager runs the apply protocol and owns the process-local advisory lock
// set. locked maps a canonical path to the transaction ID of the apply
// invocation currently holding it, so a resource_busy error can name the
// holder rather than just the fact of contention.
type Manager struct {
	mu     sync.Mutex
	locked map[string]string
}

// New builds an empty Transaction Manager.
func New() *Manager {
	return &Manager{locked: make(map[string]string)}
}

type stagedFile struct {
	requestFile string
	original    string // canonical path
	mode        os.FileMode
	newContent  []byte
	temp        string
	backup      string
}

// Apply runs Revalidate/Materialize/Stage/Commit over cs and returns the
// per-file result. On any failure it leaves every file byte-identical to its
// pre-apply state (rolling back committed renames) or, if rollback itself
// cannot restore every file, returns a rollback_failed error listing them.
func (m *Manager) Apply(cs *model.MultiFileChangeset, opts Options) (*model.ApplyResult, error) {
	txnID := uuid.NewString()

	canon := make([]string, len(cs.Files))
	for i, fc := range cs.Files {
		c, err := canonicalPath(fc.File)
		if err != nil {
			return nil, identerr.New(identerr.InvalidRequest, "cannot resolve path: "+err.Error()).WithFile(fc.File)
		}
		canon[i] = c
	}

	sweepOrphanDirs(canon)

	lockSet := sortedUnique(canon)
	if err := m.acquireAll(lockSet, txnID); err != nil {
		return nil, err
	}
	defer m.releaseAll(lockSet)

	// Phase 1: Revalidate.
	contents := make([][]byte, len(cs.Files))
	for i, fc := range cs.Files {
		content, err := os.ReadFile(canon[i])
		if err != nil {
			return nil, identerr.New(identerr.PreconditionFailed, "cannot re-read file: "+err.Error()).WithFile(fc.File)
		}
		if hashutil.FileHash(content) != fc.ExpectedFileHash {
			return nil, identerr.New(identerr.PreconditionFailed, "file changed since read").WithFile(fc.File)
		}
		contents[i] = content
	}

	// Phase 2: Materialize. `apply` accepts a MultiFileChangeset straight
	// from stdin or a file path (§6) without requiring it to have passed
	// through `edit`/`changeset.Build` first, so every FileChangeset is
	// re-validated and re-sorted here — the same invariant-3/overlap check
	// the Composer applies — before any byte gets spliced. Skipping this
	// would let a hand-built changeset with overlapping SpanEdits splice
	// garbage into the file instead of failing with invalid_request (§1,
	// invariant 2).
	staged := make([]*stagedFile, len(cs.Files))
	for i, fc := range cs.Files {
		validated, err := changeset.ValidateFileChangeset(fc)
		if err != nil {
			return nil, err
		}
		newContent, err := materialize(contents[i], validated)
		if err != nil {
			return nil, err
		}
		if len(newContent) > maxFileSize {
			return nil, identerr.New(identerr.InvalidRequest, "resulting file exceeds 16 MiB").WithFile(fc.File)
		}
		info, err := os.Stat(canon[i])
		if err != nil {
			return nil, identerr.New(identerr.PreconditionFailed, "cannot stat file: "+err.Error()).WithFile(fc.File)
		}
		staged[i] = &stagedFile{
			requestFile: fc.File,
			original:    canon[i],
			mode:        info.Mode().Perm(),
			newContent:  newContent,
		}
	}

	// Commits proceed in ascending canonical-path order (§4.G, §5) so two
	// concurrent apply invocations over overlapping file sets acquire their
	// locks and rename their files in the same global order.
	sort.Slice(staged, func(i, j int) bool { return staged[i].original < staged[j].original })

	// Phase 3: Stage.
	if err := stageAll(staged); err != nil {
		cleanupStaged(staged)
		return nil, err
	}

	// Phase 4: Commit.
	committed, commitErr := commitAll(staged, opts)
	if commitErr != nil {
		unresolved := rollback(staged, committed)
		cleanupStaged(staged)
		if len(unresolved) > 0 {
			return nil, identerr.New(identerr.RollbackFailed,
				"commit aborted and rollback could not restore every file: "+commitErr.Error()).WithFiles(unresolved)
		}
		return nil, identerr.New(identerr.PreconditionFailed,
			"commit aborted, all files restored to their pre-apply state: "+commitErr.Error())
	}
	cleanupBackups(staged)

	result := &model.ApplyResult{Success: true}
	for _, sf := range staged {
		result.Files = append(result.Files, model.ApplyFileResult{
			File:        sf.requestFile,
			NewFileHash: hashutil.FileHash(sf.newContent),
		})
	}
	return result, nil
}

func (m *Manager) acquireAll(paths []string, txnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range paths {
		if holder, ok := m.locked[p]; ok {
			for _, q := range paths[:i] {
				delete(m.locked, q)
			}
			return identerr.New(identerr.ResourceBusy, "file is locked by a concurrent apply").WithFile(p).WithHolder(holder)
		}
	}
	for _, p := range paths {
		m.locked[p] = txnID
	}
	return nil
}

func (m *Manager) releaseAll(paths []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.locked, p)
	}
}

func sortedUnique(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// sweepOrphanDirs opportunistically removes this package's leftover staging,
// backup, and restore temp files — from a prior process that crashed between
// creating one and renaming or cleaning it up — in every directory touched by
// this Apply, when they're older than orphanAge. Best-effort: a directory
// that can't be listed, or a file that can't be removed, is silently skipped.
func sweepOrphanDirs(canon []string) {
	seen := make(map[string]bool)
	cutoff := time.Now().Add(-orphanAge)
	for _, path := range canon {
		dir := filepath.Dir(path)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		sweepOrphanDir(dir, cutoff)
	}
}

func sweepOrphanDir(dir string, cutoff time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isOrphanCandidateName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		os.Remove(filepath.Join(dir, entry.Name()))
	}
}

// isOrphanCandidateName matches the three temp-file suffixes this package
// creates under stageAll/backupFile/restoreBackup.
func isOrphanCandidateName(name string) bool {
	return strings.Contains(name, ".identedit.tmp.") ||
		strings.Contains(name, ".identedit.bak.") ||
		strings.Contains(name, ".identedit.restore.")
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// materialize applies fc's SpanEdits right-to-left over content so earlier
// offsets stay valid (§4.G phase 2), or returns RewriteContent verbatim. fc
// must already have passed changeset.ValidateFileChangeset, so Edits is
// sorted ascending by (Start, End) and free of overlaps; materialize does
// not re-sort or re-check overlap itself.
func materialize(content []byte, fc model.FileChangeset) ([]byte, error) {
	if fc.RewriteContent != nil {
		return []byte(*fc.RewriteContent), nil
	}
	edits := fc.Edits
	out := content
	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		if e.Span.Start < 0 || e.Span.End > len(out) || e.Span.Start > e.Span.End {
			return nil, identerr.New(identerr.InvalidRequest, "span edit out of range").WithFile(fc.File)
		}
		out = spliceSpan(out, e)
	}
	return out, nil
}

// spliceSpan builds a fresh buffer rather than mutating content in place, so
// repeated right-to-left splices never alias an earlier iteration's output.
func spliceSpan(content []byte, e model.SpanEdit) []byte {
	out := make([]byte, 0, len(content)-(e.Span.End-e.Span.Start)+len(e.Replacement))
	out = append(out, content[:e.Span.Start]...)
	out = append(out, e.Replacement...)
	out = append(out, content[e.Span.End:]...)
	return out
}

func stageAll(staged []*stagedFile) error {
	for _, sf := range staged {
		tmp := sf.original + ".identedit.tmp." + uuid.NewString()
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, sf.mode)
		if err != nil {
			return identerr.New(identerr.InvalidRequest, "cannot create staging file: "+err.Error()).WithFile(sf.requestFile)
		}
		if _, err := f.Write(sf.newContent); err != nil {
			f.Close()
			os.Remove(tmp)
			return identerr.New(identerr.InvalidRequest, "cannot write staging file: "+err.Error()).WithFile(sf.requestFile)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(tmp)
			return identerr.New(identerr.InvalidRequest, "cannot fsync staging file: "+err.Error()).WithFile(sf.requestFile)
		}
		if err := f.Close(); err != nil {
			os.Remove(tmp)
			return identerr.New(identerr.InvalidRequest, "cannot close staging file: "+err.Error()).WithFile(sf.requestFile)
		}
		sf.temp = tmp

		backup := sf.original + ".identedit.bak." + uuid.NewString()
		if err := backupFile(sf.original, backup); err != nil {
			return identerr.New(identerr.InvalidRequest, "cannot create backup: "+err.Error()).WithFile(sf.requestFile)
		}
		sf.backup = backup
	}
	return nil
}

// backupFile prefers a hardlink (cheap, same filesystem); copy is the
// mandatory fallback on filesystems without hardlink support (§4.G).
func backupFile(original, backup string) error {
	if err := os.Link(original, backup); err == nil {
		return nil
	}
	src, err := os.Open(original)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(backup, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backup)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// commitAll renames each staged temp file onto its original in the order
// staged was sorted (ascending canonical path), fsyncing the containing
// directory after each rename. It returns how many renames succeeded before
// any error (including an injected one), so the caller can roll back exactly
// that prefix.
func commitAll(staged []*stagedFile, opts Options) (int, error) {
	committed := 0
	for _, sf := range staged {
		if opts.Experimental && opts.InjectFailureAfterWrites >= 0 && committed == opts.InjectFailureAfterWrites {
			return committed, identerr.New(identerr.Unknown, fmt.Sprintf("injected failure after %d writes", committed)).WithFile(sf.requestFile)
		}
		if err := os.Rename(sf.temp, sf.original); err != nil {
			return committed, identerr.New(identerr.Unknown, "rename failed: "+err.Error()).WithFile(sf.requestFile)
		}
		committed++
		if err := fsyncDir(filepath.Dir(sf.original)); err != nil {
			return committed, identerr.New(identerr.Unknown, "fsync directory failed: "+err.Error()).WithFile(sf.requestFile)
		}
	}
	return committed, nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// rollback restores the committed prefix of staged from their backups,
// returning the original paths of any file it could not restore.
func rollback(staged []*stagedFile, committed int) []string {
	var unresolved []string
	for i := 0; i < committed; i++ {
		sf := staged[i]
		if err := restoreBackup(sf.backup, sf.original, sf.mode); err != nil {
			unresolved = append(unresolved, sf.requestFile)
		}
	}
	return unresolved
}

func restoreBackup(backup, original string, mode os.FileMode) error {
	content, err := os.ReadFile(backup)
	if err != nil {
		return err
	}
	tmp := original + ".identedit.restore." + uuid.NewString()
	if err := os.WriteFile(tmp, content, mode); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, original)
}

func cleanupStaged(staged []*stagedFile) {
	for _, sf := range staged {
		if sf.temp != "" {
			os.Remove(sf.temp)
		}
		if sf.backup != "" {
			os.Remove(sf.backup)
		}
	}
}

func cleanupBackups(staged []*stagedFile) {
	for _, sf := range staged {
		if sf.backup != "" {
			os.Remove(sf.backup)
		}
	}
}

