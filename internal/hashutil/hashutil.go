// Package hashutil implements Identedit's single hashing algorithm (BLAKE3)
// and the canonical truncations used throughout the engine: 16 hex chars for
// node identity, expected-old-hash, and short file hash; 12 hex chars for
// line anchors; 64 hex chars for full file hashes.
package hashutil

import (
	"bytes"
	"encoding/hex"
	"strings"

	"lukechampine.com/blake3"
)

const (
	// IdentityLen is the hex length of node identity and expected-old-hash values.
	IdentityLen = 16
	// AnchorLen is the hex length of line-anchor hashes.
	AnchorLen = 12
	// FileHashLen is the hex length of a full file hash.
	FileHashLen = 64
)

// sum returns the lowercase hex BLAKE3 digest of data, truncated to n hex
// characters. n must be even and no larger than 64 (the full digest length).
func sum(data []byte, n int) string {
	h := blake3.Sum256(data)
	full := hex.EncodeToString(h[:])
	if n >= len(full) {
		return full
	}
	return full[:n]
}

// FileHash returns the full 64-hex BLAKE3 digest of file bytes.
func FileHash(content []byte) string {
	return sum(content, FileHashLen)
}

// ShortFileHash returns the first 16 hex chars of FileHash(content).
func ShortFileHash(content []byte) string {
	return sum(content, IdentityLen)
}

// NodeIdentity computes identity = blake3(kind ‖ 0x00 ‖ name_or_empty ‖ 0x00 ‖ bytes), truncated to 16 hex.
func NodeIdentity(kind, name string, content []byte) string {
	var buf bytes.Buffer
	buf.WriteString(kind)
	buf.WriteByte(0)
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.Write(content)
	return sum(buf.Bytes(), IdentityLen)
}

// ExpectedOldHash computes the 16-hex precondition hash of a node's current bytes.
func ExpectedOldHash(content []byte) string {
	return sum(content, IdentityLen)
}

// LineAnchorHash hashes a single line's text (without its terminating
// newline; a trailing \r is stripped first for CRLF tolerance) to 12 hex chars.
func LineAnchorHash(line string) string {
	line = strings.TrimSuffix(line, "\r")
	return sum([]byte(line), AnchorLen)
}

// SplitLines splits content on \n, matching the line-anchor convention used
// by line anchors and the Parse Index's line mode. If content ends in \n the
// final empty fragment is dropped, so the result is exactly the file's lines.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	s := string(content)
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
