package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// RecordID derives the vector id for the chunk at index within source.
// Rerunning ingestion over the same source yields the same ids.
func RecordID(source string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", SanitizeSource(source), index)
}

// ContentRecordID derives the vector id from source, a content hash and the
// position. It is used for record-oriented inputs whose chunk order is not
// stable across edits of the source file.
func ContentRecordID(source, text string, index int) string {
	return fmt.Sprintf("%s_%s_%d", SanitizeSource(source), ContentMD5(text)[:12], index)
}

// ContentMD5 returns the hex md5 of text.
func ContentMD5(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// plainSource matches names whose sanitized form is unambiguous: one word
// with an optional extension.
var plainSource = regexp.MustCompile(`^[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)?$`)

// SanitizeSource maps a source name onto the id alphabet [A-Za-z0-9_-].
// Plain names keep their readable form ("admissions.txt" becomes
// "admissions_txt"); any other name is suffixed with a hash of the raw
// name so that distinct sources never share an id prefix.
func SanitizeSource(source string) string {
	if plainSource.MatchString(source) {
		return strings.Replace(source, ".", "_", 1)
	}
	var b strings.Builder
	b.Grow(len(source) + 16)
	for _, r := range source {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("source")
	}
	b.WriteByte('_')
	b.WriteString(ContentMD5(source)[:8])
	return b.String()
}
