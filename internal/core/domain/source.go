package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SourceKind identifies how content entered the system.
type SourceKind string

// Known source kinds.
const (
	SourceKindURL          SourceKind = "url"
	SourceKindFile         SourceKind = "file"
	SourceKindYouTube      SourceKind = "youtube"
	SourceKindImage        SourceKind = "image"
	SourceKindVoiceGallery SourceKind = "voice_gallery"
	SourceKindObsidian     SourceKind = "obsidian"
)

// maxSafeSourceIDLen caps the filesystem-safe form of a source ID.
const maxSafeSourceIDLen = 200

// SourceID names a source as "<kind>:<value>".
func SourceID(kind SourceKind, value string) string {
	return string(kind) + ":" + value
}

// ParseSourceID splits a "<kind>:<value>" source ID.
func ParseSourceID(sourceID string) (SourceKind, string, error) {
	kind, value, ok := strings.Cut(sourceID, ":")
	if !ok || kind == "" || value == "" {
		return "", "", fmt.Errorf("%w: source id %q", ErrInvalidInput, sourceID)
	}
	return SourceKind(kind), value, nil
}

// SourceVersion returns the content hash naming this byte content.
// Identical bytes always produce the same version.
func SourceVersion(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SourceVersionText hashes canonical text.
func SourceVersionText(text string) string {
	return SourceVersion([]byte(text))
}

// SafeSourceID converts a source ID into a filesystem-safe directory name.
// Any character outside [A-Za-z0-9._-] becomes an underscore, and the
// result is truncated to 200 characters.
func SafeSourceID(sourceID string) string {
	var b strings.Builder
	b.Grow(len(sourceID))
	for _, r := range sourceID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	safe := b.String()
	if len(safe) > maxSafeSourceIDLen {
		safe = safe[:maxSafeSourceIDLen]
	}
	return safe
}
