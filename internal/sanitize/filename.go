// Package sanitize builds file names that are safe on every platform.
package sanitize

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// MaxFilenameLength is the maximum allowed length for the filename base.
	MaxFilenameLength = 120
	// DefaultExt is the default extension used when none is provided.
	DefaultExt = "mp4"
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "episode"
)

var (
	unsafeChars = regexp.MustCompile(`[\\/:*?"<>|]+`)
	spaces      = regexp.MustCompile(`\s+`)
	exportName  = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+\.\S*$`)
)

// ToSafeFilename builds a cross-platform safe filename from title and extension (without dot in ext).
func ToSafeFilename(title, ext string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = DefaultName
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = spaces.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if len(name) > MaxFilenameLength {
		name = strings.ToValidUTF8(name[:MaxFilenameLength], "")
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = DefaultExt
	}
	return filepath.Clean(name + "." + ext)
}

// IsValidExportName reports whether name is a plain file name made of
// letters, digits, '_', '-' and '.', with an extension. Paths are rejected.
func IsValidExportName(name string) bool {
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return exportName.MatchString(name)
}
