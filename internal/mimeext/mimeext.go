// Package mimeext maps media MIME types and file names to container extensions.
package mimeext

import (
	"path"
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"
	// ExtMKV is the file extension for Matroska video.
	ExtMKV = "mkv"
	// ExtTS is the file extension for MPEG transport streams.
	ExtTS = "ts"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
	// MimeVideoMKV is the MIME type for Matroska video.
	MimeVideoMKV = "video/x-matroska"
	// MimeVideoTS is the MIME type for MPEG transport streams.
	MimeVideoTS = "video/mp2t"
)

var mimeByExt = map[string]string{
	DefaultExt: MimeVideoMP4,
	ExtM4A:     MimeAudioMP4,
	ExtWebM:    MimeVideoWebM,
	ExtMKV:     MimeVideoMKV,
	ExtTS:      MimeVideoTS,
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or mp4 if unknown.
func ExtFromMime(mime string) string {
	mime = strings.TrimSpace(mime)
	if mime == "" {
		return DefaultExt
	}
	base := mime
	if i := strings.Index(mime, ";"); i >= 0 {
		base = strings.TrimSpace(mime[:i])
	}
	switch base {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	case MimeVideoMKV:
		return ExtMKV
	case MimeVideoTS:
		return ExtTS
	}
	// Try subtype
	parts := strings.Split(base, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}

// MimeFromName returns the MIME type of a media file name, or "" when the
// extension is not a known container.
func MimeFromName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	return mimeByExt[ext]
}

// ExtFromName returns the container extension of name, DefaultExt when unknown.
func ExtFromName(name string) string {
	return ExtFromMime(MimeFromName(name))
}
