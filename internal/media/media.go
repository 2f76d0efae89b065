// Package media gates which local files may enter a session.
package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MIMEMPEG = "audio/mpeg"
	MIMEWAV  = "audio/wav"
)

var ErrUnsupportedType = errors.New("only MP3 or WAV files are supported")

var extensionTypes = map[string]string{
	".mp3": MIMEMPEG,
	".wav": MIMEWAV,
}

// Accepted reports whether mimeType is one of the supported audio types.
func Accepted(mimeType string) bool {
	switch normalize(mimeType) {
	case MIMEMPEG, MIMEWAV:
		return true
	default:
		return false
	}
}

// ResolveAudioType returns the canonical MIME type for a selected file.
// A declared type wins when present; otherwise the content is sniffed and the
// file extension is used as a last resort.
func ResolveAudioType(name string, declared string, data []byte) (string, error) {
	if declared = normalize(declared); declared != "" {
		if Accepted(declared) {
			return declared, nil
		}
		return "", fmt.Errorf("%w: got %s", ErrUnsupportedType, declared)
	}

	if sniffed := Sniff(data); Accepted(sniffed) {
		return sniffed, nil
	}

	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return byExt, nil
	}
	return "", ErrUnsupportedType
}

// Sniff detects the MIME type of an audio payload, mapping aliases onto the
// canonical supported types.
func Sniff(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	detected := mimetype.Detect(data)
	switch {
	case detected.Is(MIMEMPEG):
		return MIMEMPEG
	case detected.Is(MIMEWAV):
		return MIMEWAV
	default:
		return detected.String()
	}
}

func normalize(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}
